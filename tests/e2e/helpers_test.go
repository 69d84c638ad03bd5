package e2e

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

type TestClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewTestClient(t *testing.T) *TestClient {
	t.Helper()

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}

	return &TestClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type UserDTO struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	PayoutAccount string `json:"payout_account"`
	TokenVersion  int64  `json:"token_version"`
	IsActive      bool   `json:"is_active"`
}

type AuthLoginResponse struct {
	User        UserDTO `json:"user"`
	AccessToken string  `json:"access_token"`
	ExpiresIn   int64   `json:"expires_in"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Order struct {
	ID                       int64  `json:"id"`
	ListingID                int64  `json:"listing_id"`
	BuyerID                  int64  `json:"buyer_id"`
	Status                   string `json:"status"`
	DeliveryStatus           string `json:"delivery_status"`
	AmountCents              int64  `json:"amount_cents"`
	PaymentMethod            string `json:"payment_method"`
	ExternalPaymentReference string `json:"external_payment_reference"`
	PaidAt                   string `json:"paid_at"`
	ReleasedAt               string `json:"released_at"`
}

type Listing struct {
	ID         int64  `json:"id"`
	SellerID   int64  `json:"seller_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

type ListingList struct {
	Items []Listing `json:"items"`
	Total int64     `json:"total"`
	Page  int64     `json:"page"`
	Limit int64     `json:"limit"`
}

func (c *TestClient) doJSON(
	ctx context.Context,
	t *testing.T,
	method string,
	path string,
	bearer string,
	bodyBytes []byte,
) (*http.Response, []byte) {
	t.Helper()

	var reqBody io.Reader
	if bodyBytes != nil {
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		t.Fatalf("http.NewRequest failed: %v", err)
	}

	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		t.Fatalf("HTTP.Do failed: %v", err)
	}

	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	return resp, data
}

func requireStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status=%d want=%d body=%s", resp.StatusCode, want, string(body))
	}
}

func mustDecodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var v ErrorResponse
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(ErrorResponse) failed: %v body=%s", err, string(body))
	}
	return v
}

func mustDecodeLogin(t *testing.T, body []byte) AuthLoginResponse {
	t.Helper()
	var v AuthLoginResponse
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(AuthLoginResponse) failed: %v body=%s", err, string(body))
	}
	return v
}

func mustDecodeSuccess(t *testing.T, body []byte) SuccessResponse {
	t.Helper()
	var v SuccessResponse
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(SuccessResponse) failed: %v body=%s", err, string(body))
	}
	return v
}

func mustDecodeOrder(t *testing.T, body []byte) Order {
	t.Helper()
	var v Order
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(Order) failed: %v body=%s", err, string(body))
	}
	return v
}

func mustDecodeListingList(t *testing.T, body []byte) ListingList {
	t.Helper()
	var v ListingList
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(ListingList) failed: %v body=%s", err, string(body))
	}
	return v
}

func toStr(v int64) string {
	return strconv.FormatInt(v, 10)
}

// ユニークなメールを作る（登録の重複を避ける）
func uniqueEmail(prefix string) string {
	return prefix + "-" + time.Now().Format("20060102-150405.000000000") + "@example.com"
}

// 新規ユーザーを登録してログインし、access_tokenとユーザー情報を返す
func registerAndLogin(t *testing.T, c *TestClient, ctx context.Context, email string) AuthLoginResponse {
	t.Helper()

	req := LoginRequest{Email: email, Password: "e2e-password-123"}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("json.Marshal(LoginRequest) failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/auth/register", "", b)
	requireStatus(t, resp, http.StatusCreated, body)

	resp, body = c.doJSON(ctx, t, http.MethodPost, "/auth/login", "", b)
	requireStatus(t, resp, http.StatusOK, body)

	login := mustDecodeLogin(t, body)
	if strings.TrimSpace(login.AccessToken) == "" {
		t.Fatalf("access token is empty: body=%s", string(body))
	}
	return login
}

// 管理者でログインしてaccess_tokenを取得（seed済みアカウント）
func adminLogin(t *testing.T, c *TestClient, ctx context.Context) string {
	t.Helper()

	email := os.Getenv("E2E_ADMIN_EMAIL")
	if email == "" {
		email = "admin@example.com"
	}
	password := os.Getenv("E2E_ADMIN_PASSWORD")
	if password == "" {
		password = "admin-password-123"
	}

	req := LoginRequest{Email: email, Password: password}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("json.Marshal(LoginRequest) failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/auth/login", "", b)
	requireStatus(t, resp, http.StatusOK, body)

	login := mustDecodeLogin(t, body)
	if strings.TrimSpace(login.AccessToken) == "" {
		t.Fatalf("admin access token is empty: body=%s", string(body))
	}
	return login.AccessToken
}

// 出品を作ってlisting_idを返す
func createListing(t *testing.T, c *TestClient, ctx context.Context, access string, title string, priceCents int64) int64 {
	t.Helper()

	req := map[string]interface{}{
		"title":       title,
		"description": "e2e listing",
		"price_cents": priceCents,
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("json.Marshal(listing) failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/listings", access, b)
	requireStatus(t, resp, http.StatusCreated, body)

	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("json.Unmarshal(create listing resp) failed: %v body=%s", err, string(body))
	}
	if out.ID <= 0 {
		t.Fatalf("invalid listing id: %d body=%s", out.ID, string(body))
	}
	return out.ID
}

// 送金先口座を登録（release-fundsの前提）
func setPayoutAccount(t *testing.T, c *TestClient, ctx context.Context, access string, account string) {
	t.Helper()

	b, err := json.Marshal(map[string]string{"payout_account": account})
	if err != nil {
		t.Fatalf("json.Marshal(payout) failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPut, "/me/payout-account", access, b)
	requireStatus(t, resp, http.StatusOK, body)
	_ = mustDecodeSuccess(t, body)
}

// 注文を作る（X-Idempotency-Keyはヘッダーで送る）
func placeOrder(t *testing.T, c *TestClient, ctx context.Context, access string, listingID int64, key string) Order {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]interface{}{
		"listing_id":     listingID,
		"payment_method": "STRIPE",
	})
	if err != nil {
		t.Fatalf("json.Marshal(order) failed: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/orders", bytes.NewReader(reqJSON))
	if err != nil {
		t.Fatalf("http.NewRequest failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+access)
	httpReq.Header.Set("X-Idempotency-Key", key)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		t.Fatalf("HTTP.Do failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	requireStatus(t, resp, http.StatusOK, bodyBytes)
	return mustDecodeOrder(t, bodyBytes)
}

// /orders/{id} を取得
func getOrderDetail(t *testing.T, c *TestClient, ctx context.Context, access string, orderID int64) Order {
	t.Helper()

	resp, body := c.doJSON(ctx, t, http.MethodGet, "/orders/"+toStr(orderID), access, nil)
	requireStatus(t, resp, http.StatusOK, body)
	return mustDecodeOrder(t, body)
}

// サーバーと同じWEBHOOK_SECRETで生bodyに署名する
func webhookSecret() string {
	s := os.Getenv("WEBHOOK_SECRET")
	if s == "" {
		s = "dev-webhook-secret"
	}
	return s
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret()))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// 決済プロバイダからのcaptureイベントを模して /webhooks/payment を叩く
func sendCaptureWebhook(
	t *testing.T,
	c *TestClient,
	ctx context.Context,
	eventID string,
	orderID int64,
	externalRef string,
	amountCents int64,
) (*http.Response, []byte) {
	t.Helper()

	payload := map[string]interface{}{
		"id":                 eventID,
		"type":               "payment.captured",
		"provider":           "stripe",
		"order_id":           orderID,
		"external_reference": externalRef,
		"amount_cents":       amountCents,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal(webhook) failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/webhooks/payment", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("http.NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signWebhookBody(body))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		t.Fatalf("HTTP.Do failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return resp, data
}

// ユニークなイベントID/決済参照を作る
func uniqueRef(prefix string) string {
	return prefix + "-" + time.Now().Format("150405.000000000")
}

func mustUnmarshal(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("json.Unmarshal failed: %v body=%s", err, string(body))
	}
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
