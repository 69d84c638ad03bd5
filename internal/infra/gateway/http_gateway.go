package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gw "app/internal/gateway"
)

// 決済プロバイダのREST APIを叩く実装。
type HTTPGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

func NewHTTPGateway(baseURL string, apiKey string, webhookSecret string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// HMAC-SHA256(secret, body) のhexと比較する。比較は定数時間。
func (g *HTTPGateway) VerifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type transferRequest struct {
	OrderID       int64  `json:"order_id"`
	PayoutAccount string `json:"payout_account"`
	AmountCents   int64  `json:"amount_cents"`
}

func (g *HTTPGateway) TransferToSeller(ctx context.Context, orderID int64, payoutAccount string, amountCents int64, idempotencyKey string) (gw.TransferResult, error) {
	body := transferRequest{
		OrderID:       orderID,
		PayoutAccount: payoutAccount,
		AmountCents:   amountCents,
	}

	var result gw.TransferResult
	if err := g.post(ctx, "/v1/transfers", idempotencyKey, body, &result); err != nil {
		return gw.TransferResult{}, err
	}
	return result, nil
}

type refundRequest struct {
	OrderID           int64  `json:"order_id"`
	ExternalReference string `json:"external_reference"`
	AmountCents       int64  `json:"amount_cents"`
}

func (g *HTTPGateway) Refund(ctx context.Context, orderID int64, externalReference string, amountCents int64, idempotencyKey string) (gw.RefundResult, error) {
	body := refundRequest{
		OrderID:           orderID,
		ExternalReference: externalReference,
		AmountCents:       amountCents,
	}

	var result gw.RefundResult
	if err := g.post(ctx, "/v1/refunds", idempotencyKey, body, &result); err != nil {
		return gw.RefundResult{}, err
	}
	return result, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, idempotencyKey string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(req)
	if err != nil {
		//ネットワーク断・タイムアウトは再試行可能
		return gw.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return gw.ErrGatewayAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		//残りの4xxは恒久的な拒否
		_, _ = io.Copy(io.Discard, resp.Body)
		return gw.ErrGatewayRejected
	default:
		return gw.ErrGatewayUnavailable
	}
}
