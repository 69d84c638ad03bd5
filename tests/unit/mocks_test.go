package unit

import (
	"context"
	"strings"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/rbac"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders        repo.OrderRepository
	listings      repo.ListingRepository
	users         repo.UserRepository
	webhookEvents repo.WebhookEventRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository               { return r.orders }
func (r *TxReposMock) Listings() repo.ListingRepository           { return r.listings }
func (r *TxReposMock) Users() repo.UserRepository                 { return r.users }
func (r *TxReposMock) WebhookEvents() repo.WebhookEventRepository { return r.webhookEvents }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByBuyerID(ctx context.Context, buyerID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, buyerID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error) {
	args := m.Called(ctx, buyerID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) FindByExternalReference(ctx context.Context, ref string) (model.Order, bool, error) {
	args := m.Called(ctx, ref)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) HeldAmounts(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	amounts, _ := args.Get(0).([]int64)
	return amounts, args.Error(1)
}

func (m *OrderRepoMock) MarkHeld(ctx context.Context, orderID int64, externalRef string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, externalRef, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) MarkPaid(ctx context.Context, orderID int64, releasedAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, releasedAt)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) MarkRefunded(ctx context.Context, orderID int64) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) MarkCancelled(ctx context.Context, orderID int64) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) AdvanceDelivery(ctx context.Context, orderID int64, from, to model.DeliveryStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, orderID, from, to, at)
	return args.Bool(0), args.Error(1)
}

type ListingRepoMock struct{ mock.Mock }

func (m *ListingRepoMock) ListPublic(ctx context.Context, q repo.ListingListQuery) ([]model.Listing, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Listing)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ListingRepoMock) ListBySellerID(ctx context.Context, sellerID int64, page int, limit int) ([]model.Listing, int64, error) {
	args := m.Called(ctx, sellerID, page, limit)
	items, _ := args.Get(0).([]model.Listing)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ListingRepoMock) FindByID(ctx context.Context, id int64) (model.Listing, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(model.Listing)
	return l, args.Error(1)
}

func (m *ListingRepoMock) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	args := m.Called(ctx, l)
	created, _ := args.Get(0).(model.Listing)
	return created, args.Error(1)
}

func (m *ListingRepoMock) Update(ctx context.Context, l model.Listing) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *ListingRepoMock) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ListingRepoMock) MarkSoldIfActive(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *ListingRepoMock) Reactivate(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) IncrementTokenVersion(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type WebhookEventRepoMock struct{ mock.Mock }

func (m *WebhookEventRepoMock) FindByProviderEventID(ctx context.Context, provider string, eventID string) (model.WebhookEvent, bool, error) {
	args := m.Called(ctx, provider, eventID)
	ev, _ := args.Get(0).(model.WebhookEvent)
	return ev, args.Bool(1), args.Error(2)
}

func (m *WebhookEventRepoMock) Create(ctx context.Context, ev model.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type RefreshTokenRepoMock struct{ mock.Mock }

func (m *RefreshTokenRepoMock) Create(ctx context.Context, token *model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	t, _ := args.Get(0).(*model.RefreshToken)
	return t, args.Error(1)
}

func (m *RefreshTokenRepoMock) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	args := m.Called(ctx, tokenID, usedAt)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) DeleteAllByUserID(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) DeleteByID(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

// =====================
// Gateway / RBAC mocks
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) VerifySignature(payload []byte, signature string) bool {
	args := m.Called(payload, signature)
	return args.Bool(0)
}

func (m *GatewayMock) TransferToSeller(ctx context.Context, orderID int64, payoutAccount string, amountCents int64, idempotencyKey string) (gateway.TransferResult, error) {
	args := m.Called(ctx, orderID, payoutAccount, amountCents, idempotencyKey)
	res, _ := args.Get(0).(gateway.TransferResult)
	return res, args.Error(1)
}

func (m *GatewayMock) Refund(ctx context.Context, orderID int64, externalReference string, amountCents int64, idempotencyKey string) (gateway.RefundResult, error) {
	args := m.Called(ctx, orderID, externalReference, amountCents, idempotencyKey)
	res, _ := args.Get(0).(gateway.RefundResult)
	return res, args.Error(1)
}

type CheckerMock struct{ mock.Mock }

func (m *CheckerMock) HasCapability(ctx context.Context, actorID int64, cap rbac.Capability) (bool, error) {
	args := m.Called(ctx, actorID, cap)
	return args.Bool(0), args.Error(1)
}

// =====================
// Helper: error contains（HTTPErrorの実装詳細に依存しない）
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}
