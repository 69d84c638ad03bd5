package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ゲートウェイ失敗の区分。
var (
	//一時的な障害。同じidempotency keyで再試行できる
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	//相手側の恒久的な拒否（送金先口座が無効など）
	ErrGatewayRejected = errors.New("gateway rejected")
	//認証設定の問題。再試行しても直らない
	ErrGatewayAuth = errors.New("gateway auth failure")
)

// 送金結果
type TransferResult struct {
	TransferID  string    `json:"transfer_id"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// 返金結果
type RefundResult struct {
	RefundID    string `json:"refund_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

// 決済プロバイダとの接点。実装はinfra/gateway（本物）とテストダブル。
// TransferToSeller/Refundは同じidempotency keyなら二重送金にならない前提。
type PaymentGateway interface {
	//webhook署名の検証
	VerifySignature(payload []byte, signature string) bool

	//エスクローから出品者口座へ送金
	TransferToSeller(ctx context.Context, orderID int64, payoutAccount string, amountCents int64, idempotencyKey string) (TransferResult, error)

	//買い手へ返金
	Refund(ctx context.Context, orderID int64, externalReference string, amountCents int64, idempotencyKey string) (RefundResult, error)
}

// idempotency keyは注文IDから決定的に作る。
// 再試行しても同じキーになるので二重送金が起きない。
func ReleaseIdempotencyKey(orderID int64) string {
	return fmt.Sprintf("escrow-release-%d", orderID)
}

func RefundIdempotencyKey(orderID int64) string {
	return fmt.Sprintf("escrow-refund-%d", orderID)
}
