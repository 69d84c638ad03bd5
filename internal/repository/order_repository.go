package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

type AdminOrderListFilter struct {
	Page    int
	Limit   int
	Status  string
	BuyerID *int64
	From    *time.Time
	To      *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByBuyerID(ctx context.Context, buyerID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error)
	//webhook重複判定用。プロバイダ参照IDで1件検索
	FindByExternalReference(ctx context.Context, ref string) (model.Order, bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	//保留中ダッシュボード集計用。HELD注文の金額を全件返す
	HeldAmounts(ctx context.Context) ([]int64, error)

	//以下は全部check-and-set。現在ステータスが一致した時だけ書く（falseなら競合）
	MarkHeld(ctx context.Context, orderID int64, externalRef string, paidAt time.Time) (bool, error)
	MarkPaid(ctx context.Context, orderID int64, releasedAt time.Time) (bool, error)
	MarkRefunded(ctx context.Context, orderID int64) (bool, error)
	MarkCancelled(ctx context.Context, orderID int64) (bool, error)
	AdvanceDelivery(ctx context.Context, orderID int64, from, to model.DeliveryStatus, at time.Time) (bool, error)
}
