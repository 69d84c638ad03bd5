package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type PlaceOrderInput struct {
	ListingID      int64
	PaymentMethod  string
	IdempotencyKey string
}

type OrderOutput struct {
	ID                       int64      `json:"id"`
	ListingID                int64      `json:"listing_id"`
	BuyerID                  int64      `json:"buyer_id"`
	Status                   string     `json:"status"`
	DeliveryStatus           string     `json:"delivery_status"`
	AmountCents              int64      `json:"amount_cents"`
	PaymentMethod            string     `json:"payment_method"`
	ExternalPaymentReference *string    `json:"external_payment_reference,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	PaidAt                   *time.Time `json:"paid_at,omitempty"`
	ReleasedAt               *time.Time `json:"released_at,omitempty"`
	ShippedAt                *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt              *time.Time `json:"delivered_at,omitempty"`
	ConfirmedAt              *time.Time `json:"confirmed_at,omitempty"`
}

// チェックアウト開始。PENDINGの注文を作るだけ。
// 入金確定（HELD）はwebhook側がやる。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, buyerID int64, in PlaceOrderInput) (OrderOutput, error) {
	if buyerID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ListingID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid listing_id")
	}

	method := model.PaymentMethod(strings.ToUpper(strings.TrimSpace(in.PaymentMethod)))
	switch method {
	case model.PaymentMethodStripe, model.PaymentMethodPaypal:
		// OK
	default:
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	var out OrderOutput

	//注文作成はトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, buyerID, key)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			out = toOrderOutput(existing)
			return nil
		}

		l, err := r.Listings().FindByID(ctx, in.ListingID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//取下げ・売却済みは買えない
		if l.Status != model.ListingStatusActive {
			return NewHTTPError(http.StatusBadRequest, "listing not available")
		}
		//自分の出品は買えない
		if l.SellerID == buyerID {
			return NewHTTPError(http.StatusBadRequest, "cannot buy own listing")
		}

		now := time.Now()
		order := model.Order{
			ListingID:      l.ID,
			BuyerID:        buyerID,
			AmountCents:    l.PriceCents,
			PaymentMethod:  method,
			Status:         model.OrderStatusPending,
			DeliveryStatus: model.DeliveryStatusNotShipped,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := order.Validate(); err != nil {
			return NewHTTPError(http.StatusBadRequest, err.Error())
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//競合（同時で同じキーが入った等）はもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, buyerID, key)
			if err2 == nil && found2 {
				out = toOrderOutput(ex2)
				return nil
			}
			return NewHTTPError(http.StatusBadRequest, "idempotency conflict")
		}

		order.ID = orderID
		out = toOrderOutput(order)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, buyerID int64) ([]OrderOutput, error) {
	if buyerID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングでまずは固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByBuyerID(ctx, buyerID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, toOrderOutput(o))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, buyerID int64, orderID int64) (OrderOutput, error) {
	if buyerID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.BuyerID != buyerID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		out = toOrderOutput(o)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order) OrderOutput {
	return OrderOutput{
		ID:                       o.ID,
		ListingID:                o.ListingID,
		BuyerID:                  o.BuyerID,
		Status:                   string(o.Status),
		DeliveryStatus:           string(o.DeliveryStatus),
		AmountCents:              o.AmountCents,
		PaymentMethod:            string(o.PaymentMethod),
		ExternalPaymentReference: o.ExternalPaymentReference,
		CreatedAt:                o.CreatedAt,
		PaidAt:                   o.PaidAt,
		ReleasedAt:               o.ReleasedAt,
		ShippedAt:                o.ShippedAt,
		DeliveredAt:              o.DeliveredAt,
		ConfirmedAt:              o.ConfirmedAt,
	}
}
