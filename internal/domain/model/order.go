package model

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusHeld      OrderStatus = "HELD"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type DeliveryStatus string

const (
	DeliveryStatusNotShipped DeliveryStatus = "NOT_SHIPPED"
	DeliveryStatusShipped    DeliveryStatus = "SHIPPED"
	DeliveryStatusDelivered  DeliveryStatus = "DELIVERED"
	DeliveryStatusConfirmed  DeliveryStatus = "CONFIRMED"
)

type PaymentMethod string

const (
	PaymentMethodStripe PaymentMethod = "STRIPE"
	PaymentMethodPaypal PaymentMethod = "PAYPAL"
)

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
	ErrUnknownStatus         = errors.New("unknown status")
	ErrDeliveryOutOfSequence = errors.New("delivery status out of sequence")
)

// 注文（エスクロー1件分）。listing1件に対してbuyer1人の購入。
type Order struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID int64 `gorm:"not null;index" json:"listing_id"`
	BuyerID   int64 `gorm:"not null;index" json:"buyer_id"`

	//確定金額。HELD以降は変更しない
	AmountCents   int64         `gorm:"not null" json:"amount_cents"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`

	//決済プロバイダ側の参照ID。webhook重複判定の基準
	ExternalPaymentReference *string `gorm:"type:varchar(255);uniqueIndex" json:"external_payment_reference,omitempty"`

	Status         OrderStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	DeliveryStatus DeliveryStatus `gorm:"type:varchar(20);not null" json:"delivery_status"`

	//二重送信防止キー（チェックアウト時）
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`

	//各1回だけ入るタイムスタンプ
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// 生成時の入力チェック
func (o *Order) Validate() error {
	if o.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	switch o.PaymentMethod {
	case PaymentMethodStripe, PaymentMethodPaypal:
	default:
		return ErrUnknownPaymentMethod
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusHeld, OrderStatusPaid,
		OrderStatusCancelled, OrderStatusRefunded:
	default:
		return ErrUnknownStatus
	}
	return nil
}

// 終端ステータスかどうか（PAID/CANCELLED/REFUNDEDは戻れない）
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// ステータス遷移が許可されているか
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return to == OrderStatusHeld || to == OrderStatusCancelled
	case OrderStatusHeld:
		return to == OrderStatusPaid || to == OrderStatusRefunded
	}
	return false
}

// 配送ステータスは順番どおりにしか進めない
func (s DeliveryStatus) CanAdvanceTo(to DeliveryStatus) bool {
	switch s {
	case DeliveryStatusNotShipped:
		return to == DeliveryStatusShipped
	case DeliveryStatusShipped:
		return to == DeliveryStatusDelivered
	case DeliveryStatusDelivered:
		return to == DeliveryStatusConfirmed
	}
	return false
}

// 配送の進行を適用する。前段のタイムスタンプが未設定なら失敗
func (o *Order) AdvanceDelivery(to DeliveryStatus, at time.Time) error {
	if !o.DeliveryStatus.CanAdvanceTo(to) {
		return ErrDeliveryOutOfSequence
	}

	switch to {
	case DeliveryStatusShipped:
		o.ShippedAt = &at
	case DeliveryStatusDelivered:
		if o.ShippedAt == nil {
			return ErrDeliveryOutOfSequence
		}
		o.DeliveredAt = &at
	case DeliveryStatusConfirmed:
		if o.DeliveredAt == nil {
			return ErrDeliveryOutOfSequence
		}
		o.ConfirmedAt = &at
	default:
		return ErrDeliveryOutOfSequence
	}

	o.DeliveryStatus = to
	return nil
}

// 配送進行ごとに入れるタイムスタンプのカラム名
func DeliveryTimestampColumn(to DeliveryStatus) string {
	switch to {
	case DeliveryStatusShipped:
		return "shipped_at"
	case DeliveryStatusDelivered:
		return "delivered_at"
	case DeliveryStatusConfirmed:
		return "confirmed_at"
	}
	return ""
}
