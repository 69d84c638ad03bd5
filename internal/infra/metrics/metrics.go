package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EscrowMetricsはエスクロー処理のPrometheusメトリクス。
// nilレシーバでも落ちないので、テストではnilのまま渡せる。
type EscrowMetrics struct {
	//webhook受信数（result: held / duplicate / ignored / rejected）
	WebhooksReceivedTotal *prometheus.CounterVec

	//HELDになった注文
	OrdersHeldTotal       prometheus.Counter
	OrdersHeldAmountTotal prometheus.Counter

	//リリース・返金
	ReleasesTotal prometheus.Counter
	RefundsTotal  prometheus.Counter

	//手数料・出品者取り分の累計
	PlatformFeeTotal  prometheus.Counter
	SellerPayoutTotal prometheus.Counter

	//ゲートウェイ呼び出しの失敗（op: transfer / refund）
	GatewayErrorsTotal *prometheus.CounterVec
}

func NewEscrowMetrics() *EscrowMetrics {
	return &EscrowMetrics{
		WebhooksReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_webhooks_received_total",
				Help: "Payment webhooks received, by processing result",
			},
			[]string{"result"},
		),
		OrdersHeldTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_orders_held_total",
			Help: "Orders transitioned to HELD",
		}),
		OrdersHeldAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_orders_held_amount_cents_total",
			Help: "Captured amount held in escrow, in cents",
		}),
		ReleasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_releases_total",
			Help: "Orders released to sellers (HELD to PAID)",
		}),
		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_refunds_total",
			Help: "Orders refunded to buyers (HELD to REFUNDED)",
		}),
		PlatformFeeTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_platform_fee_cents_total",
			Help: "Platform fee collected on released orders, in cents",
		}),
		SellerPayoutTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrow_seller_payout_cents_total",
			Help: "Amount transferred to sellers, in cents",
		}),
		GatewayErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_gateway_errors_total",
				Help: "Payment gateway call failures, by operation",
			},
			[]string{"op"},
		),
	}
}

func (m *EscrowMetrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksReceivedTotal.WithLabelValues(result).Inc()
}

func (m *EscrowMetrics) RecordHeld(amountCents int64) {
	if m == nil {
		return
	}
	m.OrdersHeldTotal.Inc()
	m.OrdersHeldAmountTotal.Add(float64(amountCents))
}

func (m *EscrowMetrics) RecordRelease(platformFeeCents, sellerAmountCents int64) {
	if m == nil {
		return
	}
	m.ReleasesTotal.Inc()
	m.PlatformFeeTotal.Add(float64(platformFeeCents))
	m.SellerPayoutTotal.Add(float64(sellerAmountCents))
}

func (m *EscrowMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.RefundsTotal.Inc()
}

func (m *EscrowMetrics) RecordGatewayError(op string) {
	if m == nil {
		return
	}
	m.GatewayErrorsTotal.WithLabelValues(op).Inc()
}
