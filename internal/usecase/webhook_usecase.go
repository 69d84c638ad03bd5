package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/infra/metrics"
	repo "app/internal/repository"
)

// プロバイダから届く生のイベント。
type paymentEventPayload struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Provider          string `json:"provider"`
	OrderID           int64  `json:"order_id"`
	ExternalReference string `json:"external_reference"`
	AmountCents       int64  `json:"amount_cents"`
}

type WebhookOutcome struct {
	//未知のイベント種別。受け取って無視（200）
	Ignored bool
	//重複配信。no-opで200
	Duplicate bool
}

// WebhookUsecaseはwebhookの入口。
// 署名検証→パース→状態遷移の順。検証に落ちたら何も書かない。
type WebhookUsecase struct {
	escrow  *EscrowUsecase
	gw      gateway.PaymentGateway
	events  repo.WebhookEventRepository
	metrics *metrics.EscrowMetrics
}

func NewWebhookUsecase(
	escrow *EscrowUsecase,
	gw gateway.PaymentGateway,
	events repo.WebhookEventRepository,
	m *metrics.EscrowMetrics,
) *WebhookUsecase {
	return &WebhookUsecase{escrow: escrow, gw: gw, events: events, metrics: m}
}

// 入金確定イベントとして扱う種別
func isCaptureEventType(t string) bool {
	switch t {
	case "payment.captured", "payment_intent.succeeded", "checkout.completed":
		return true
	}
	return false
}

func (u *WebhookUsecase) ProcessPaymentEvent(ctx context.Context, rawBody []byte, signature string) (WebhookOutcome, error) {
	//署名が検証できないものは捨てる（状態は一切触らない）
	if strings.TrimSpace(signature) == "" || !u.gw.VerifySignature(rawBody, signature) {
		u.metrics.RecordWebhook("rejected")
		return WebhookOutcome{}, NewHTTPError(http.StatusBadRequest, "unauthenticated webhook")
	}

	var payload paymentEventPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		u.metrics.RecordWebhook("rejected")
		return WebhookOutcome{}, NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	//将来のイベント種別が来ても処理を壊さない。受けて無視
	if !isCaptureEventType(payload.Type) {
		u.metrics.RecordWebhook("ignored")
		return WebhookOutcome{Ignored: true}, nil
	}

	out, err := u.escrow.ConfirmCapture(ctx, CaptureEvent{
		Provider:          payload.Provider,
		EventID:           payload.ID,
		EventType:         payload.Type,
		OrderID:           payload.OrderID,
		ExternalReference: payload.ExternalReference,
		AmountCents:       payload.AmountCents,
		PayloadJSON:       string(rawBody),
	})
	if err != nil {
		//金額不一致は調査用にイベントを残してから409を返す
		if he, ok := AsHTTPError(err); ok && he.Status == http.StatusConflict && he.Message == "amount mismatch" {
			u.recordFailedEvent(ctx, payload, rawBody, he.Message)
			u.metrics.RecordWebhook("mismatch")
			return WebhookOutcome{}, err
		}
		u.metrics.RecordWebhook("error")
		return WebhookOutcome{}, err
	}

	if out.Duplicate {
		u.metrics.RecordWebhook("duplicate")
		return WebhookOutcome{Duplicate: true}, nil
	}

	u.metrics.RecordWebhook("held")
	return WebhookOutcome{}, nil
}

// 失敗イベントの記録（best effort。失敗しても本流には影響させない）
func (u *WebhookUsecase) recordFailedEvent(ctx context.Context, payload paymentEventPayload, rawBody []byte, reason string) {
	if payload.ID == "" {
		return
	}
	_ = u.events.Create(ctx, model.WebhookEvent{
		Provider:        payload.Provider,
		ProviderEventID: payload.ID,
		EventType:       payload.Type,
		OrderID:         payload.OrderID,
		PayloadJSON:     string(rawBody),
		ProcessingError: reason,
	})
}
