package usecase

import (
	"context"
	"net/http"
	"time"

	"app/internal/domain/model"
	"app/internal/infra/metrics"
	repo "app/internal/repository"
)

// 正規化済みのwebhookイベント。handler側でパースしてここに渡す。
type CaptureEvent struct {
	Provider          string
	EventID           string
	EventType         string
	OrderID           int64
	ExternalReference string
	AmountCents       int64
	PayloadJSON       string
}

type ConfirmCaptureOutput struct {
	//trueなら重複イベント（no-opで200を返す）
	Duplicate bool
	Order     model.Order
}

// EscrowUsecaseはエスクローの状態遷移エンジン。
// 遷移はすべてcheck-and-setで書くので、同時リクエストでも二重遷移しない。
type EscrowUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
	metrics   *metrics.EscrowMetrics
}

func NewEscrowUsecase(tx repo.TransactionManager, auditRepo repo.AuditLogRepository, m *metrics.EscrowMetrics) *EscrowUsecase {
	return &EscrowUsecase{tx: tx, auditRepo: auditRepo, metrics: m}
}

// 入金確定（webhook起点）。PENDING→HELD。
// 同じexternalReferenceが既に入っていれば重複としてno-op成功。
// 金額が合わなければ409で止めてPENDINGのまま残す（勝手に調整しない）。
func (u *EscrowUsecase) ConfirmCapture(ctx context.Context, ev CaptureEvent) (ConfirmCaptureOutput, error) {
	if ev.OrderID <= 0 || ev.ExternalReference == "" || ev.AmountCents <= 0 {
		return ConfirmCaptureOutput{}, NewHTTPError(http.StatusBadRequest, "invalid event")
	}

	var out ConfirmCaptureOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//イベントID単位の重複チェック
		if ev.EventID != "" {
			_, found, err := r.WebhookEvents().FindByProviderEventID(ctx, ev.Provider, ev.EventID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if found {
				out.Duplicate = true
				return nil
			}
		}

		//参照ID単位の重複チェック（こちらが本命の冪等性の土台）
		existing, found, err := r.Orders().FindByExternalReference(ctx, ev.ExternalReference)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			out.Duplicate = true
			out.Order = existing
			return nil
		}

		o, err := r.Orders().FindByID(ctx, ev.OrderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.Status != model.OrderStatusPending {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}

		//金額チェック。不一致は手動調査行き
		if o.AmountCents != ev.AmountCents {
			return NewHTTPError(http.StatusConflict, "amount mismatch")
		}

		now := time.Now()
		ok, err := r.Orders().MarkHeld(ctx, o.ID, ev.ExternalReference, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			//読みと書きの間で誰かが遷移させた
			return NewHTTPError(http.StatusConflict, "conflict")
		}

		//出品をSOLDへ。既にSOLDならそのまま
		if _, err := r.Listings().MarkSoldIfActive(ctx, o.ListingID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//処理済みイベントを記録
		if ev.EventID != "" {
			processedAt := now
			if err := r.WebhookEvents().Create(ctx, model.WebhookEvent{
				Provider:        ev.Provider,
				ProviderEventID: ev.EventID,
				EventType:       ev.EventType,
				OrderID:         o.ID,
				PayloadJSON:     ev.PayloadJSON,
				ProcessedAt:     &processedAt,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		o.Status = model.OrderStatusHeld
		o.ExternalPaymentReference = &ev.ExternalReference
		o.PaidAt = &now
		out.Order = o
		return nil
	})

	if err != nil {
		return ConfirmCaptureOutput{}, err
	}

	if !out.Duplicate {
		u.metrics.RecordHeld(out.Order.AmountCents)
	}
	return out, nil
}

// 買い手によるチェックアウト放棄。PENDING→CANCELLED。
func (u *EscrowUsecase) CancelPending(ctx context.Context, buyerID int64, orderID int64) error {
	if buyerID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//他人の注文は「存在しない扱い」にする
		if o.BuyerID != buyerID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		if o.Status != model.OrderStatusPending {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}

		ok, err := r.Orders().MarkCancelled(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, "conflict")
		}

		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  buyerID,
			Action:       model.AuditActionCancelOrder,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + string(model.OrderStatusPending) + `"}`,
			AfterJSON:    `{"status":"` + string(model.OrderStatusCancelled) + `"}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// 配送サブステータス。ship/deliverは出品者、confirmは買い手。
// リリース可否とは独立（管理者は配送未完了でもリリースできる）。

func (u *EscrowUsecase) MarkShipped(ctx context.Context, actorID int64, orderID int64) (model.Order, error) {
	return u.advanceDelivery(ctx, actorID, orderID, model.DeliveryStatusShipped, actorSeller)
}

func (u *EscrowUsecase) MarkDelivered(ctx context.Context, actorID int64, orderID int64) (model.Order, error) {
	return u.advanceDelivery(ctx, actorID, orderID, model.DeliveryStatusDelivered, actorSeller)
}

func (u *EscrowUsecase) ConfirmDelivery(ctx context.Context, actorID int64, orderID int64) (model.Order, error) {
	return u.advanceDelivery(ctx, actorID, orderID, model.DeliveryStatusConfirmed, actorBuyer)
}

type deliveryActor int

const (
	actorSeller deliveryActor = iota
	actorBuyer
)

func (u *EscrowUsecase) advanceDelivery(ctx context.Context, actorID int64, orderID int64, to model.DeliveryStatus, who deliveryActor) (model.Order, error) {
	if actorID <= 0 {
		return model.Order{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out model.Order

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//操作できる人かどうか
		switch who {
		case actorBuyer:
			if o.BuyerID != actorID {
				return NewHTTPError(http.StatusForbidden, "forbidden")
			}
		case actorSeller:
			l, err := r.Listings().FindByID(ctx, o.ListingID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if l.SellerID != actorID {
				return NewHTTPError(http.StatusForbidden, "forbidden")
			}
		}

		//終端の注文は動かせない
		if o.Status.Terminal() {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}

		//順番どおりかどうか
		if !o.DeliveryStatus.CanAdvanceTo(to) {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}

		now := time.Now()
		ok, err := r.Orders().AdvanceDelivery(ctx, orderID, o.DeliveryStatus, to, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, "conflict")
		}

		if err := o.AdvanceDelivery(to, now); err != nil {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}
		out = o
		return nil
	})

	if err != nil {
		return model.Order{}, err
	}
	return out, nil
}
