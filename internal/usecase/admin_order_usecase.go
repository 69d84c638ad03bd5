package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/infra/metrics"
	"app/internal/rbac"
	repo "app/internal/repository"
)

// AdminOrderUsecaseは管理者だけが触れるエスクロー操作の入口。
// capabilityチェック→状態遷移→監査ログの順で、チェックに落ちたら何も書かない。
type AdminOrderUsecase struct {
	tx             repo.TransactionManager
	auditRepo      repo.AuditLogRepository
	checker        rbac.Checker
	gw             gateway.PaymentGateway
	feeBasisPoints int
	metrics        *metrics.EscrowMetrics
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	auditRepo repo.AuditLogRepository,
	checker rbac.Checker,
	gw gateway.PaymentGateway,
	feeBasisPoints int,
	m *metrics.EscrowMetrics,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		tx:             tx,
		auditRepo:      auditRepo,
		checker:        checker,
		gw:             gw,
		feeBasisPoints: feeBasisPoints,
		metrics:        m,
	}
}

type TransferOutput struct {
	TransferID        string `json:"transfer_id"`
	SellerAmountCents int64  `json:"seller_amount_cents"`
	PlatformFeeCents  int64  `json:"platform_fee_cents"`
}

type ReleaseFundsOutput struct {
	Transfer TransferOutput `json:"transfer"`
	Order    struct {
		Status string `json:"status"`
	} `json:"order"`
}

type RefundOutput struct {
	Refund gateway.RefundResult `json:"refund"`
}

type HeldSummary struct {
	TotalOrders       int64 `json:"total_orders"`
	TotalHeldAmount   int64 `json:"total_held_amount"`
	TotalPlatformFees int64 `json:"total_platform_fees"`
	TotalSellerPayout int64 `json:"total_seller_payouts"`
}

type HeldOrdersOutput struct {
	Orders  []OrderOutput `json:"orders"`
	Summary HeldSummary   `json:"summary"`
}

// 資金リリース。HELD→PAID。
// ゲートウェイ送金が成功してからローカルをコミットする。
// 送金が失敗したら注文はHELDのまま（同じキーで再試行できる）。
func (u *AdminOrderUsecase) ReleaseFunds(ctx context.Context, actorID int64, orderID int64) (ReleaseFundsOutput, error) {
	var out ReleaseFundsOutput

	if actorID <= 0 {
		return out, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return out, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	ok, err := u.checker.HasCapability(ctx, actorID, rbac.CapReleaseFunds)
	if err != nil {
		return out, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return out, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	//前提チェックと送金先の読み出し
	var (
		order         model.Order
		payoutAccount string
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.Status != model.OrderStatusHeld {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}

		l, err := r.Listings().FindByID(ctx, o.ListingID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		seller, err := r.Users().FindByID(ctx, l.SellerID)
		if err != nil || seller == nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if seller.PayoutAccount == "" {
			//送金先がないと成立しない。管理者対応行き
			return NewHTTPError(http.StatusUnprocessableEntity, "seller payout account missing")
		}

		order = o
		payoutAccount = seller.PayoutAccount
		return nil
	})
	if err != nil {
		return out, err
	}

	platformFee, sellerAmount, err := ComputeSplit(order.AmountCents, u.feeBasisPoints)
	if err != nil {
		return out, NewHTTPError(http.StatusInternalServerError, "fee computation failed")
	}

	//ゲートウェイ送金。idempotency keyは注文IDから決定的に作る
	transfer, err := u.gw.TransferToSeller(ctx, order.ID, payoutAccount, sellerAmount, gateway.ReleaseIdempotencyKey(order.ID))
	if err != nil {
		u.metrics.RecordGatewayError("transfer")
		return out, gatewayHTTPError(err)
	}

	//送金成功後にだけローカルを書く
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := time.Now()
		ok, err := r.Orders().MarkPaid(ctx, order.ID, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			//並行リクエストが先に勝った。送金自体はidempotency keyで重複しない
			return NewHTTPError(http.StatusConflict, "conflict")
		}

		beforeJSON := `{"status":"` + string(model.OrderStatusHeld) + `"}`
		afterJSON := fmt.Sprintf(`{"status":"PAID","transfer_id":%q,"seller_amount_cents":%d,"platform_fee_cents":%d}`,
			transfer.TransferID, sellerAmount, platformFee)
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorID,
			Action:       model.AuditActionReleaseFunds,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   order.ID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
	if err != nil {
		return out, err
	}

	u.metrics.RecordRelease(platformFee, sellerAmount)

	out.Transfer = TransferOutput{
		TransferID:        transfer.TransferID,
		SellerAmountCents: sellerAmount,
		PlatformFeeCents:  platformFee,
	}
	out.Order.Status = string(model.OrderStatusPaid)
	return out, nil
}

// 返金。HELD→REFUNDED。買い手に全額戻す。
func (u *AdminOrderUsecase) Refund(ctx context.Context, actorID int64, orderID int64) (RefundOutput, error) {
	var out RefundOutput

	if actorID <= 0 {
		return out, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return out, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	ok, err := u.checker.HasCapability(ctx, actorID, rbac.CapRefundOrder)
	if err != nil {
		return out, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return out, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	var order model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.Status != model.OrderStatusHeld {
			return NewHTTPError(http.StatusConflict, "invalid state transition")
		}
		if o.ExternalPaymentReference == nil {
			return NewHTTPError(http.StatusInternalServerError, "missing payment reference")
		}

		order = o
		return nil
	})
	if err != nil {
		return out, err
	}

	refund, err := u.gw.Refund(ctx, order.ID, *order.ExternalPaymentReference, order.AmountCents, gateway.RefundIdempotencyKey(order.ID))
	if err != nil {
		u.metrics.RecordGatewayError("refund")
		return out, gatewayHTTPError(err)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Orders().MarkRefunded(ctx, order.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, "conflict")
		}

		//出品を買える状態に戻す
		if _, err := r.Listings().Reactivate(ctx, order.ListingID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		beforeJSON := `{"status":"` + string(model.OrderStatusHeld) + `"}`
		afterJSON := fmt.Sprintf(`{"status":"REFUNDED","refund_id":%q,"amount_cents":%d}`,
			refund.RefundID, refund.AmountCents)
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorID,
			Action:       model.AuditActionRefundOrder,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   order.ID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
	if err != nil {
		return out, err
	}

	u.metrics.RecordRefund()

	out.Refund = refund
	return out, nil
}

// 保留中ダッシュボード。HELD注文の一覧＋集計。
// 金額の取り分は保存せず、毎回AmountCentsから計算する。
func (u *AdminOrderUsecase) HeldOrders(ctx context.Context, actorID int64, page int, limit int) (HeldOrdersOutput, error) {
	var out HeldOrdersOutput

	if actorID <= 0 {
		return out, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return out, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return out, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	ok, err := u.checker.HasCapability(ctx, actorID, rbac.CapViewHeld)
	if err != nil {
		return out, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return out, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:   page,
			Limit:  limit,
			Status: string(model.OrderStatusHeld),
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		amounts, err := r.Orders().HeldAmounts(ctx)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out.Orders = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			out.Orders = append(out.Orders, toOrderOutput(o))
		}

		//floorは注文ごと（合計に掛けると1セントずれる）
		var summary HeldSummary
		for _, amount := range amounts {
			fee, seller, err := ComputeSplit(amount, u.feeBasisPoints)
			if err != nil {
				continue
			}
			summary.TotalOrders++
			summary.TotalHeldAmount += amount
			summary.TotalPlatformFees += fee
			summary.TotalSellerPayout += seller
		}
		out.Summary = summary
		return nil
	})

	if err != nil {
		return HeldOrdersOutput{}, err
	}
	return out, nil
}

// 注文一覧（管理者用）
func (u *AdminOrderUsecase) List(ctx context.Context, actorID int64, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	if actorID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	ok, err := u.checker.HasCapability(ctx, actorID, rbac.CapViewHeld)
	if err != nil {
		return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return []OrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	var outs []OrderOutput

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
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

// 監査ログ一覧（管理者用）。誰がいつ資金を動かしたかを追う。
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, actorID int64, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if actorID <= 0 {
		return []model.AuditLog{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if f.Limit < 0 || f.Limit > 100 {
		return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	ok, err := u.checker.HasCapability(ctx, actorID, rbac.CapViewAudit)
	if err != nil {
		return []model.AuditLog{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return []model.AuditLog{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return logs, nil
}

// ゲートウェイ失敗のHTTP区分。
// 一時障害は502（再試行可）、恒久的な拒否は422で管理者対応に回す。
func gatewayHTTPError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrGatewayRejected):
		return NewHTTPError(http.StatusUnprocessableEntity, "gateway rejected")
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return NewHTTPError(http.StatusBadGateway, "gateway unavailable")
	case errors.Is(err, gateway.ErrGatewayAuth):
		return NewHTTPError(http.StatusBadGateway, "gateway auth failure")
	default:
		return NewHTTPError(http.StatusBadGateway, "gateway error")
	}
}
