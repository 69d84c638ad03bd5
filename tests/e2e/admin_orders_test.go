package e2e

import (
	"context"
	"net/http"
	"testing"
)

// 一般ユーザーは/adminに入れない
func Test_AdminOrders_Forbidden_ForNormalUser(t *testing.T) {
	c := NewTestClient(t)
	ctx := context.Background()

	user := registerAndLogin(t, c, ctx, uniqueEmail("e2e-admin-guard"))

	resp, body := c.doJSON(ctx, t, http.MethodGet, "/admin/orders", user.AccessToken, nil)
	requireStatus(t, resp, http.StatusForbidden, body)

	er := mustDecodeError(t, body)
	if er.Error != "admin only" {
		t.Fatalf("error mismatch want=admin only got=%s", er.Error)
	}

	//注文配下の資金操作も同じく管理者専用
	resp, body = c.doJSON(ctx, t, http.MethodPost, "/orders/1/release-funds", user.AccessToken, nil)
	requireStatus(t, resp, http.StatusForbidden, body)

	resp, body = c.doJSON(ctx, t, http.MethodPost, "/orders/1/refund", user.AccessToken, nil)
	requireStatus(t, resp, http.StatusForbidden, body)
}

func Test_AdminOrders_ListAndHeldSummary(t *testing.T) {
	c := NewTestClient(t)
	ctx := context.Background()

	//HELDの注文を1件作っておく
	seller := registerAndLogin(t, c, ctx, uniqueEmail("e2e-held-seller"))
	listingID := createListing(t, c, ctx, seller.AccessToken, "E2E-Held-"+uniqueRef("listing"), 7500)

	buyer := registerAndLogin(t, c, ctx, uniqueEmail("e2e-held-buyer"))
	order := placeOrder(t, c, ctx, buyer.AccessToken, listingID, "e2e-held-"+uniqueRef("idem"))

	resp, body := sendCaptureWebhook(t, c, ctx, uniqueRef("evt"), order.ID, uniqueRef("pi"), 7500)
	requireStatus(t, resp, http.StatusOK, body)

	admin := adminLogin(t, c, ctx)

	//全体一覧をstatusで絞れること
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/admin/orders?page=1&limit=50&status=HELD", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)

	var list []Order
	mustUnmarshal(t, body, &list)

	found := false
	for _, o := range list {
		if o.ID == order.ID {
			found = true
			if o.Status != "HELD" {
				t.Fatalf("order in HELD filter should be HELD, got=%s", o.Status)
			}
		}
	}
	if !found {
		t.Fatalf("held order %d not found in /admin/orders?status=HELD", order.ID)
	}

	//保留サマリー。合計は手数料＋出品者分と必ず一致する
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/admin/orders/held?page=1&limit=50", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)

	var held struct {
		Orders  []Order `json:"orders"`
		Summary struct {
			TotalOrders       int64 `json:"total_orders"`
			TotalHeldAmount   int64 `json:"total_held_amount"`
			TotalPlatformFees int64 `json:"total_platform_fees"`
			TotalSellerPayout int64 `json:"total_seller_payouts"`
		} `json:"summary"`
	}
	mustUnmarshal(t, body, &held)

	if held.Summary.TotalOrders < 1 {
		t.Fatalf("held summary should contain at least 1 order")
	}
	if held.Summary.TotalPlatformFees+held.Summary.TotalSellerPayout != held.Summary.TotalHeldAmount {
		t.Fatalf("summary must balance: fees=%d payouts=%d held=%d",
			held.Summary.TotalPlatformFees, held.Summary.TotalSellerPayout, held.Summary.TotalHeldAmount)
	}

	//不正なページングは400
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/admin/orders?page=0", admin, nil)
	requireStatus(t, resp, http.StatusBadRequest, body)
}

// 返金すると全額が買い手に戻り、出品が再公開される
func Test_AdminOrders_Refund_ReactivatesListing(t *testing.T) {
	c := NewTestClient(t)
	ctx := context.Background()

	seller := registerAndLogin(t, c, ctx, uniqueEmail("e2e-refund-seller"))
	listingID := createListing(t, c, ctx, seller.AccessToken, "E2E-Refund-"+uniqueRef("listing"), 6000)

	buyer := registerAndLogin(t, c, ctx, uniqueEmail("e2e-refund-buyer"))
	order := placeOrder(t, c, ctx, buyer.AccessToken, listingID, "e2e-refund-"+uniqueRef("idem"))

	resp, body := sendCaptureWebhook(t, c, ctx, uniqueRef("evt"), order.ID, uniqueRef("pi"), 6000)
	requireStatus(t, resp, http.StatusOK, body)

	admin := adminLogin(t, c, ctx)

	resp, body = c.doJSON(ctx, t, http.MethodPost, "/orders/"+toStr(order.ID)+"/refund", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)

	var refund struct {
		Refund struct {
			AmountCents int64 `json:"amount_cents"`
		} `json:"refund"`
	}
	mustUnmarshal(t, body, &refund)

	//返金は常に全額（手数料を差し引かない）
	if refund.Refund.AmountCents != 6000 {
		t.Fatalf("refund should be full amount 6000, got=%d", refund.Refund.AmountCents)
	}

	//買い手から見て注文がREFUNDEDになっていること
	detail := getOrderDetail(t, c, ctx, buyer.AccessToken, order.ID)
	if detail.Status != "REFUNDED" {
		t.Fatalf("order should be REFUNDED, got=%s", detail.Status)
	}

	//出品がACTIVEに戻っていること
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/listings/"+toStr(listingID), "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	var l Listing
	mustUnmarshal(t, body, &l)
	if l.Status != "ACTIVE" {
		t.Fatalf("listing should be ACTIVE after refund, got=%s", l.Status)
	}

	//REFUNDED後のリリースは409
	resp, body = c.doJSON(ctx, t, http.MethodPost, "/orders/"+toStr(order.ID)+"/release-funds", admin, nil)
	requireStatus(t, resp, http.StatusConflict, body)
}
