package handler

import (
	"io"
	"net/http"

	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 決済プロバイダからのwebhook入口。
// 認証はJWTではなく署名ヘッダで行う。
type WebhookHandler struct {
	uc *usecase.WebhookUsecase
}

func NewWebhookHandler(uc *usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payment", h.payment)
}

func (h *WebhookHandler) payment(c echo.Context) error {
	//署名検証は生のbodyに対して行うのでBindは使わない
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	signature := c.Request().Header.Get("X-Webhook-Signature")

	out, err := h.uc.ProcessPaymentEvent(c.Request().Context(), rawBody, signature)
	if err != nil {
		return writeError(c, err)
	}

	switch {
	case out.Duplicate:
		return c.JSON(http.StatusOK, SuccessResponse{Message: "duplicate"})
	case out.Ignored:
		return c.JSON(http.StatusOK, SuccessResponse{Message: "ignored"})
	default:
		return c.JSON(http.StatusOK, SuccessResponse{Message: "processed"})
	}
}
