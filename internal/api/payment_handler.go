package api

import (
	"io"

	"github.com/labstack/echo/v4"

	"github.com/shiramwangi/gawa/internal/auth"
	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/service"
)

const maxCallbackBytes = 1 << 20

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type paymentResponse struct {
	Status        entity.PaymentStatus `json:"status"`
	TransactionID string               `json:"transaction_id"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

func toPaymentResponse(p *entity.Payment) paymentResponse {
	return paymentResponse{Status: p.Status, TransactionID: p.Reference, FailureReason: p.FailureReason}
}

// InitPayment --> POST /payments/init
func (h *PaymentHandler) InitPayment(c echo.Context) error {
	req := service.InitPaymentRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	if req.UserID != 0 && req.UserID != userID {
		return c.JSON(403, map[string]string{"error": "user_id does not match token"})
	}
	req.UserID = userID

	payment, err := h.paymentService.InitPayment(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, toPaymentResponse(payment))
}

// GetPayment --> GET /payments/:transaction_id
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	payment, err := h.paymentService.GetPayment(c.Request().Context(), c.Param("transaction_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, toPaymentResponse(payment))
}

// Webhook --> POST /payments/webhook/:provider
// Providers retry anything but a 200, so every outcome is acknowledged with 200.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
	if err != nil {
		logger.Warn().Err(err).Msg("could not read callback body")
		return c.JSON(200, service.ReconciliationResult{Status: service.ReconcileError, Message: "unreadable payload"})
	}
	res := h.paymentService.HandleCallback(c.Request().Context(), c.Param("provider"), body)
	return c.JSON(200, res)
}
