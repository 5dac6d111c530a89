package api

import (
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/auth"
	"github.com/shiramwangi/gawa/internal/service"
)

type OrderHandler struct {
	orderService    *service.OrderService
	deliveryService *service.DeliveryService
}

func NewOrderHandler(orderService *service.OrderService, deliveryService *service.DeliveryService) *OrderHandler {
	return &OrderHandler{orderService: orderService, deliveryService: deliveryService}
}

// CreateOrder --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	req := service.CreateOrderRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	req.IdempotencyKey = idempotencyKey(c)

	order, err := h.orderService.CreateOrder(c.Request().Context(), userID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(201, order)
}

// ListOrders --> GET /orders?status=&limit=&offset=
func (h *OrderHandler) ListOrders(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid limit"})
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid offset"})
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), c.QueryParam("status"), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, orders)
}

// GetOrder --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}
	order, err := h.orderService.GetOrder(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, order)
}

// CancelOrder --> DELETE /orders/:id
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.CancelOrder(c.Request().Context(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, order)
}

type contributionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AddContribution --> POST /orders/:id/contributions
func (h *OrderHandler) AddContribution(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}
	req := contributionRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	contribution, err := h.orderService.ApplyContribution(c.Request().Context(), id, userID, req.Amount, idempotencyKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(201, contribution)
}

// GetDelivery --> GET /orders/:id/delivery
func (h *OrderHandler) GetDelivery(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}
	delivery, err := h.deliveryService.GetForOrder(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, delivery)
}
