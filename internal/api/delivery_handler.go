package api

import (
	"github.com/labstack/echo/v4"

	"github.com/shiramwangi/gawa/internal/auth"
	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/service"
)

type DeliveryHandler struct {
	deliveryService *service.DeliveryService
}

func NewDeliveryHandler(deliveryService *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

type statusRequest struct {
	Status           entity.DeliveryStatus `json:"status"`
	DeliveryPersonID *int64                `json:"delivery_person_id"`
}

// UpdateStatus --> PATCH /deliveries/:id/status
func (h *DeliveryHandler) UpdateStatus(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}
	req := statusRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	delivery, err := h.deliveryService.AdvanceStatus(c.Request().Context(), id, req.Status, req.DeliveryPersonID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, delivery)
}

type ratingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// Rate --> POST /deliveries/:id/rating
func (h *DeliveryHandler) Rate(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}
	req := ratingRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	delivery, err := h.deliveryService.Rate(c.Request().Context(), id, userID, req.Rating, req.Feedback)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(200, delivery)
}
