package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taletoprint-backend/internal/fulfillment"
	"taletoprint-backend/internal/models"
	"taletoprint-backend/internal/store"
)

// OperatorService is the slice of the fulfillment service the operator
// console drives.
type OperatorService interface {
	Retry(ctx context.Context, orderID string) error
	Regenerate(ctx context.Context, orderID string) error
	Approve(ctx context.Context, orderID string) error
	Refund(ctx context.Context, orderID string) error
}

type OrdersHandler struct {
	orders  fulfillment.OrderStore
	service OperatorService
}

func NewOrdersHandler(orders fulfillment.OrderStore, service OperatorService) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		service: service,
	}
}

// GetOrder godoc
// @Summary     Order detail
// @Description Returns the full order record including metadata and audit trail.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.OrderResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id} [get]
func (h *OrdersHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Param("order_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to get order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, order.ToResponse())
}

// ListOrders godoc
// @Summary     List orders
// @Description Returns recent orders for the operator console.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.OrderListResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /orders [get]
func (h *OrdersHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to list orders",
			Message: err.Error(),
		})
		return
	}

	resp := models.OrderListResponse{Orders: make([]models.OrderSummary, 0, len(orders))}
	for i := range orders {
		resp.Orders = append(resp.Orders, orders[i].ToSummary())
	}

	c.JSON(http.StatusOK, resp)
}

// Retry godoc
// @Summary     Re-run the fulfillment pipeline
// @Description Clears pipeline artifacts and re-runs the full pipeline. Rejected for delivered or refunded orders.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ActionResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/retry [post]
func (h *OrdersHandler) Retry(c *gin.Context) {
	h.runAction(c, h.service.Retry)
}

// Regenerate godoc
// @Summary     Regenerate the HD image
// @Description Re-runs generation, composition and upload for a print-ready order, leaving partner submission untouched.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ActionResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/regenerate [post]
func (h *OrdersHandler) Regenerate(c *gin.Context) {
	h.runAction(c, h.service.Regenerate)
}

// Approve godoc
// @Summary     Approve and submit to the print partner
// @Description Releases an order held for approval and submits it to the print partner.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ActionResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/approve [post]
func (h *OrdersHandler) Approve(c *gin.Context) {
	h.runAction(c, h.service.Approve)
}

// Refund godoc
// @Summary     Refund the order
// @Description Refunds the payment and terminates the order. Irreversible; a second call is rejected.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ActionResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/refund [post]
func (h *OrdersHandler) Refund(c *gin.Context) {
	h.runAction(c, h.service.Refund)
}

func (h *OrdersHandler) runAction(c *gin.Context, action func(context.Context, string) error) {
	orderID := c.Param("order_id")

	if err := action(c.Request.Context(), orderID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, fulfillment.ErrWrongStatus),
			errors.Is(err, fulfillment.ErrTerminalStatus),
			errors.Is(err, fulfillment.ErrInvalidTransition),
			errors.Is(err, fulfillment.ErrAlreadyRefunded),
			errors.Is(err, fulfillment.ErrMissingAsset):
			status = http.StatusConflict
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "action failed",
			Message: err.Error(),
		})
		return
	}

	order, err := h.orders.GetOrder(orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "action succeeded but order reload failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.ActionResponse{
		OrderID: orderID,
		Status:  order.Status.String(),
	})
}
