// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// POST /orders
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err, "order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderPlaced),
		"order":   order,
	})
}

// GET /orders
func (h *OrderHandler) GetMyOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params))
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID, userID, isAdmin(c))
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.SuccessResponse(c, order)
}

// GET /orders/:id/items
func (h *OrderHandler) GetOrderItems(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	items, err := h.orderService.GetOrderItems(c.Request.Context(), orderID, userID, isAdmin(c))
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.SuccessResponse(c, items)
}

// GET /orders/:id/invoice
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.orderService.GetInvoice(c.Request.Context(), orderID, userID, isAdmin(c))
	if err != nil {
		respondError(c, err, "invoice")
		return
	}
	utils.SuccessResponse(c, invoice)
}

// GET /admin/orders
func (h *OrderHandler) AdminGetOrders(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	filter := services.OrderFilter{
		Status:     models.OrderStatus(c.Query("status")),
		Pagination: utils.GetPaginationParams(c),
	}

	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "user_id"), nil)
			return
		}
		filter.UserID = &userID
	}
	if from := c.Query("date_from"); from != "" {
		parsed, err := utils.ParseCalendarDate(from)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "date_from"), nil)
			return
		}
		filter.DateFrom = &parsed
	}
	if to := c.Query("date_to"); to != "" {
		parsed, err := utils.ParseCalendarDate(to)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "date_to"), nil)
			return
		}
		// date_to is inclusive
		end := parsed.AddDate(0, 0, 1)
		filter.DateTo = &end
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, filter.Pagination))
}

// PUT /admin/orders/:id/confirm
func (h *OrderHandler) ConfirmOrder(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.ConfirmOrder(c.Request.Context(), orderID, adminID)
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyOrderConfirmed, order)
}

// PUT /admin/orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, &req, adminID)
	if err != nil {
		respondError(c, err, "order")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyOrderStatusUpdated, order)
}
