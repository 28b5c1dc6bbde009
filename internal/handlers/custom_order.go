// internal/handlers/custom_order.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type CustomOrderHandler struct {
	customOrderService  *services.CustomOrderService
	cancellationService *services.CancellationService
}

func NewCustomOrderHandler(customOrderService *services.CustomOrderService, cancellationService *services.CancellationService) *CustomOrderHandler {
	return &CustomOrderHandler{
		customOrderService:  customOrderService,
		cancellationService: cancellationService,
	}
}

// POST /custom-orders (multipart, design files under "images")
func (h *CustomOrderHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CustomOrderRequest
	if !bindForm(c, &req) {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}

	order, err := h.customOrderService.Submit(c.Request.Context(), userID, &req, form.File["images"])
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeyCustomOrderSubmitted),
		"custom_order": order,
	})
}

// GET /custom-orders
func (h *CustomOrderHandler) GetMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orders, err := h.customOrderService.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.SuccessResponse(c, orders)
}

// GET /custom-orders/:ref and GET /admin/custom-orders/:ref
func (h *CustomOrderHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	order, err := h.customOrderService.Get(c.Request.Context(), c.Param("ref"), userID, isAdmin(c))
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.SuccessResponse(c, order)
}

// POST /custom-orders/:ref/payment (multipart, receipt under "payment_proof")
func (h *CustomOrderHandler) SubmitPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CustomPaymentRequest
	if !bindForm(c, &req) {
		return
	}
	proof, err := c.FormFile("payment_proof")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}

	payment, err := h.customOrderService.SubmitPayment(c.Request.Context(), userID, c.Param("ref"), &req, proof)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyCustomOrderPaymentSubmitted),
		"payment": payment,
	})
}

// POST /custom-orders/:ref/cancellation
func (h *CustomOrderHandler) RequestCancellation(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CancellationRequestInput
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.cancellationService.RequestCustom(c.Request.Context(), userID, c.Param("ref"), &req)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyCancellationRequested),
		"request": request,
	})
}

// POST /custom-orders/:ref/received
func (h *CustomOrderHandler) MarkReceived(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	order, err := h.customOrderService.MarkReceived(c.Request.Context(), userID, c.Param("ref"))
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyCustomOrderReceived, order)
}

// GET /admin/custom-orders
func (h *CustomOrderHandler) AdminList(c *gin.Context) {
	filter := services.CustomOrderFilter{
		Status:           models.CustomOrderStatus(c.Query("status")),
		PaymentStatus:    models.CustomPaymentStatus(c.Query("payment_status")),
		Search:           c.Query("search"),
		PaginationParams: utils.GetPaginationParams(c),
	}

	orders, total, err := h.customOrderService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, filter.PaginationParams))
}

// PUT /admin/custom-orders/:ref/status
func (h *CustomOrderHandler) Review(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ReviewCustomOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.customOrderService.Review(c.Request.Context(), c.Param("ref"), adminID, &req)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyCustomOrderReviewed, order)
}

type cancelCustomOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

// POST /admin/custom-orders/:ref/cancel
func (h *CustomOrderHandler) Cancel(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req cancelCustomOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.customOrderService.Cancel(c.Request.Context(), c.Param("ref"), &adminID, req.Reason)
	if err != nil {
		respondError(c, err, "custom_order")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyCustomOrderCancelled, order)
}

// GET /admin/custom-payments/pending
func (h *CustomOrderHandler) PendingPayments(c *gin.Context) {
	payments, err := h.customOrderService.PendingPayments(c.Request.Context())
	if err != nil {
		respondError(c, err, "custom_payment")
		return
	}
	utils.SuccessResponse(c, payments)
}

type paymentDecisionRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// PUT /admin/custom-payments/:id/approve
func (h *CustomOrderHandler) ApprovePayment(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	paymentID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req paymentDecisionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.customOrderService.VerifyPayment(c.Request.Context(), paymentID, adminID, req.Notes)
	if err != nil {
		respondError(c, err, "custom_payment")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyCustomOrderPaymentVerified, order)
}

// PUT /admin/custom-payments/:id/reject
func (h *CustomOrderHandler) RejectPayment(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	paymentID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req paymentDecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.customOrderService.RejectPayment(c.Request.Context(), paymentID, adminID, req.Notes)
	if err != nil {
		respondError(c, err, "custom_payment")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyCustomOrderPaymentRejected, payment)
}
