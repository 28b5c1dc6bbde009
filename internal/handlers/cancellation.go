// internal/handlers/cancellation.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type CancellationHandler struct {
	cancellationService *services.CancellationService
}

func NewCancellationHandler(cancellationService *services.CancellationService) *CancellationHandler {
	return &CancellationHandler{cancellationService: cancellationService}
}

// POST /orders/:id/cancellation
func (h *CancellationHandler) RequestCancellation(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.CancellationRequestInput
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.cancellationService.Request(c.Request.Context(), userID, orderID, &req)
	if err != nil {
		respondError(c, err, "order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyCancellationRequested),
		"request": request,
	})
}

// GET /cancellations/me
func (h *CancellationHandler) GetMyCancellations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.cancellationService.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "cancellation")
		return
	}
	utils.SuccessResponse(c, requests)
}

// GET /admin/cancellations
func (h *CancellationHandler) GetCancellations(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	status := models.CancellationStatus(c.Query("status"))

	requests, total, err := h.cancellationService.List(c.Request.Context(), status, params)
	if err != nil {
		respondError(c, err, "cancellation")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}

func (h *CancellationHandler) process(c *gin.Context, approve bool) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	// the body is optional
	var req services.ProcessCancellationRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	var (
		request *models.CancellationRequest
		err     error
		key     = i18n.KeyCancellationRejected
	)
	if approve {
		request, err = h.cancellationService.Approve(c.Request.Context(), requestID, adminID, &req)
		key = i18n.KeyCancellationApproved
	} else {
		request, err = h.cancellationService.Reject(c.Request.Context(), requestID, adminID, &req)
	}
	if err != nil {
		respondError(c, err, "cancellation")
		return
	}
	utils.SuccessMessageResponse(c, key, request)
}

// PUT /admin/cancellations/:id/approve
func (h *CancellationHandler) ApproveCancellation(c *gin.Context) {
	h.process(c, true)
}

// PUT /admin/cancellations/:id/reject
func (h *CancellationHandler) RejectCancellation(c *gin.Context) {
	h.process(c, false)
}
