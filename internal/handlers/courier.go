// internal/handlers/courier.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type CourierHandler struct {
	courierService *services.CourierService
}

func NewCourierHandler(courierService *services.CourierService) *CourierHandler {
	return &CourierHandler{courierService: courierService}
}

// GET /admin/couriers
func (h *CourierHandler) GetCouriers(c *gin.Context) {
	couriers, err := h.courierService.List(c.Request.Context(), models.CourierStatus(c.Query("status")))
	if err != nil {
		respondError(c, err, "courier")
		return
	}
	utils.SuccessResponse(c, couriers)
}

// GET /admin/couriers/active
func (h *CourierHandler) GetActiveCouriers(c *gin.Context) {
	couriers, err := h.courierService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err, "courier")
		return
	}
	utils.SuccessResponse(c, couriers)
}

// POST /admin/couriers
func (h *CourierHandler) CreateCourier(c *gin.Context) {
	var req services.CourierRequest
	if !bindJSON(c, &req) {
		return
	}

	courier, err := h.courierService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "courier")
		return
	}
	utils.CreatedResponse(c, courier)
}

// PUT /admin/couriers/:id
func (h *CourierHandler) UpdateCourier(c *gin.Context) {
	courierID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.CourierRequest
	if !bindJSON(c, &req) {
		return
	}

	courier, err := h.courierService.Update(c.Request.Context(), courierID, &req)
	if err != nil {
		respondError(c, err, "courier")
		return
	}
	utils.SuccessResponse(c, courier)
}

// DELETE /admin/couriers/:id
func (h *CourierHandler) DeleteCourier(c *gin.Context) {
	courierID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	deleted, err := h.courierService.Delete(c.Request.Context(), courierID)
	if err != nil {
		respondError(c, err, "courier")
		return
	}

	key := i18n.KeyCourierDeleted
	if !deleted {
		key = i18n.KeyCourierDeactivated
	}
	utils.SuccessMessageResponse(c, key, gin.H{"deleted": deleted})
}

// GET /admin/couriers/:id/stats
func (h *CourierHandler) GetCourierStats(c *gin.Context) {
	courierID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.courierService.Stats(c.Request.Context(), courierID)
	if err != nil {
		respondError(c, err, "courier")
		return
	}
	utils.SuccessResponse(c, stats)
}
