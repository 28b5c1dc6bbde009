// internal/handlers/delivery.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type DeliveryHandler struct {
	deliveryService *services.DeliveryService
}

func NewDeliveryHandler(deliveryService *services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

// GET /admin/delivery/schedules
func (h *DeliveryHandler) GetSchedules(c *gin.Context) {
	filter := services.DeliveryFilter{
		Status:     models.DeliveryStatus(c.Query("status")),
		DateFrom:   c.Query("date_from"),
		DateTo:     c.Query("date_to"),
		CourierID:  queryUint(c, "courier_id"),
		OrderID:    queryUint(c, "order_id"),
		Pagination: utils.GetPaginationParams(c),
	}

	schedules, total, err := h.deliveryService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(schedules, total, filter.Pagination))
}

// POST /admin/delivery/schedules
func (h *DeliveryHandler) ScheduleDelivery(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ScheduleDeliveryRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, err := h.deliveryService.Schedule(c.Request.Context(), &req, adminID)
	if err != nil {
		respondError(c, err, "order")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyDeliveryScheduled),
		"schedule": schedule,
	})
}

// GET /admin/delivery/schedules/:id
func (h *DeliveryHandler) GetSchedule(c *gin.Context) {
	scheduleID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	schedule, err := h.deliveryService.Get(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	history, err := h.deliveryService.History(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"schedule": schedule,
		"history":  history,
	})
}

// PUT /admin/delivery/schedules/:id/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	scheduleID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateDeliveryStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, err := h.deliveryService.UpdateStatus(c.Request.Context(), scheduleID, &req, adminID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyDeliveryUpdated, schedule)
}

// PUT /admin/delivery/schedules/:id/courier
func (h *DeliveryHandler) AssignCourier(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	scheduleID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.AssignCourierRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, err := h.deliveryService.AssignCourier(c.Request.Context(), scheduleID, &req, adminID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyDeliveryUpdated, schedule)
}

// GET /admin/delivery/calendar?from=YYYY-MM-DD&to=YYYY-MM-DD
// Defaults to the next 30 days.
func (h *DeliveryHandler) GetCalendar(c *gin.Context) {
	today := time.Now()
	from := c.DefaultQuery("from", utils.FormatCalendarDate(today))
	to := c.Query("to")
	if to == "" {
		start, err := utils.ParseCalendarDate(from)
		if err != nil {
			start = today
		}
		to = utils.FormatCalendarDate(start.AddDate(0, 0, 30))
	}

	days, err := h.deliveryService.Calendar(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessResponse(c, days)
}

// PUT /admin/delivery/calendar/:date
func (h *DeliveryHandler) SetAvailability(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CalendarAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}

	day, err := h.deliveryService.SetAvailability(c.Request.Context(), c.Param("date"), &req, adminID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyDeliveryCalendarUpdated, day)
}

// POST /admin/delivery/calendar/unavailable
func (h *DeliveryHandler) MarkUnavailable(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.MarkUnavailableRequest
	if !bindJSON(c, &req) {
		return
	}

	day, err := h.deliveryService.MarkUnavailable(c.Request.Context(), &req, adminID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyDeliveryCalendarUpdated, day)
}

// GET /admin/delivery/reconcile
func (h *DeliveryHandler) CheckReconcile(c *gin.Context) {
	report, err := h.deliveryService.Reconcile(c.Request.Context(), false, nil)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessResponse(c, gin.H{
		"clean":  report.Clean(),
		"report": report,
	})
}

// POST /admin/delivery/reconcile
func (h *DeliveryHandler) RepairReconcile(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	report, err := h.deliveryService.Reconcile(c.Request.Context(), true, &adminID)
	if err != nil {
		respondError(c, err, "delivery")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyDeliveryReconciled, report)
}
