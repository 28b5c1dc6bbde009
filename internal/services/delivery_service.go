// internal/services/delivery_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

// MaxCalendarDays bounds a single calendar query.
const MaxCalendarDays = 92

// DeliveryService keeps delivery schedules and the order mirror
// (scheduled_delivery_date, delivery_status) in step. Every write to a
// schedule goes through applyScheduleStatus or Schedule so both change in the
// same transaction.
type DeliveryService struct {
	db       *gorm.DB
	orders   *OrderService
	notifier *NotificationService
	cfg      config.DeliveryConfig
}

type ScheduleDeliveryRequest struct {
	OrderID            uint                 `json:"order_id" validate:"required"`
	DeliveryDate       string               `json:"delivery_date" validate:"required,calendar_date"`
	TimeSlot           string               `json:"delivery_time_slot" validate:"max=20"`
	CourierID          *uint                `json:"courier_id,omitempty"`
	PriorityLevel      models.PriorityLevel `json:"priority_level" validate:"omitempty,oneof=low normal high urgent"`
	DeliveryFee        *decimal.Decimal     `json:"delivery_fee,omitempty"`
	DeliveryAddress    string               `json:"delivery_address" validate:"max=1000"`
	DeliveryCity       string               `json:"delivery_city" validate:"max=100"`
	DeliveryProvince   string               `json:"delivery_province" validate:"max=100"`
	DeliveryPostalCode string               `json:"delivery_postal_code" validate:"max=20"`
	ContactPhone       string               `json:"delivery_contact_phone" validate:"omitempty,ph_phone"`
	Notes              string               `json:"delivery_notes" validate:"max=1000"`
}

type UpdateDeliveryStatusRequest struct {
	Status models.DeliveryStatus `json:"status" validate:"required,oneof=scheduled in_transit delivered failed cancelled"`
	Notes  string                `json:"notes" validate:"max=1000"`
}

type AssignCourierRequest struct {
	CourierID *uint `json:"courier_id"`
}

type CalendarAvailabilityRequest struct {
	IsAvailable    *bool  `json:"is_available,omitempty"`
	IsBlackoutDate *bool  `json:"is_blackout_date,omitempty"`
	IsHoliday      *bool  `json:"is_holiday,omitempty"`
	MaxDeliveries  *int   `json:"max_deliveries,omitempty" validate:"omitempty,min=0,max=100"`
	SpecialNotes   string `json:"special_notes" validate:"max=1000"`
}

type MarkUnavailableRequest struct {
	Date   string `json:"date" validate:"required,calendar_date"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type DeliveryFilter struct {
	Status     models.DeliveryStatus
	DateFrom   string
	DateTo     string
	CourierID  uint
	OrderID    uint
	Pagination utils.PaginationParams
}

type CalendarEntry struct {
	ScheduleID     uint                  `json:"schedule_id"`
	OrderID        uint                  `json:"order_id"`
	OrderNumber    string                `json:"order_number"`
	CustomerName   string                `json:"customer_name"`
	TimeSlot       string                `json:"delivery_time_slot"`
	Status         models.DeliveryStatus `json:"delivery_status"`
	Color          string                `json:"calendar_color"`
	Icon           string                `json:"display_icon"`
	TrackingNumber string                `json:"tracking_number"`
	CourierID      *uint                 `json:"courier_id"`
}

type CalendarDay struct {
	Date           string                        `json:"date"`
	IsAvailable    bool                          `json:"is_available"`
	IsBlackoutDate bool                          `json:"is_blackout_date"`
	IsHoliday      bool                          `json:"is_holiday"`
	MaxDeliveries  int                           `json:"max_deliveries"`
	Booked         int                           `json:"booked"`
	Remaining      int                           `json:"remaining"`
	SpecialNotes   string                        `json:"special_notes,omitempty"`
	StatusCounts   map[models.DeliveryStatus]int `json:"status_counts"`
	Deliveries     []CalendarEntry               `json:"deliveries"`
}

type MirrorIssue struct {
	OrderID        uint                  `json:"order_id"`
	OrderNumber    string                `json:"order_number"`
	OrderDate      *string               `json:"order_scheduled_date"`
	OrderStatus    models.DeliveryStatus `json:"order_delivery_status"`
	ScheduleID     uint                  `json:"schedule_id,omitempty"`
	ExpectedDate   *string               `json:"expected_date"`
	ExpectedStatus models.DeliveryStatus `json:"expected_status"`
}

type DuplicateSchedule struct {
	OrderID    uint   `json:"order_id"`
	KeptID     uint   `json:"kept_schedule_id"`
	Duplicates []uint `json:"duplicate_schedule_ids"`
}

type ReconcileReport struct {
	CheckedSchedules int                 `json:"checked_schedules"`
	MirrorIssues     []MirrorIssue       `json:"mirror_issues"`
	Duplicates       []DuplicateSchedule `json:"duplicates"`
	StyleIssues      []uint              `json:"style_issue_schedule_ids"`
	Repaired         bool                `json:"repaired"`
}

func (r *ReconcileReport) Clean() bool {
	return len(r.MirrorIssues) == 0 && len(r.Duplicates) == 0 && len(r.StyleIssues) == 0
}

func NewDeliveryService(db *gorm.DB, orders *OrderService, notifier *NotificationService, cfg config.DeliveryConfig) *DeliveryService {
	if cfg.DailyCapacity < 1 {
		cfg.DailyCapacity = 3
	}
	return &DeliveryService{db: db, orders: orders, notifier: notifier, cfg: cfg}
}

// lockDay returns the calendar row for date, creating a default one, and
// locks it so capacity checks for the same date run one at a time.
func lockDay(tx *gorm.DB, date string) (*models.DeliveryCalendarDay, error) {
	day := models.DeliveryCalendarDay{CalendarDate: date, IsAvailable: true}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&day).Error; err != nil {
		return nil, fmt.Errorf("failed to prepare calendar day: %w", err)
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&day, "calendar_date = ?", date).Error; err != nil {
		return nil, err
	}
	return &day, nil
}

func (s *DeliveryService) capacityOf(day *models.DeliveryCalendarDay) int {
	if day != nil && day.MaxDeliveries > 0 {
		return day.MaxDeliveries
	}
	return s.cfg.DailyCapacity
}

// checkDate enforces availability and daily capacity. excludeID is the
// schedule being moved, which must not count against itself.
func (s *DeliveryService) checkDate(tx *gorm.DB, date string, excludeID uint) error {
	if date < utils.FormatCalendarDate(time.Now()) {
		return fmt.Errorf("%w: %s is in the past", ErrDateUnavailable, date)
	}

	day, err := lockDay(tx, date)
	if err != nil {
		return err
	}
	if !day.Bookable() {
		return fmt.Errorf("%w: %s", ErrDateUnavailable, date)
	}

	var booked int64
	if err := tx.Model(&models.DeliverySchedule{}).
		Where("delivery_date = ? AND delivery_status <> ? AND id <> ?", date, models.DeliveryStatusCancelled, excludeID).
		Count(&booked).Error; err != nil {
		return err
	}
	if capacity := s.capacityOf(day); int(booked) >= capacity {
		return fmt.Errorf("%w: %s already has %d of %d deliveries", ErrCapacityExceeded, date, booked, capacity)
	}
	return nil
}

func checkCourier(tx *gorm.DB, courierID uint, date string, excludeID uint) (*models.Courier, error) {
	var courier models.Courier
	if err := tx.First(&courier, courierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: courier %d not found", ErrCourierUnavailable, courierID)
		}
		return nil, err
	}
	if courier.Status != models.CourierStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrCourierUnavailable, courier.Name, courier.Status)
	}

	var assigned int64
	if err := tx.Model(&models.DeliverySchedule{}).
		Where("courier_id = ? AND delivery_date = ? AND delivery_status <> ? AND id <> ?",
			courierID, date, models.DeliveryStatusCancelled, excludeID).
		Count(&assigned).Error; err != nil {
		return nil, err
	}
	if int(assigned) >= courier.MaxDeliveriesPerDay {
		return nil, fmt.Errorf("%w: %s is fully booked on %s", ErrCourierUnavailable, courier.Name, date)
	}
	return &courier, nil
}

// Schedule books a delivery for a confirmed order, or moves the order's
// existing schedule to a new date.
func (s *DeliveryService) Schedule(ctx context.Context, req *ScheduleDeliveryRequest, adminID uuid.UUID) (*models.DeliverySchedule, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var (
		schedule models.DeliverySchedule
		order    *models.Order
	)
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, req.OrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusConfirmed {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotConfirmed, order.OrderNumber, order.Status)
		}

		schedule = models.DeliverySchedule{}
		previous := models.DeliveryStatus("")
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", order.ID).Order("id DESC").First(&schedule).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			schedule = models.DeliverySchedule{OrderID: order.ID}
		case err != nil:
			return err
		default:
			previous = schedule.DeliveryStatus
			if previous == models.DeliveryStatusInTransit {
				return fmt.Errorf("%w: %s is in transit", ErrDuplicateSchedule, schedule.TrackingNumber)
			}
			if !previous.CanTransitionTo(models.DeliveryStatusScheduled) {
				return fmt.Errorf("%w: delivery is %s", ErrInvalidTransition, previous)
			}
		}

		if err := s.checkDate(tx, req.DeliveryDate, schedule.ID); err != nil {
			return err
		}
		if req.CourierID != nil {
			if _, err := checkCourier(tx, *req.CourierID, req.DeliveryDate, schedule.ID); err != nil {
				return err
			}
		}

		var customer models.User
		if err := tx.First(&customer, "id = ?", order.UserID).Error; err != nil {
			return fmt.Errorf("failed to load customer: %w", err)
		}

		s.fillSchedule(&schedule, order, &customer, req)
		schedule.ScheduledBy = &adminID
		schedule.ApplyStatus(models.DeliveryStatusScheduled)
		if schedule.TrackingNumber == "" {
			schedule.TrackingNumber = utils.GenerateTrackingNumber()
		}
		if err := tx.Omit(clause.Associations).Save(&schedule).Error; err != nil {
			return fmt.Errorf("failed to save delivery schedule: %w", err)
		}

		if err := syncOrderMirror(tx, order.ID, &schedule); err != nil {
			return err
		}

		notes := fmt.Sprintf("scheduled for %s", req.DeliveryDate)
		if req.Notes != "" {
			notes += ": " + req.Notes
		}
		return logDeliveryStatus(tx, &schedule, previous, &adminID, notes)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number":  schedule.OrderNumber,
		"delivery_date": schedule.DeliveryDate,
		"tracking":      schedule.TrackingNumber,
	}).Info("Delivery scheduled")

	if s.notifier != nil {
		scheduled := schedule
		s.orders.notify("delivery_scheduled", order.UserID, func(user *models.User) error {
			return s.notifier.SendDeliveryScheduled(user, order, &scheduled)
		})
	}
	return s.Get(ctx, schedule.ID)
}

func (s *DeliveryService) fillSchedule(schedule *models.DeliverySchedule, order *models.Order, customer *models.User, req *ScheduleDeliveryRequest) {
	schedule.OrderNumber = order.OrderNumber
	schedule.CustomerID = order.UserID
	schedule.CustomerName = customer.DisplayName()
	schedule.CustomerEmail = customer.Email
	schedule.CustomerPhone = order.ContactPhone
	schedule.DeliveryDate = req.DeliveryDate
	schedule.DeliveryTimeSlot = req.TimeSlot
	schedule.DeliveryAddress = firstNonEmpty(req.DeliveryAddress, order.ShippingAddress)
	schedule.DeliveryCity = req.DeliveryCity
	schedule.DeliveryProvince = req.DeliveryProvince
	schedule.DeliveryPostalCode = req.DeliveryPostalCode
	schedule.DeliveryContactPhone = firstNonEmpty(utils.NormalizePhone(req.ContactPhone), order.ContactPhone)
	schedule.DeliveryNotes = req.Notes
	schedule.CourierID = req.CourierID
	schedule.PriorityLevel = models.PriorityNormal
	if req.PriorityLevel != "" {
		schedule.PriorityLevel = req.PriorityLevel
	}
	schedule.DeliveryFee = decimal.NewFromFloat(s.cfg.DefaultFee).Round(2)
	if req.DeliveryFee != nil {
		schedule.DeliveryFee = req.DeliveryFee.Round(2)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// syncOrderMirror copies the schedule's date and status onto the order.
func syncOrderMirror(tx *gorm.DB, orderID uint, schedule *models.DeliverySchedule) error {
	date, status := expectedMirror(schedule)
	err := tx.Model(&models.Order{}).Where("id = ?", orderID).Updates(map[string]interface{}{
		"scheduled_delivery_date": date,
		"delivery_status":         status,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update order delivery mirror: %w", err)
	}
	return nil
}

// expectedMirror is the order mirror a schedule implies. A cancelled
// schedule leaves the order without a delivery date.
func expectedMirror(schedule *models.DeliverySchedule) (*string, models.DeliveryStatus) {
	if schedule.DeliveryStatus == models.DeliveryStatusCancelled {
		return nil, models.DeliveryStatusCancelled
	}
	date := schedule.DeliveryDate
	return &date, schedule.DeliveryStatus
}

func logDeliveryStatus(tx *gorm.DB, schedule *models.DeliverySchedule, previous models.DeliveryStatus, actor *uuid.UUID, notes string) error {
	entry := &models.DeliveryStatusLog{
		DeliveryScheduleID: schedule.ID,
		OrderID:            schedule.OrderID,
		PreviousStatus:     previous,
		NewStatus:          schedule.DeliveryStatus,
		Notes:              notes,
		ChangedBy:          actor,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write delivery status log: %w", err)
	}
	return nil
}

// applyScheduleStatus writes a status change to the schedule, its log, the
// courier counters and the order mirror.
func applyScheduleStatus(tx *gorm.DB, schedule *models.DeliverySchedule, status models.DeliveryStatus, actor *uuid.UUID, notes string) error {
	previous := schedule.DeliveryStatus
	schedule.ApplyStatus(status)

	updates := map[string]interface{}{
		"delivery_status": schedule.DeliveryStatus,
		"calendar_color":  schedule.CalendarColor,
		"display_icon":    schedule.DisplayIcon,
	}
	if status == models.DeliveryStatusDelivered {
		now := time.Now()
		schedule.DeliveredAt = &now
		updates["delivered_at"] = now
	}
	if err := tx.Model(&models.DeliverySchedule{}).Where("id = ?", schedule.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update delivery schedule: %w", err)
	}

	if schedule.CourierID != nil {
		counters := map[string]interface{}{}
		switch status {
		case models.DeliveryStatusDelivered:
			counters["total_deliveries"] = gorm.Expr("total_deliveries + 1")
			counters["successful_deliveries"] = gorm.Expr("successful_deliveries + 1")
		case models.DeliveryStatusFailed:
			counters["total_deliveries"] = gorm.Expr("total_deliveries + 1")
		}
		if len(counters) > 0 {
			if err := tx.Model(&models.Courier{}).Where("id = ?", *schedule.CourierID).Updates(counters).Error; err != nil {
				return err
			}
		}
	}

	if err := syncOrderMirror(tx, schedule.OrderID, schedule); err != nil {
		return err
	}
	return logDeliveryStatus(tx, schedule, previous, actor, notes)
}

// setScheduleStatusForOrder moves every open schedule of an order to status.
// Order level changes (cancellation, delivery) use it so the calendar follows
// the order without going through the delivery state machine.
func setScheduleStatusForOrder(tx *gorm.DB, orderID uint, status models.DeliveryStatus, actor *uuid.UUID, notes string) (int, error) {
	var schedules []models.DeliverySchedule
	err := tx.Where("order_id = ? AND delivery_status NOT IN ?", orderID,
		[]models.DeliveryStatus{models.DeliveryStatusCancelled, models.DeliveryStatusDelivered}).
		Order("id").Find(&schedules).Error
	if err != nil {
		return 0, err
	}

	for i := range schedules {
		if schedules[i].DeliveryStatus == status {
			continue
		}
		if err := applyScheduleStatus(tx, &schedules[i], status, actor, notes); err != nil {
			return i, err
		}
	}
	return len(schedules), nil
}

func (s *DeliveryService) lockSchedule(tx *gorm.DB, scheduleID uint) (*models.DeliverySchedule, error) {
	var schedule models.DeliverySchedule
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&schedule, scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// UpdateStatus moves a schedule through the delivery state machine. A
// delivered schedule completes its order as well.
func (s *DeliveryService) UpdateStatus(ctx context.Context, scheduleID uint, req *UpdateDeliveryStatusRequest, adminID uuid.UUID) (*models.DeliverySchedule, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var touched []uint64
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		touched = nil
		schedule, err := s.lockSchedule(tx, scheduleID)
		if err != nil {
			return err
		}
		if !schedule.DeliveryStatus.CanTransitionTo(req.Status) {
			return fmt.Errorf("%w: delivery is %s, cannot become %s", ErrInvalidTransition, schedule.DeliveryStatus, req.Status)
		}

		switch req.Status {
		case models.DeliveryStatusScheduled:
			order, err := lockOrder(tx, schedule.OrderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusConfirmed {
				return fmt.Errorf("%w: order %s is %s", ErrOrderNotConfirmed, order.OrderNumber, order.Status)
			}
			if err := s.checkDate(tx, schedule.DeliveryDate, schedule.ID); err != nil {
				return err
			}
			if schedule.CourierID != nil {
				if _, err := checkCourier(tx, *schedule.CourierID, schedule.DeliveryDate, schedule.ID); err != nil {
					return err
				}
			}
		case models.DeliveryStatusDelivered:
			order, err := lockOrder(tx, schedule.OrderID)
			if err != nil {
				return err
			}
			// markDelivered closes this schedule through setScheduleStatusForOrder.
			touched, err = s.orders.markDelivered(tx, order, &adminID, req.Notes)
			if err != nil {
				return err
			}
			if err := tx.First(schedule, schedule.ID).Error; err != nil {
				return err
			}
			if schedule.DeliveryStatus == models.DeliveryStatusDelivered {
				return nil
			}
		}

		return applyScheduleStatus(tx, schedule, req.Status, &adminID, req.Notes)
	})
	if err != nil {
		return nil, err
	}

	s.orders.stock.InvalidateProducts(ctx, touched...)
	logrus.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"status":      req.Status,
		"admin_id":    adminID,
	}).Info("Delivery status updated")
	return s.Get(ctx, scheduleID)
}

func (s *DeliveryService) AssignCourier(ctx context.Context, scheduleID uint, req *AssignCourierRequest, adminID uuid.UUID) (*models.DeliverySchedule, error) {
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		schedule, err := s.lockSchedule(tx, scheduleID)
		if err != nil {
			return err
		}
		if !schedule.DeliveryStatus.Active() && schedule.DeliveryStatus != models.DeliveryStatusFailed {
			return fmt.Errorf("%w: delivery is %s", ErrInvalidTransition, schedule.DeliveryStatus)
		}

		if req.CourierID != nil {
			if _, err := checkCourier(tx, *req.CourierID, schedule.DeliveryDate, schedule.ID); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.DeliverySchedule{}).Where("id = ?", schedule.ID).
			Update("courier_id", req.CourierID).Error; err != nil {
			return err
		}

		note := "courier unassigned"
		if req.CourierID != nil {
			note = fmt.Sprintf("courier %d assigned", *req.CourierID)
		}
		schedule.CourierID = req.CourierID
		return logDeliveryStatus(tx, schedule, schedule.DeliveryStatus, &adminID, note)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, scheduleID)
}

func (s *DeliveryService) Get(ctx context.Context, scheduleID uint) (*models.DeliverySchedule, error) {
	var schedule models.DeliverySchedule
	err := s.db.WithContext(ctx).Preload("Courier").First(&schedule, scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// History returns the status log of a schedule, oldest first.
func (s *DeliveryService) History(ctx context.Context, scheduleID uint) ([]models.DeliveryStatusLog, error) {
	var logs []models.DeliveryStatusLog
	err := s.db.WithContext(ctx).Where("delivery_schedule_id = ?", scheduleID).Order("id").Find(&logs).Error
	return logs, err
}

func (s *DeliveryService) List(ctx context.Context, filter DeliveryFilter) ([]models.DeliverySchedule, int64, error) {
	params := utils.NormalizePagination(filter.Pagination)
	query := s.db.WithContext(ctx).Model(&models.DeliverySchedule{})

	if filter.Status != "" {
		query = query.Where("delivery_status = ?", filter.Status)
	}
	if filter.DateFrom != "" {
		query = query.Where("delivery_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		query = query.Where("delivery_date <= ?", filter.DateTo)
	}
	if filter.CourierID != 0 {
		query = query.Where("courier_id = ?", filter.CourierID)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("order_number LIKE ? OR customer_name LIKE ? OR tracking_number LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var schedules []models.DeliverySchedule
	err := utils.ApplyPagination(query.Order("delivery_date ASC, id ASC"), params).
		Preload("Courier").
		Find(&schedules).Error
	return schedules, total, err
}

// Calendar builds one entry per day between from and to inclusive.
func (s *DeliveryService) Calendar(ctx context.Context, from, to string) ([]CalendarDay, error) {
	start, err := utils.ParseCalendarDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	end, err := utils.ParseCalendarDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrValidation)
	}
	dates := utils.CalendarRange(start, end, MaxCalendarDays)
	to = dates[len(dates)-1]

	db := s.db.WithContext(ctx)
	var configured []models.DeliveryCalendarDay
	if err := db.Where("calendar_date BETWEEN ? AND ?", from, to).Find(&configured).Error; err != nil {
		return nil, err
	}
	var schedules []models.DeliverySchedule
	if err := db.Where("delivery_date BETWEEN ? AND ?", from, to).
		Order("delivery_date, delivery_time_slot, id").Find(&schedules).Error; err != nil {
		return nil, err
	}

	byDate := map[string]*models.DeliveryCalendarDay{}
	for i := range configured {
		byDate[configured[i].CalendarDate] = &configured[i]
	}

	days := make([]CalendarDay, 0, len(dates))
	index := map[string]int{}
	for _, date := range dates {
		day := CalendarDay{
			Date:          date,
			IsAvailable:   true,
			MaxDeliveries: s.capacityOf(byDate[date]),
			StatusCounts:  map[models.DeliveryStatus]int{},
			Deliveries:    []CalendarEntry{},
		}
		if cfgDay, ok := byDate[date]; ok {
			day.IsAvailable = cfgDay.IsAvailable
			day.IsBlackoutDate = cfgDay.IsBlackoutDate
			day.IsHoliday = cfgDay.IsHoliday
			day.SpecialNotes = cfgDay.SpecialNotes
		}
		index[date] = len(days)
		days = append(days, day)
	}

	for _, sched := range schedules {
		i, ok := index[sched.DeliveryDate]
		if !ok {
			continue
		}
		day := &days[i]
		day.StatusCounts[sched.DeliveryStatus]++
		if sched.DeliveryStatus != models.DeliveryStatusCancelled {
			day.Booked++
		}
		day.Deliveries = append(day.Deliveries, CalendarEntry{
			ScheduleID:     sched.ID,
			OrderID:        sched.OrderID,
			OrderNumber:    sched.OrderNumber,
			CustomerName:   sched.CustomerName,
			TimeSlot:       sched.DeliveryTimeSlot,
			Status:         sched.DeliveryStatus,
			Color:          sched.DeliveryStatus.CalendarColor(),
			Icon:           sched.DeliveryStatus.CalendarIcon(),
			TrackingNumber: sched.TrackingNumber,
			CourierID:      sched.CourierID,
		})
	}

	for i := range days {
		if days[i].IsAvailable && !days[i].IsBlackoutDate {
			days[i].Remaining = max(days[i].MaxDeliveries-days[i].Booked, 0)
		}
	}
	return days, nil
}

// SetAvailability configures a calendar day. Existing bookings are kept even
// when the new limit is below them.
func (s *DeliveryService) SetAvailability(ctx context.Context, date string, req *CalendarAvailabilityRequest, adminID uuid.UUID) (*models.DeliveryCalendarDay, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := utils.ParseCalendarDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var day *models.DeliveryCalendarDay
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		day, err = lockDay(tx, date)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"special_notes":   req.SpecialNotes,
			"set_by_admin_id": adminID,
		}
		if req.IsAvailable != nil {
			updates["is_available"] = *req.IsAvailable
		}
		if req.IsBlackoutDate != nil {
			updates["is_blackout_date"] = *req.IsBlackoutDate
		}
		if req.IsHoliday != nil {
			updates["is_holiday"] = *req.IsHoliday
		}
		if req.MaxDeliveries != nil {
			updates["max_deliveries"] = *req.MaxDeliveries
		}
		if err := tx.Model(&models.DeliveryCalendarDay{}).Where("calendar_date = ?", date).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(day, "calendar_date = ?", date).Error
	})
	if err != nil {
		return nil, err
	}

	// The day is already saved; a failed count only skips the warnings below.
	var booked int64
	if err := s.db.WithContext(ctx).Model(&models.DeliverySchedule{}).
		Where("delivery_date = ? AND delivery_status <> ?", date, models.DeliveryStatusCancelled).
		Count(&booked).Error; err != nil {
		logrus.WithError(err).WithField("date", date).Warn("Could not count bookings for updated calendar day")
		return day, nil
	}
	if !day.Bookable() && booked > 0 {
		logrus.WithFields(logrus.Fields{"date": date, "booked": booked}).Warn("Day closed with deliveries still booked")
	} else if day.MaxDeliveries > 0 && int(booked) > day.MaxDeliveries {
		logrus.WithFields(logrus.Fields{"date": date, "booked": booked, "max": day.MaxDeliveries}).Warn("Day limit set below existing bookings")
	}
	return day, nil
}

func (s *DeliveryService) MarkUnavailable(ctx context.Context, req *MarkUnavailableRequest, adminID uuid.UUID) (*models.DeliveryCalendarDay, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	unavailable := false
	return s.SetAvailability(ctx, req.Date, &CalendarAvailabilityRequest{
		IsAvailable:  &unavailable,
		SpecialNotes: req.Reason,
	}, adminID)
}

// Reconcile compares every order's delivery mirror with its schedules. Open
// duplicates are reported with the newest schedule kept. With repair set the
// schedule side wins and duplicates are cancelled.
func (s *DeliveryService) Reconcile(ctx context.Context, repair bool, actor *uuid.UUID) (*ReconcileReport, error) {
	db := s.db.WithContext(ctx)

	var schedules []models.DeliverySchedule
	if err := db.Order("order_id, id").Find(&schedules).Error; err != nil {
		return nil, err
	}
	report := &ReconcileReport{CheckedSchedules: len(schedules)}

	byOrder := map[uint][]models.DeliverySchedule{}
	var orderIDs []uint
	for _, sched := range schedules {
		if _, ok := byOrder[sched.OrderID]; !ok {
			orderIDs = append(orderIDs, sched.OrderID)
		}
		byOrder[sched.OrderID] = append(byOrder[sched.OrderID], sched)
		if sched.CalendarColor != sched.DeliveryStatus.CalendarColor() || sched.DisplayIcon != sched.DeliveryStatus.CalendarIcon() {
			report.StyleIssues = append(report.StyleIssues, sched.ID)
		}
	}

	var orders []models.Order
	if len(orderIDs) > 0 {
		if err := db.Where("id IN ?", orderIDs).Find(&orders).Error; err != nil {
			return nil, err
		}
	}
	var unscheduled []models.Order
	query := db.Where("scheduled_delivery_date IS NOT NULL")
	if len(orderIDs) > 0 {
		query = query.Where("id NOT IN ?", orderIDs)
	}
	if err := query.Find(&unscheduled).Error; err != nil {
		return nil, err
	}

	type planned struct {
		orderID    uint
		current    *models.DeliverySchedule
		duplicates []models.DeliverySchedule
	}
	plans := map[uint]*planned{}
	for _, orderID := range orderIDs {
		group := byOrder[orderID]
		plan := &planned{orderID: orderID}

		var open []models.DeliverySchedule
		for _, sched := range group {
			if sched.DeliveryStatus != models.DeliveryStatusCancelled && sched.DeliveryStatus != models.DeliveryStatusDelivered {
				open = append(open, sched)
			}
		}
		if len(open) > 1 {
			sort.Slice(open, func(i, j int) bool { return open[i].ID > open[j].ID })
			plan.duplicates = open[1:]
			dup := DuplicateSchedule{OrderID: orderID, KeptID: open[0].ID}
			for _, d := range plan.duplicates {
				dup.Duplicates = append(dup.Duplicates, d.ID)
			}
			report.Duplicates = append(report.Duplicates, dup)
		}

		plan.current = currentSchedule(group)
		plans[orderID] = plan
	}

	for _, order := range orders {
		plan := plans[order.ID]
		date, status := expectedMirror(plan.current)
		if !sameDate(order.ScheduledDeliveryDate, date) || order.DeliveryStatus != status {
			report.MirrorIssues = append(report.MirrorIssues, MirrorIssue{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				OrderDate:      order.ScheduledDeliveryDate,
				OrderStatus:    order.DeliveryStatus,
				ScheduleID:     plan.current.ID,
				ExpectedDate:   date,
				ExpectedStatus: status,
			})
		}
	}
	for _, order := range unscheduled {
		report.MirrorIssues = append(report.MirrorIssues, MirrorIssue{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			OrderDate:      order.ScheduledDeliveryDate,
			OrderStatus:    order.DeliveryStatus,
			ExpectedStatus: models.DeliveryStatusPending,
		})
	}

	if !repair || report.Clean() {
		return report, nil
	}

	err := database.WithRetry(db, func(tx *gorm.DB) error {
		for _, dup := range report.Duplicates {
			for _, sched := range plans[dup.OrderID].duplicates {
				sched := sched
				if err := applyScheduleStatus(tx, &sched, models.DeliveryStatusCancelled, actor, "duplicate schedule cancelled by reconcile"); err != nil {
					return err
				}
			}
			if err := syncOrderMirror(tx, dup.OrderID, plans[dup.OrderID].current); err != nil {
				return err
			}
		}
		for _, id := range report.StyleIssues {
			var sched models.DeliverySchedule
			if err := tx.First(&sched, id).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.DeliverySchedule{}).Where("id = ?", id).Updates(map[string]interface{}{
				"calendar_color": sched.DeliveryStatus.CalendarColor(),
				"display_icon":   sched.DeliveryStatus.CalendarIcon(),
			}).Error; err != nil {
				return err
			}
		}
		for _, issue := range report.MirrorIssues {
			plan, ok := plans[issue.OrderID]
			if !ok {
				if err := tx.Model(&models.Order{}).Where("id = ?", issue.OrderID).Updates(map[string]interface{}{
					"scheduled_delivery_date": nil,
					"delivery_status":         models.DeliveryStatusPending,
				}).Error; err != nil {
					return err
				}
				continue
			}
			if err := syncOrderMirror(tx, issue.OrderID, plan.current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Repaired = true
	logrus.WithFields(logrus.Fields{
		"mirror_issues": len(report.MirrorIssues),
		"duplicates":    len(report.Duplicates),
		"style_issues":  len(report.StyleIssues),
	}).Info("Delivery reconcile repaired")
	return report, nil
}

// currentSchedule is the schedule an order's mirror should reflect: the
// newest one that is not cancelled, else the newest overall. group is
// ordered by id.
func currentSchedule(group []models.DeliverySchedule) *models.DeliverySchedule {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].DeliveryStatus != models.DeliveryStatusCancelled {
			return &group[i]
		}
	}
	return &group[len(group)-1]
}

func sameDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
