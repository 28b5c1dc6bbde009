// internal/services/courier_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type CourierService struct {
	db *gorm.DB
}

type CourierRequest struct {
	Name                string               `json:"name" validate:"required,min=2,max=150"`
	PhoneNumber         string               `json:"phone_number" validate:"required,ph_phone"`
	Email               string               `json:"email" validate:"omitempty,email"`
	LicenseNumber       string               `json:"license_number" validate:"max=60"`
	VehicleType         string               `json:"vehicle_type" validate:"omitempty,oneof=motorcycle car van truck bicycle"`
	Status              models.CourierStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	MaxDeliveriesPerDay int                  `json:"max_deliveries_per_day" validate:"omitempty,min=1,max=100"`
	ServiceAreas        []string             `json:"service_areas"`
	Notes               string               `json:"notes" validate:"max=1000"`
}

type CourierStats struct {
	CourierID            uint                          `json:"courier_id"`
	Name                 string                        `json:"name"`
	TotalDeliveries      int                           `json:"total_deliveries"`
	SuccessfulDeliveries int                           `json:"successful_deliveries"`
	SuccessRate          decimal.Decimal               `json:"success_rate"`
	ByStatus             map[models.DeliveryStatus]int `json:"by_status"`
	Upcoming             int                           `json:"upcoming"`
}

func NewCourierService(db *gorm.DB) *CourierService {
	return &CourierService{db: db}
}

func (s *CourierService) apply(courier *models.Courier, req *CourierRequest) {
	courier.Name = strings.TrimSpace(req.Name)
	courier.PhoneNumber = utils.NormalizePhone(req.PhoneNumber)
	courier.Email = req.Email
	courier.LicenseNumber = req.LicenseNumber
	courier.Notes = req.Notes
	if req.VehicleType != "" {
		courier.VehicleType = req.VehicleType
	}
	if req.Status != "" {
		courier.Status = req.Status
	}
	if req.MaxDeliveriesPerDay > 0 {
		courier.MaxDeliveriesPerDay = req.MaxDeliveriesPerDay
	}
	if req.ServiceAreas != nil {
		courier.ServiceAreas = datatypes.JSONSlice[string](req.ServiceAreas)
	}
}

func (s *CourierService) Create(ctx context.Context, req *CourierRequest) (*models.Courier, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	courier := &models.Courier{
		VehicleType:         "motorcycle",
		Status:              models.CourierStatusActive,
		MaxDeliveriesPerDay: 10,
		ServiceAreas:        datatypes.JSONSlice[string]{},
		Rating:              decimal.NewFromInt(5),
	}
	s.apply(courier, req)

	if err := s.db.WithContext(ctx).Create(courier).Error; err != nil {
		return nil, fmt.Errorf("failed to create courier: %w", err)
	}
	logrus.WithFields(logrus.Fields{"courier_id": courier.ID, "name": courier.Name}).Info("Courier created")
	return courier, nil
}

func (s *CourierService) Get(ctx context.Context, id uint) (*models.Courier, error) {
	var courier models.Courier
	err := s.db.WithContext(ctx).First(&courier, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &courier, nil
}

func (s *CourierService) Update(ctx context.Context, id uint, req *CourierRequest) (*models.Courier, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	courier, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(courier, req)
	if err := s.db.WithContext(ctx).Save(courier).Error; err != nil {
		return nil, fmt.Errorf("failed to update courier: %w", err)
	}
	return courier, nil
}

func (s *CourierService) List(ctx context.Context, status models.CourierStatus) ([]models.Courier, error) {
	query := s.db.WithContext(ctx).Order("name")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var couriers []models.Courier
	err := query.Find(&couriers).Error
	return couriers, err
}

func (s *CourierService) ListActive(ctx context.Context) ([]models.Courier, error) {
	return s.List(ctx, models.CourierStatusActive)
}

// Delete removes a courier with no open deliveries; finished schedules keep
// their history with courier_id cleared. Couriers still holding
// scheduled or in-transit deliveries are deactivated instead; the returned
// bool reports whether the row was removed.
func (s *CourierService) Delete(ctx context.Context, id uint) (bool, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}

	var open int64
	if err := db.Model(&models.DeliverySchedule{}).
		Where("courier_id = ? AND delivery_status IN ?", id,
			[]models.DeliveryStatus{models.DeliveryStatusScheduled, models.DeliveryStatusInTransit}).
		Count(&open).Error; err != nil {
		return false, err
	}

	if open > 0 {
		if err := db.Model(&models.Courier{}).Where("id = ?", id).
			Update("status", models.CourierStatusInactive).Error; err != nil {
			return false, err
		}
		logrus.WithFields(logrus.Fields{"courier_id": id, "open_deliveries": open}).Warn("Courier has open deliveries, deactivated instead of deleted")
		return false, nil
	}

	if err := db.Delete(&models.Courier{}, id).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *CourierService) Stats(ctx context.Context, id uint) (*CourierStats, error) {
	courier, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		DeliveryStatus models.DeliveryStatus
		Count          int
	}
	if err := s.db.WithContext(ctx).Model(&models.DeliverySchedule{}).
		Select("delivery_status, COUNT(*) AS count").
		Where("courier_id = ?", id).
		Group("delivery_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &CourierStats{
		CourierID:            courier.ID,
		Name:                 courier.Name,
		TotalDeliveries:      courier.TotalDeliveries,
		SuccessfulDeliveries: courier.SuccessfulDeliveries,
		SuccessRate:          decimal.Zero,
		ByStatus:             map[models.DeliveryStatus]int{},
	}
	for _, row := range rows {
		stats.ByStatus[row.DeliveryStatus] = row.Count
		if row.DeliveryStatus.Active() {
			stats.Upcoming += row.Count
		}
	}
	if courier.TotalDeliveries > 0 {
		stats.SuccessRate = decimal.NewFromInt(int64(courier.SuccessfulDeliveries)).
			Div(decimal.NewFromInt(int64(courier.TotalDeliveries))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}
	return stats, nil
}
