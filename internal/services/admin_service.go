// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type AdminService struct {
	db *gorm.DB
}

type AdminDashboardStats struct {
	TotalOrders          int64                        `json:"total_orders"`
	OrdersByStatus       map[models.OrderStatus]int64 `json:"orders_by_status"`
	TotalRevenue         decimal.Decimal              `json:"total_revenue"`
	MonthlyRevenue       decimal.Decimal              `json:"monthly_revenue"`
	RevenueGrowth        float64                      `json:"revenue_growth"`
	TotalProducts        int64                        `json:"total_products"`
	LowStockVariants     int64                        `json:"low_stock_variants"`
	OutOfStockProducts   int64                        `json:"out_of_stock_products"`
	PendingCancellations int64                        `json:"pending_cancellations"`
	TodayDeliveries      int64                        `json:"today_deliveries"`
	UpcomingDeliveries   int64                        `json:"upcoming_deliveries"`
	TotalCustomers       int64                        `json:"total_customers"`
	NewCustomersMonth    int64                        `json:"new_customers_this_month"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role   models.UserRole
	Status models.UserStatus
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended"`
	Reason string            `json:"reason" validate:"max=500"`
}

type AuditLogFilter struct {
	utils.PaginationParams
	UserID       *uuid.UUID
	ResourceType string
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

func (s *AdminService) revenue(db *gorm.DB, from, to *time.Time) (decimal.Decimal, error) {
	query := db.Model(&models.Order{}).Where("status <> ?", models.OrderStatusCancelled)
	if from != nil {
		query = query.Where("order_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("order_date < ?", *to)
	}

	var total decimal.NullDecimal
	if err := query.Select("SUM(total_amount)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}

// GetDashboardStats summarises orders, revenue, stock and deliveries.
// Revenue counts every order that was not cancelled.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{OrdersByStatus: map[models.OrderStatus]int64{}}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	for _, row := range rows {
		stats.OrdersByStatus[row.Status] = row.Count
		stats.TotalOrders += row.Count
	}

	var err error
	if stats.TotalRevenue, err = s.revenue(db, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if stats.MonthlyRevenue, err = s.revenue(db, &monthStart, nil); err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	lastMonth, err := s.revenue(db, &lastMonthStart, &monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if lastMonth.IsPositive() {
		stats.RevenueGrowth = stats.MonthlyRevenue.Sub(lastMonth).Div(lastMonth).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	today := utils.FormatCalendarDate(now)
	counts := []struct {
		target *int64
		query  *gorm.DB
	}{
		{&stats.TotalProducts, db.Model(&models.Product{}).Where("status = ?", models.ProductStatusActive)},
		{&stats.LowStockVariants, db.Model(&models.ProductVariant{}).Where("available_quantity <= low_stock_threshold")},
		{&stats.OutOfStockProducts, db.Model(&models.Product{}).
			Where("status = ? AND stock_status = ?", models.ProductStatusActive, models.StockStatusOutOfStock)},
		{&stats.PendingCancellations, db.Model(&models.CancellationRequest{}).Where("status = ?", models.CancellationStatusPending)},
		{&stats.TodayDeliveries, db.Model(&models.DeliverySchedule{}).
			Where("delivery_date = ? AND delivery_status <> ?", today, models.DeliveryStatusCancelled)},
		{&stats.UpcomingDeliveries, db.Model(&models.DeliverySchedule{}).
			Where("delivery_date > ? AND delivery_status IN ?", today,
				[]models.DeliveryStatus{models.DeliveryStatusScheduled, models.DeliveryStatusInTransit})},
		{&stats.TotalCustomers, db.Model(&models.User{}).Where("role = ?", models.UserRoleCustomer)},
		{&stats.NewCustomersMonth, db.Model(&models.User{}).
			Where("role = ? AND created_at >= ?", models.UserRoleCustomer, monthStart)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.target).Error; err != nil {
			return nil, fmt.Errorf("failed to build dashboard stats: %w", err)
		}
	}

	return stats, nil
}

func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	params := utils.NormalizePagination(filter.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", searchTerm, searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "username", "email", "role", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)

	var users []models.User
	if err := utils.ApplyPagination(query, params).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, total, nil
}

// UpdateUserStatus suspends or reactivates a customer. Admin accounts cannot
// be changed here.
func (s *AdminService) UpdateUserStatus(ctx context.Context, userID uuid.UUID, req *UpdateUserStatusRequest, adminID uuid.UUID) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user.IsAdmin() {
		return nil, fmt.Errorf("%w: cannot modify admin user status", ErrForbidden)
	}

	oldStatus := user.Status
	if err := s.db.WithContext(ctx).Model(&user).Update("status", req.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	user.Status = req.Status

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"admin_id":   adminID,
		"old_status": oldStatus,
		"new_status": req.Status,
		"reason":     req.Reason,
	}).Info("User status updated")
	return &user, nil
}

func (s *AdminService) GetAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	params := utils.NormalizePagination(filter.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	err := utils.ApplyPagination(query.Order("created_at DESC, id DESC"), params).Find(&logs).Error
	return logs, total, err
}
