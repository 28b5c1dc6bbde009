// internal/services/cancellation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type CancellationService struct {
	db           *gorm.DB
	orders       *OrderService
	customOrders *CustomOrderService
}

type CancellationRequestInput struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

type ProcessCancellationRequest struct {
	AdminNotes string `json:"admin_notes" validate:"max=1000"`
}

func NewCancellationService(db *gorm.DB, orders *OrderService, customOrders *CustomOrderService) *CancellationService {
	return &CancellationService{db: db, orders: orders, customOrders: customOrders}
}

// Request opens a cancellation request for the customer's own order. Only one
// pending request per order is allowed.
func (s *CancellationService) Request(ctx context.Context, userID uuid.UUID, orderID uint, req *CancellationRequestInput) (*models.CancellationRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var request models.CancellationRequest
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if order.UserID != userID {
			return ErrForbidden
		}
		if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
		}

		var open int64
		if err := tx.Model(&models.CancellationRequest{}).
			Where("order_id = ? AND status = ?", orderID, models.CancellationStatusPending).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrCancellationExists
		}

		request = models.CancellationRequest{
			OrderID:     &order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      userID,
			Reason:      strings.TrimSpace(req.Reason),
			Status:      models.CancellationStatusPending,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number": request.OrderNumber,
		"request_id":   request.ID,
	}).Info("Cancellation requested")
	return &request, nil
}

// RequestCustom opens a cancellation request for one of the customer's
// custom orders.
func (s *CancellationService) RequestCustom(ctx context.Context, userID uuid.UUID, reference string, req *CancellationRequestInput) (*models.CancellationRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var request models.CancellationRequest
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var custom models.CustomOrder
		if err := tx.Where("reference = ?", reference).First(&custom).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if custom.UserID != userID {
			return ErrForbidden
		}
		if !custom.Status.CanTransitionTo(models.CustomOrderStatusCancelled) {
			return fmt.Errorf("%w: custom order is %s", ErrInvalidTransition, custom.Status)
		}

		var open int64
		if err := tx.Model(&models.CancellationRequest{}).
			Where("custom_order_id = ? AND status = ?", custom.ID, models.CancellationStatusPending).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrCancellationExists
		}

		request = models.CancellationRequest{
			CustomOrderID: &custom.ID,
			OrderNumber:   custom.Reference,
			UserID:        userID,
			Reason:        strings.TrimSpace(req.Reason),
			Status:        models.CancellationStatusPending,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"custom_order_id": reference,
		"request_id":      request.ID,
	}).Info("Custom order cancellation requested")
	return &request, nil
}

func (s *CancellationService) List(ctx context.Context, status models.CancellationStatus, params utils.PaginationParams) ([]models.CancellationRequest, int64, error) {
	params = utils.NormalizePagination(params)
	query := s.db.WithContext(ctx).Model(&models.CancellationRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []models.CancellationRequest
	err := utils.ApplyPagination(query.Order("created_at DESC, id DESC"), params).
		Preload("Order").
		Preload("CustomOrder").
		Find(&requests).Error
	return requests, total, err
}

func (s *CancellationService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.CancellationRequest, error) {
	var requests []models.CancellationRequest
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Preload("Order").
		Preload("CustomOrder").
		Find(&requests).Error
	return requests, err
}

// claim flips a pending request to its final status. Only the first caller
// wins; later calls get ErrCancellationProcessed.
func (s *CancellationService) claim(tx *gorm.DB, requestID uint, status models.CancellationStatus, adminID uuid.UUID, notes string) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	if err := tx.First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if request.Status != models.CancellationStatusPending {
		return nil, ErrCancellationProcessed
	}

	now := time.Now()
	result := tx.Model(&models.CancellationRequest{}).
		Where("id = ? AND status = ?", requestID, models.CancellationStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"admin_notes":  notes,
			"processed_by": adminID,
			"processed_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrCancellationProcessed
	}

	request.Status = status
	request.AdminNotes = notes
	request.ProcessedBy = &adminID
	request.ProcessedAt = &now
	return &request, nil
}

// Approve cancels the order or custom order behind a pending request,
// releasing reserved stock and settling the payment. Approving twice returns
// ErrCancellationProcessed and leaves stock untouched.
func (s *CancellationService) Approve(ctx context.Context, requestID uint, adminID uuid.UUID, req *ProcessCancellationRequest) (*models.CancellationRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var (
		request *models.CancellationRequest
		order   *models.Order
		touched []uint64
	)
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		request, err = s.claim(tx, requestID, models.CancellationStatusApproved, adminID, req.AdminNotes)
		if err != nil {
			return err
		}

		if request.CustomOrderID != nil {
			custom, err := lockCustomOrder(tx, "id = ?", *request.CustomOrderID)
			if err != nil {
				return err
			}
			order, touched, err = s.customOrders.cancelInTx(tx, custom, &adminID, request.Reason)
			return err
		}
		if request.OrderID == nil {
			return fmt.Errorf("cancellation request %d has no order", request.ID)
		}

		order, err = lockOrder(tx, *request.OrderID)
		if err != nil {
			return err
		}
		touched, err = s.orders.cancelInTx(tx, order, &adminID, request.Reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.orders.stock.InvalidateProducts(ctx, touched...)
	if order != nil {
		s.orders.notifyCancelled(order, request.Reason)
	}

	logrus.WithFields(logrus.Fields{
		"request_id":   requestID,
		"order_number": request.OrderNumber,
		"admin_id":     adminID,
	}).Info("Cancellation approved")
	return s.get(ctx, requestID)
}

func (s *CancellationService) Reject(ctx context.Context, requestID uint, adminID uuid.UUID, req *ProcessCancellationRequest) (*models.CancellationRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		_, err := s.claim(tx, requestID, models.CancellationStatusRejected, adminID, req.AdminNotes)
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"request_id": requestID, "admin_id": adminID}).Info("Cancellation rejected")
	return s.get(ctx, requestID)
}

func (s *CancellationService) get(ctx context.Context, requestID uint) (*models.CancellationRequest, error) {
	var request models.CancellationRequest
	if err := s.db.WithContext(ctx).Preload("Order").Preload("CustomOrder").First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}
