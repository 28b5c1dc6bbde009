// internal/services/custom_order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

const maxDesignImages = 10

// Base prices per piece used for the estimate shown at submission.
var customBasePrices = map[string]decimal.Decimal{
	"t-shirts": decimal.NewFromInt(1050),
	"shorts":   decimal.NewFromInt(850),
	"hoodies":  decimal.NewFromInt(1600),
	"jackets":  decimal.NewFromInt(1800),
	"sweaters": decimal.NewFromInt(1400),
	"jerseys":  decimal.NewFromInt(1000),
}

var urgencyMultipliers = map[models.Urgency]decimal.Decimal{
	models.UrgencyStandard: decimal.NewFromInt(1),
	models.UrgencyExpress:  decimal.RequireFromString("1.3"),
	models.UrgencyRush:     decimal.RequireFromString("1.6"),
}

// CustomOrderService handles made-to-order designs: submission with design
// images, admin review, offline payment with proof and verification. A
// verified payment opens a regular order so delivery scheduling and
// cancellation run through the same pipeline as catalog orders.
type CustomOrderService struct {
	db      *gorm.DB
	orders  *OrderService
	storage *StorageService
}

type CustomOrderRequest struct {
	ProductType         string         `form:"product_type" json:"product_type" validate:"required,oneof=t-shirts shorts hoodies jackets sweaters jerseys"`
	ProductName         string         `form:"product_name" json:"product_name" validate:"max=255"`
	Size                string         `form:"size" json:"size" validate:"required,size_label"`
	Color               string         `form:"color" json:"color" validate:"required,max=50"`
	Quantity            int            `form:"quantity" json:"quantity" validate:"required,min=1,max=500"`
	Urgency             models.Urgency `form:"urgency" json:"urgency" validate:"omitempty,oneof=standard express rush"`
	SpecialInstructions string         `form:"special_instructions" json:"special_instructions" validate:"max=2000"`
	CustomerName        string         `form:"customer_name" json:"customer_name" validate:"max=150"`
	CustomerEmail       string         `form:"customer_email" json:"customer_email" validate:"omitempty,email"`
	CustomerPhone       string         `form:"customer_phone" json:"customer_phone" validate:"omitempty,ph_phone"`
	Province            string         `form:"province" json:"province" validate:"required,max=100"`
	Municipality        string         `form:"municipality" json:"municipality" validate:"required,max=100"`
	StreetNumber        string         `form:"street_number" json:"street_number" validate:"required,max=255"`
	HouseNumber         string         `form:"house_number" json:"house_number" validate:"max=100"`
	Barangay            string         `form:"barangay" json:"barangay" validate:"max=100"`
	PostalCode          string         `form:"postal_code" json:"postal_code" validate:"max=20"`
}

type ReviewCustomOrderRequest struct {
	Status     models.CustomOrderStatus `json:"status" validate:"required,oneof=approved rejected"`
	FinalPrice *decimal.Decimal         `json:"final_price"`
	AdminNotes string                   `json:"admin_notes" validate:"max=1000"`
}

type CustomPaymentRequest struct {
	FullName      string `form:"full_name" json:"full_name" validate:"required,max=150"`
	ContactNumber string `form:"contact_number" json:"contact_number" validate:"required,ph_phone"`
	Reference     string `form:"reference_number" json:"reference_number" validate:"required,max=100"`
}

type CustomOrderFilter struct {
	Status        models.CustomOrderStatus
	PaymentStatus models.CustomPaymentStatus
	Search        string
	utils.PaginationParams
}

func NewCustomOrderService(db *gorm.DB, orders *OrderService, storage *StorageService) *CustomOrderService {
	return &CustomOrderService{db: db, orders: orders, storage: storage}
}

// EstimatePrice is base price x quantity x urgency multiplier, rounded to
// centavos. Unknown product types fall back to 500 per piece.
func EstimatePrice(productType string, quantity int, urgency models.Urgency) decimal.Decimal {
	base, ok := customBasePrices[productType]
	if !ok {
		base = decimal.NewFromInt(500)
	}
	multiplier, ok := urgencyMultipliers[urgency]
	if !ok {
		multiplier = decimal.NewFromInt(1)
	}
	return base.Mul(decimal.NewFromInt(int64(quantity))).Mul(multiplier).Round(2)
}

func (s *CustomOrderService) Submit(ctx context.Context, userID uuid.UUID, req *CustomOrderRequest, images []*multipart.FileHeader) (*models.CustomOrder, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(images) == 0 || len(images) > maxDesignImages {
		return nil, fmt.Errorf("%w: between 1 and %d design images are required", ErrValidation, maxDesignImages)
	}
	if req.Urgency == "" {
		req.Urgency = models.UrgencyStandard
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	uploaded := make([]models.CustomOrderImage, 0, len(images))
	cleanup := func() {
		for _, img := range uploaded {
			if err := s.storage.DeleteFile(img.StorageKey); err != nil {
				logrus.WithError(err).WithField("key", img.StorageKey).Warn("Failed to remove design image")
			}
		}
	}
	for i, header := range images {
		result, err := s.upload(header, s.storage.CustomDesignOptions())
		if err != nil {
			cleanup()
			return nil, err
		}
		uploaded = append(uploaded, models.CustomOrderImage{
			URL:              result.URL,
			StorageKey:       result.Key,
			OriginalFilename: header.Filename,
			Size:             result.Size,
			MimeType:         result.MimeType,
			Position:         i,
		})
	}

	order := models.CustomOrder{
		Reference:           utils.GenerateCustomReference(),
		UserID:              userID,
		ProductType:         req.ProductType,
		ProductName:         strings.TrimSpace(req.ProductName),
		Size:                strings.ToUpper(req.Size),
		Color:               strings.TrimSpace(req.Color),
		Quantity:            req.Quantity,
		Urgency:             req.Urgency,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		CustomerName:        firstNonEmpty(strings.TrimSpace(req.CustomerName), user.DisplayName()),
		CustomerEmail:       firstNonEmpty(req.CustomerEmail, user.Email),
		CustomerPhone:       utils.NormalizePhone(firstNonEmpty(req.CustomerPhone, user.Phone)),
		Province:            strings.TrimSpace(req.Province),
		Municipality:        strings.TrimSpace(req.Municipality),
		StreetNumber:        strings.TrimSpace(req.StreetNumber),
		HouseNumber:         strings.TrimSpace(req.HouseNumber),
		Barangay:            strings.TrimSpace(req.Barangay),
		PostalCode:          strings.TrimSpace(req.PostalCode),
		EstimatedPrice:      EstimatePrice(req.ProductType, req.Quantity, req.Urgency),
		Status:              models.CustomOrderStatusPending,
		PaymentStatus:       models.CustomPaymentStatusPending,
		Images:              uploaded,
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create custom order: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"custom_order_id": order.Reference,
		"user_id":         userID,
		"images":          len(uploaded),
		"estimate":        order.EstimatedPrice.StringFixed(2),
	}).Info("Custom order submitted")
	return &order, nil
}

func (s *CustomOrderService) upload(header *multipart.FileHeader, opts UploadOptions) (*UploadResult, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer file.Close()
	return s.storage.UploadFile(file, header, opts)
}

func (s *CustomOrderService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.CustomOrder, error) {
	var orders []models.CustomOrder
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Find(&orders).Error
	return orders, err
}

func (s *CustomOrderService) List(ctx context.Context, filter CustomOrderFilter) ([]models.CustomOrder, int64, error) {
	params := utils.NormalizePagination(filter.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.CustomOrder{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("reference LIKE ? OR customer_name LIKE ? OR customer_email LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.CustomOrder
	err := utils.ApplyPagination(query.Order("created_at DESC, id DESC"), params).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Find(&orders).Error
	return orders, total, err
}

// Get returns a custom order by reference. Customers only see their own.
func (s *CustomOrderService) Get(ctx context.Context, reference string, userID uuid.UUID, admin bool) (*models.CustomOrder, error) {
	var order models.CustomOrder
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC, id DESC") }).
		Preload("Order").
		Where("reference = ?", reference).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !admin && order.UserID != userID {
		return nil, ErrForbidden
	}
	return &order, nil
}

func lockCustomOrder(tx *gorm.DB, where string, args ...interface{}) (*models.CustomOrder, error) {
	var order models.CustomOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(where, args...).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// transitionCustomOrder is the compare-and-set counterpart of
// transitionOrder for custom orders.
func transitionCustomOrder(tx *gorm.DB, order *models.CustomOrder, next models.CustomOrderStatus, updates map[string]interface{}) error {
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: custom order %s is %s, cannot become %s", ErrInvalidTransition, order.Reference, order.Status, next)
	}
	updates["status"] = next

	result := tx.Model(&models.CustomOrder{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update custom order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: custom order %s changed concurrently", ErrInvalidTransition, order.Reference)
	}
	order.Status = next
	return nil
}

// Review approves or rejects a submitted design. Approval may set the final
// price the customer pays; otherwise the estimate stands.
func (s *CustomOrderService) Review(ctx context.Context, reference string, adminID uuid.UUID, req *ReviewCustomOrderRequest) (*models.CustomOrder, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.FinalPrice != nil && !req.FinalPrice.IsPositive() {
		return nil, fmt.Errorf("%w: final_price must be positive", ErrValidation)
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		order, err := lockCustomOrder(tx, "reference = ?", reference)
		if err != nil {
			return err
		}
		// Rejecting after payment was submitted must go through cancellation
		// so the payment is settled.
		if req.Status == models.CustomOrderStatusRejected && order.PaymentStatus != models.CustomPaymentStatusPending {
			return fmt.Errorf("%w: payment is %s", ErrInvalidTransition, order.PaymentStatus)
		}

		updates := map[string]interface{}{
			"admin_notes": strings.TrimSpace(req.AdminNotes),
			"reviewed_by": adminID,
			"reviewed_at": time.Now(),
		}
		if req.FinalPrice != nil && req.Status == models.CustomOrderStatusApproved {
			updates["final_price"] = req.FinalPrice.Round(2)
		}
		return transitionCustomOrder(tx, order, req.Status, updates)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"custom_order_id": reference,
		"status":          req.Status,
		"admin_id":        adminID,
	}).Info("Custom order reviewed")
	return s.Get(ctx, reference, adminID, true)
}

// SubmitPayment records the customer's proof of an offline payment. The
// order must be approved and have no payment awaiting verification.
func (s *CustomOrderService) SubmitPayment(ctx context.Context, userID uuid.UUID, reference string, req *CustomPaymentRequest, proof *multipart.FileHeader) (*models.CustomOrderPayment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: payment proof is required", ErrValidation)
	}

	current, err := s.Get(ctx, reference, userID, false)
	if err != nil {
		return nil, err
	}
	if err := payable(current); err != nil {
		return nil, err
	}

	result, err := s.upload(proof, s.storage.PaymentProofOptions())
	if err != nil {
		return nil, err
	}

	var payment models.CustomOrderPayment
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		order, err := lockCustomOrder(tx, "id = ?", current.ID)
		if err != nil {
			return err
		}
		if err := payable(order); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.CustomOrder{}).
			Where("id = ? AND payment_status IN ?", order.ID,
				[]models.CustomPaymentStatus{models.CustomPaymentStatusPending, models.CustomPaymentStatusRejected}).
			Updates(map[string]interface{}{
				"payment_status":       models.CustomPaymentStatusSubmitted,
				"payment_submitted_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPaymentPending
		}

		payment = models.CustomOrderPayment{
			CustomOrderID: order.ID,
			UserID:        userID,
			FullName:      strings.TrimSpace(req.FullName),
			ContactNumber: utils.NormalizePhone(req.ContactNumber),
			Reference:     strings.TrimSpace(req.Reference),
			ProofURL:      result.URL,
			ProofKey:      result.Key,
			Amount:        order.AmountDue(),
			Status:        models.CustomPaymentStatusSubmitted,
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		if delErr := s.storage.DeleteFile(result.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", result.Key).Warn("Failed to remove payment proof")
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"custom_order_id": reference,
		"payment_id":      payment.ID,
		"amount":          payment.Amount.StringFixed(2),
	}).Info("Custom order payment submitted")
	return &payment, nil
}

func payable(order *models.CustomOrder) error {
	if order.Status != models.CustomOrderStatusApproved {
		return fmt.Errorf("%w: custom order %s is %s", ErrInvalidTransition, order.Reference, order.Status)
	}
	switch order.PaymentStatus {
	case models.CustomPaymentStatusSubmitted:
		return ErrPaymentPending
	case models.CustomPaymentStatusVerified:
		return ErrAlreadyPaid
	}
	return nil
}

func (s *CustomOrderService) PendingPayments(ctx context.Context) ([]models.CustomOrderPayment, error) {
	var payments []models.CustomOrderPayment
	err := s.db.WithContext(ctx).Where("status = ?", models.CustomPaymentStatusSubmitted).
		Order("created_at, id").
		Preload("CustomOrder").
		Find(&payments).Error
	return payments, err
}

// claimPayment flips a submitted payment to its final status, first caller wins.
func claimPayment(tx *gorm.DB, paymentID uint, status models.CustomPaymentStatus, adminID uuid.UUID, notes string) (*models.CustomOrderPayment, error) {
	var payment models.CustomOrderPayment
	if err := tx.First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := time.Now()
	result := tx.Model(&models.CustomOrderPayment{}).
		Where("id = ? AND status = ?", paymentID, models.CustomPaymentStatusSubmitted).
		Updates(map[string]interface{}{
			"status":      status,
			"verified_by": adminID,
			"verified_at": now,
			"admin_notes": notes,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidTransition, payment.Status)
	}
	payment.Status = status
	return &payment, nil
}

// VerifyPayment accepts a submitted payment. The custom order becomes
// confirmed and gets a paid invoice, transaction and a confirmed order that
// reserves no catalog stock, ready for delivery scheduling.
func (s *CustomOrderService) VerifyPayment(ctx context.Context, paymentID uint, adminID uuid.UUID, notes string) (*models.CustomOrder, error) {
	var reference string
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		payment, err := claimPayment(tx, paymentID, models.CustomPaymentStatusVerified, adminID, notes)
		if err != nil {
			return err
		}
		custom, err := lockCustomOrder(tx, "id = ?", payment.CustomOrderID)
		if err != nil {
			return err
		}
		reference = custom.Reference

		order, err := s.openOrderInTx(tx, custom, payment, adminID)
		if err != nil {
			return err
		}

		now := time.Now()
		return transitionCustomOrder(tx, custom, models.CustomOrderStatusConfirmed, map[string]interface{}{
			"payment_status":      models.CustomPaymentStatusVerified,
			"payment_verified_at": now,
			"payment_notes":       notes,
			"final_price":         payment.Amount,
			"order_id":            order.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"custom_order_id": reference,
		"payment_id":      paymentID,
		"admin_id":        adminID,
	}).Info("Custom order payment verified")
	return s.Get(ctx, reference, adminID, true)
}

func (s *CustomOrderService) openOrderInTx(tx *gorm.DB, custom *models.CustomOrder, payment *models.CustomOrderPayment, adminID uuid.UUID) (*models.Order, error) {
	now := time.Now()
	amount := payment.Amount

	invoice := models.OrderInvoice{
		InvoiceID:       utils.GenerateReference(utils.PrefixInvoice),
		UserID:          custom.UserID,
		TotalAmount:     amount,
		CustomerName:    custom.CustomerName,
		CustomerEmail:   custom.CustomerEmail,
		CustomerPhone:   custom.CustomerPhone,
		DeliveryAddress: custom.ShippingAddress(),
		Notes:           "Custom order " + custom.Reference,
		Status:          models.InvoiceStatusPaid,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	txn := models.SalesTransaction{
		TransactionID:    utils.GenerateReference(utils.PrefixTransaction),
		InvoiceID:        invoice.InvoiceID,
		UserID:           custom.UserID,
		Amount:           amount,
		PaymentMethod:    models.PaymentMethodGCash,
		PaymentReference: payment.Reference,
		Status:           models.TransactionStatusPaid,
		PaidAt:           &now,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	order := models.Order{
		OrderNumber:     utils.GenerateReference(utils.PrefixOrder),
		UserID:          custom.UserID,
		InvoiceID:       invoice.InvoiceID,
		TransactionID:   txn.TransactionID,
		TotalAmount:     amount,
		ShippingAddress: custom.ShippingAddress(),
		ContactPhone:    firstNonEmpty(custom.CustomerPhone, payment.ContactNumber),
		Notes:           custom.SpecialInstructions,
		Status:          models.OrderStatusConfirmed,
		OrderDate:       now,
		ConfirmedAt:     &now,
		ConfirmedBy:     &adminID,
		DeliveryStatus:  models.DeliveryStatusPending,
	}
	if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// Made-to-order garments carry no catalog product, so the line is never
	// reserved against or shipped from variant stock.
	name := "Custom " + custom.ProductType
	if custom.ProductName != "" {
		name += " - " + custom.ProductName
	}
	item := models.OrderItem{
		OrderID:      order.ID,
		InvoiceID:    invoice.InvoiceID,
		ProductName:  name,
		ProductPrice: amount.DivRound(decimal.NewFromInt(int64(custom.Quantity)), 2),
		Quantity:     custom.Quantity,
		Size:         custom.Size,
		Color:        custom.Color,
		Subtotal:     amount,
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to create order item: %w", err)
	}
	return &order, nil
}

// RejectPayment turns a submitted payment down; the customer may submit a
// new proof afterwards.
func (s *CustomOrderService) RejectPayment(ctx context.Context, paymentID uint, adminID uuid.UUID, reason string) (*models.CustomOrderPayment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	var payment *models.CustomOrderPayment
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		payment, err = claimPayment(tx, paymentID, models.CustomPaymentStatusRejected, adminID, reason)
		if err != nil {
			return err
		}
		return tx.Model(&models.CustomOrder{}).
			Where("id = ? AND payment_status = ?", payment.CustomOrderID, models.CustomPaymentStatusSubmitted).
			Updates(map[string]interface{}{
				"payment_status":       models.CustomPaymentStatusRejected,
				"payment_submitted_at": nil,
				"payment_notes":        reason,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"payment_id": paymentID, "admin_id": adminID}).Info("Custom order payment rejected")
	return payment, nil
}

// MarkReceived lets the customer acknowledge a completed order. Repeating it
// keeps the first timestamp.
func (s *CustomOrderService) MarkReceived(ctx context.Context, userID uuid.UUID, reference string) (*models.CustomOrder, error) {
	order, err := s.Get(ctx, reference, userID, false)
	if err != nil {
		return nil, err
	}
	if order.Status != models.CustomOrderStatusCompleted {
		return nil, fmt.Errorf("%w: custom order %s is %s", ErrInvalidTransition, order.Reference, order.Status)
	}
	if order.ReceivedAt == nil {
		if err := s.db.WithContext(ctx).Model(&models.CustomOrder{}).
			Where("id = ? AND received_at IS NULL", order.ID).
			Update("received_at", time.Now()).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, reference, userID, false)
}

// Cancel cancels a custom order directly from the admin view.
func (s *CustomOrderService) Cancel(ctx context.Context, reference string, actor *uuid.UUID, reason string) (*models.CustomOrder, error) {
	var (
		linked  *models.Order
		touched []uint64
	)
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		custom, err := lockCustomOrder(tx, "reference = ?", reference)
		if err != nil {
			return err
		}
		linked, touched, err = s.cancelInTx(tx, custom, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.orders.stock.InvalidateProducts(ctx, touched...)
	if linked != nil {
		s.orders.notifyCancelled(linked, reason)
	}
	return s.Get(ctx, reference, uuid.Nil, true)
}

// cancelInTx cancels the custom order and, once it has a linked order, that
// order too, which refunds the verified payment. A payment still awaiting
// verification is rejected and must be returned to the customer by hand.
func (s *CustomOrderService) cancelInTx(tx *gorm.DB, custom *models.CustomOrder, actor *uuid.UUID, reason string) (*models.Order, []uint64, error) {
	now := time.Now()
	if err := transitionCustomOrder(tx, custom, models.CustomOrderStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
	}); err != nil {
		return nil, nil, err
	}

	result := tx.Model(&models.CustomOrderPayment{}).
		Where("custom_order_id = ? AND status = ?", custom.ID, models.CustomPaymentStatusSubmitted).
		Updates(map[string]interface{}{
			"status":      models.CustomPaymentStatusRejected,
			"verified_by": actor,
			"verified_at": now,
			"admin_notes": "custom order cancelled",
		})
	if result.Error != nil {
		return nil, nil, result.Error
	}
	if result.RowsAffected > 0 {
		logrus.WithField("custom_order_id", custom.Reference).
			Warn("Unverified payment on cancelled custom order, settle with the customer manually")
	}

	if err := tx.Model(&models.CancellationRequest{}).
		Where("custom_order_id = ? AND status = ?", custom.ID, models.CancellationStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CancellationStatusApproved,
			"processed_by": actor,
			"processed_at": now,
			"admin_notes":  "custom order cancelled",
		}).Error; err != nil {
		return nil, nil, err
	}

	if custom.OrderID == nil {
		return nil, nil, nil
	}
	order, err := lockOrder(tx, *custom.OrderID)
	if err != nil {
		return nil, nil, err
	}
	touched, err := s.orders.cancelInTx(tx, order, actor, reason)
	if err != nil {
		return nil, nil, err
	}
	return order, touched, nil
}
