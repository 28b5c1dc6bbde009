// internal/services/order_service.go
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
	"gorm.io/gorm/clause"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type OrderService struct {
	db       *gorm.DB
	carts    *CartService
	stock    *StockService
	payments *PaymentService
	notifier *NotificationService
}

type PlaceOrderRequest struct {
	ShippingAddress string               `json:"shipping_address" validate:"required,min=5,max=1000"`
	ContactPhone    string               `json:"contact_phone" validate:"required,ph_phone"`
	Notes           string               `json:"notes" validate:"max=1000"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=cash_on_delivery card bank_transfer"`
	CustomerName    string               `json:"customer_name" validate:"max=150"`
	CustomerEmail   string               `json:"customer_email" validate:"omitempty,email"`
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=confirmed delivered cancelled"`
	Reason string             `json:"reason" validate:"max=1000"`
}

type OrderFilter struct {
	Status     models.OrderStatus
	UserID     *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
	Pagination utils.PaginationParams
}

// InvoiceDocument is the printable view of a purchase.
type InvoiceDocument struct {
	Invoice     models.OrderInvoice      `json:"invoice"`
	Order       models.Order             `json:"order"`
	Items       []models.OrderItem       `json:"items"`
	Transaction *models.SalesTransaction `json:"transaction,omitempty"`
	ItemsTotal  decimal.Decimal          `json:"items_total"`
}

func NewOrderService(db *gorm.DB, carts *CartService, stock *StockService, payments *PaymentService, notifier *NotificationService) *OrderService {
	return &OrderService{
		db:       db,
		carts:    carts,
		stock:    stock,
		payments: payments,
		notifier: notifier,
	}
}

// PlaceOrder turns the user's cart into an invoice, a transaction, an order
// and its items, and empties the cart, all in one transaction. Stock is only
// checked here; it is reserved when an admin confirms the order.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, req *PlaceOrderRequest) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCashOnDelivery
	}

	var (
		order models.Order
		user  models.User
	)
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var cartItems []models.CartItem
		err := tx.Preload("Product").
			Joins("JOIN carts ON carts.id = cart_items.cart_id").
			Where("carts.user_id = ?", userID).
			Order("cart_items.id").
			Find(&cartItems).Error
		if err != nil {
			return err
		}
		if len(cartItems) == 0 {
			return ErrEmptyCart
		}

		items := make([]models.OrderItem, 0, len(cartItems))
		for _, ci := range cartItems {
			if ci.Product == nil || !ci.Product.IsActive() {
				return fmt.Errorf("%w: product %d", ErrProductUnavailable, ci.ProductID)
			}

			var variant models.ProductVariant
			if err := tx.First(&variant, ci.VariantID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s/%s", ErrVariantNotFound, ci.Size, ci.Color)
				}
				return err
			}
			if variant.AvailableQuantity < ci.Quantity {
				return fmt.Errorf("%w: %s %s has %d available, %d requested",
					ErrInsufficientStock, ci.Product.Name, variant.Label(), variant.AvailableQuantity, ci.Quantity)
			}

			variantID := variant.ID
			price := ci.Product.Price
			items = append(items, models.OrderItem{
				ProductID:    ci.ProductID,
				VariantID:    &variantID,
				ProductName:  ci.Product.Name,
				ProductPrice: price,
				Quantity:     ci.Quantity,
				Size:         variant.Size,
				Color:        variant.Color,
				Subtotal:     price.Mul(decimal.NewFromInt(int64(ci.Quantity))),
			})
		}
		total := models.ItemsTotal(items)

		customerName := strings.TrimSpace(req.CustomerName)
		if customerName == "" {
			customerName = user.DisplayName()
		}
		customerEmail := req.CustomerEmail
		if customerEmail == "" {
			customerEmail = user.Email
		}
		phone := utils.NormalizePhone(req.ContactPhone)

		invoice := models.OrderInvoice{
			InvoiceID:       utils.GenerateReference(utils.PrefixInvoice),
			UserID:          userID,
			TotalAmount:     total,
			CustomerName:    customerName,
			CustomerEmail:   customerEmail,
			CustomerPhone:   phone,
			DeliveryAddress: req.ShippingAddress,
			Notes:           req.Notes,
			Status:          models.InvoiceStatusPending,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		txn := models.SalesTransaction{
			TransactionID: utils.GenerateReference(utils.PrefixTransaction),
			InvoiceID:     invoice.InvoiceID,
			UserID:        userID,
			Amount:        total,
			PaymentMethod: method,
			Status:        models.TransactionStatusPending,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		order = models.Order{
			OrderNumber:     utils.GenerateReference(utils.PrefixOrder),
			UserID:          userID,
			InvoiceID:       invoice.InvoiceID,
			TransactionID:   txn.TransactionID,
			TotalAmount:     total,
			ShippingAddress: req.ShippingAddress,
			ContactPhone:    phone,
			Notes:           req.Notes,
			Status:          models.OrderStatusPending,
			OrderDate:       time.Now(),
			DeliveryStatus:  models.DeliveryStatusPending,
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			items[i].InvoiceID = invoice.InvoiceID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}
		order.Items = items

		return s.carts.clearInTx(tx, userID)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"user_id":      userID,
		"items":        len(order.Items),
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("Order placed")

	if s.notifier != nil {
		placed := order
		s.notifier.Dispatch("order_placed", func() error { return s.notifier.SendOrderPlaced(&user, &placed) })
	}

	return s.loadOrder(ctx, order.ID)
}

func (s *OrderService) loadOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Invoice").
		Preload("Transaction").
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// lockOrder loads an order and its items inside a transaction.
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// transitionOrder applies a compare-and-set status change. Zero affected rows
// means another request changed the order first.
func transitionOrder(tx *gorm.DB, order *models.Order, next models.OrderStatus, updates map[string]interface{}) error {
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s is %s, cannot become %s", ErrInvalidTransition, order.OrderNumber, order.Status, next)
	}
	updates["status"] = next

	result := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidTransition, order.OrderNumber)
	}
	order.Status = next
	return nil
}

func productIDsOf(items []models.OrderItem) []uint64 {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// ConfirmOrder reserves stock for every item of a pending order. Either every
// item is reserved or the whole confirmation rolls back.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID uint, adminID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		now := time.Now()
		err = transitionOrder(tx, order, models.OrderStatusConfirmed, map[string]interface{}{
			"stock_reserved": true,
			"confirmed_at":   now,
			"confirmed_by":   adminID,
		})
		if err != nil {
			return err
		}

		meta := MovementMeta{Reference: order.OrderNumber, Reason: models.MovementReasonOrderConfirmed, UserID: &adminID}
		for _, item := range order.Items {
			if err := s.stock.Reserve(tx, lineFromOrderItem(item), meta); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.OrderInvoice{}).
			Where("invoice_id = ? AND invoice_status = ?", order.InvoiceID, models.InvoiceStatusPending).
			Update("invoice_status", models.InvoiceStatusConfirmed).Error; err != nil {
			return err
		}
		return tx.Model(&models.SalesTransaction{}).
			Where("transaction_id = ? AND transaction_status = ?", order.TransactionID, models.TransactionStatusPending).
			Update("transaction_status", models.TransactionStatusConfirmed).Error
	})
	if err != nil {
		return nil, err
	}

	s.stock.InvalidateProducts(ctx, productIDsOf(order.Items)...)
	logrus.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"admin_id":     adminID,
		"items":        len(order.Items),
	}).Info("Order confirmed, stock reserved")

	confirmed, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.notify("order_confirmed", confirmed.UserID, func(user *models.User) error {
		return s.notifier.SendOrderConfirmed(user, confirmed)
	})
	return confirmed, nil
}

// UpdateStatus drives the admin order state machine.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, req *UpdateOrderStatusRequest, adminID uuid.UUID) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch req.Status {
	case models.OrderStatusConfirmed:
		return s.ConfirmOrder(ctx, orderID, adminID)
	case models.OrderStatusCancelled:
		return s.CancelOrder(ctx, orderID, &adminID, req.Reason)
	case models.OrderStatusDelivered:
		var touched []uint64
		err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
			order, err := lockOrder(tx, orderID)
			if err != nil {
				return err
			}
			touched, err = s.markDelivered(tx, order, &adminID, req.Reason)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.stock.InvalidateProducts(ctx, touched...)
		return s.loadOrder(ctx, orderID)
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, req.Status)
}

// markDelivered completes a confirmed order: reservations become shipped
// stock, the delivery mirror is closed and cash on delivery is collected.
// Delivering an already delivered order is a no-op.
func (s *OrderService) markDelivered(tx *gorm.DB, order *models.Order, actor *uuid.UUID, notes string) ([]uint64, error) {
	if order.Status == models.OrderStatusDelivered {
		return nil, nil
	}

	now := time.Now()
	wasReserved := order.StockReserved
	err := transitionOrder(tx, order, models.OrderStatusDelivered, map[string]interface{}{
		"stock_reserved":  false,
		"delivered_at":    now,
		"delivery_status": models.DeliveryStatusDelivered,
	})
	if err != nil {
		return nil, err
	}

	var touched []uint64
	if wasReserved {
		meta := MovementMeta{Reference: order.OrderNumber, Reason: models.MovementReasonOrderDelivered, UserID: actor}
		for _, item := range order.Items {
			if orphan, err := isOrphanItem(tx, item); err != nil {
				return nil, err
			} else if orphan {
				logrus.WithFields(logrus.Fields{
					"order_number": order.OrderNumber,
					"product_id":   item.ProductID,
				}).Warn("Skipping shipment of orphaned order item")
				continue
			}
			if err := s.stock.Ship(tx, lineFromOrderItem(item), meta); err != nil {
				return nil, err
			}
			touched = append(touched, item.ProductID)
		}
	}

	if err := tx.Model(&models.SalesTransaction{}).
		Where("transaction_id = ? AND payment_method = ? AND transaction_status IN ?", order.TransactionID,
			models.PaymentMethodCashOnDelivery,
			[]models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusConfirmed}).
		Updates(map[string]interface{}{"transaction_status": models.TransactionStatusPaid, "paid_at": now}).Error; err != nil {
		return nil, err
	}
	var paid int64
	if err := tx.Model(&models.SalesTransaction{}).
		Where("transaction_id = ? AND transaction_status = ?", order.TransactionID, models.TransactionStatusPaid).
		Count(&paid).Error; err != nil {
		return nil, err
	}
	if paid > 0 {
		if err := tx.Model(&models.OrderInvoice{}).Where("invoice_id = ?", order.InvoiceID).
			Update("invoice_status", models.InvoiceStatusPaid).Error; err != nil {
			return nil, err
		}
	}

	if _, err := setScheduleStatusForOrder(tx, order.ID, models.DeliveryStatusDelivered, actor, notes); err != nil {
		return nil, err
	}
	if err := tx.Model(&models.CustomOrder{}).
		Where("order_id = ? AND status = ?", order.ID, models.CustomOrderStatusConfirmed).
		Update("status", models.CustomOrderStatusCompleted).Error; err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"shipped":      wasReserved,
	}).Info("Order delivered")
	return touched, nil
}

// isOrphanItem reports whether the item's product row no longer exists.
func isOrphanItem(tx *gorm.DB, item models.OrderItem) (bool, error) {
	var count int64
	if err := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// CancelOrder cancels an order directly, as an admin does from the order view.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint, actor *uuid.UUID, reason string) (*models.Order, error) {
	var (
		order   *models.Order
		touched []uint64
	)
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		touched, err = s.cancelInTx(tx, order, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.stock.InvalidateProducts(ctx, touched...)
	s.notifyCancelled(order, reason)
	return s.loadOrder(ctx, orderID)
}

// cancelInTx cancels the order, releases its reservation when it holds one,
// settles the payment and cancels the delivery schedule. Items whose product
// row is gone are skipped with a warning. It returns the products whose
// stock changed.
func (s *OrderService) cancelInTx(tx *gorm.DB, order *models.Order, actor *uuid.UUID, reason string) ([]uint64, error) {
	wasReserved := order.StockReserved
	err := transitionOrder(tx, order, models.OrderStatusCancelled, map[string]interface{}{
		"stock_reserved": false,
		"cancelled_at":   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	var touched []uint64
	if wasReserved {
		meta := MovementMeta{
			Reference: order.OrderNumber,
			Reason:    models.MovementReasonOrderCancellation,
			UserID:    actor,
			Notes:     reason,
		}
		for _, item := range order.Items {
			orphan, err := isOrphanItem(tx, item)
			if err != nil {
				return nil, err
			}
			if orphan {
				logrus.WithFields(logrus.Fields{
					"order_number": order.OrderNumber,
					"product_id":   item.ProductID,
					"quantity":     item.Quantity,
				}).Warn("Skipping stock release for orphaned order item")
				continue
			}

			if _, err := s.stock.Release(tx, lineFromOrderItem(item), meta); err != nil {
				if errors.Is(err, ErrVariantNotFound) {
					logrus.WithError(err).WithField("order_number", order.OrderNumber).Warn("Skipping stock release for missing variant")
					continue
				}
				return nil, err
			}
			touched = append(touched, item.ProductID)
		}
	}

	if err := tx.Model(&models.OrderInvoice{}).Where("invoice_id = ?", order.InvoiceID).
		Update("invoice_status", models.InvoiceStatusCancelled).Error; err != nil {
		return nil, err
	}
	if err := s.payments.settleCancelledInTx(tx, order.TransactionID, reason); err != nil {
		return nil, err
	}

	if _, err := setScheduleStatusForOrder(tx, order.ID, models.DeliveryStatusCancelled, actor, reason); err != nil {
		return nil, err
	}

	// Any other open request for this order is settled by the cancellation.
	now := time.Now()
	if err := tx.Model(&models.CancellationRequest{}).
		Where("order_id = ? AND status = ?", order.ID, models.CancellationStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CancellationStatusApproved,
			"processed_by": actor,
			"processed_at": now,
			"admin_notes":  "order cancelled",
		}).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.CustomOrder{}).
		Where("order_id = ? AND status = ?", order.ID, models.CustomOrderStatusConfirmed).
		Updates(map[string]interface{}{
			"status":       models.CustomOrderStatusCancelled,
			"cancelled_at": now,
		}).Error; err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"released":     wasReserved,
		"reason":       reason,
	}).Info("Order cancelled")
	return touched, nil
}

func (s *OrderService) notify(kind string, userID uuid.UUID, send func(user *models.User) error) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		logrus.WithError(err).WithField("notification", kind).Warn("Skipping notification, user not found")
		return
	}
	s.notifier.Dispatch(kind, func() error { return send(&user) })
}

func (s *OrderService) notifyCancelled(order *models.Order, reason string) {
	cancelled := *order
	s.notify("order_cancelled", order.UserID, func(user *models.User) error {
		return s.notifier.SendOrderCancelled(user, &cancelled, reason)
	})
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.ListOrders(ctx, OrderFilter{UserID: &userID, Pagination: params})
}

// ListOrders serves both the customer history and the admin order table.
func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	params := utils.NormalizePagination(filter.Pagination)
	query := s.db.WithContext(ctx).Model(&models.Order{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("order_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("order_date < ?", *filter.DateTo)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("order_number LIKE ? OR invoice_id LIKE ? OR contact_phone LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = utils.ApplySort(query, params, []string{"created_at", "order_date", "total_amount", "status"})

	var orders []models.Order
	err := utils.ApplyPagination(query, params).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Find(&orders).Error
	return orders, total, err
}

// GetOrder returns an order with its items, invoice and transaction. Only the
// owner or an admin may see it.
func (s *OrderService) GetOrder(ctx context.Context, orderID uint, userID uuid.UUID, isAdmin bool) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) GetOrderItems(ctx context.Context, orderID uint, userID uuid.UUID, isAdmin bool) ([]models.OrderItem, error) {
	order, err := s.GetOrder(ctx, orderID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	return order.Items, nil
}

func (s *OrderService) GetInvoice(ctx context.Context, orderID uint, userID uuid.UUID, isAdmin bool) (*InvoiceDocument, error) {
	order, err := s.GetOrder(ctx, orderID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if order.Invoice == nil {
		return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, order.InvoiceID)
	}

	doc := &InvoiceDocument{
		Invoice:     *order.Invoice,
		Items:       order.Items,
		Transaction: order.Transaction,
		ItemsTotal:  models.ItemsTotal(order.Items),
	}
	doc.Order = *order
	doc.Order.Items = nil
	doc.Order.Invoice = nil
	doc.Order.Transaction = nil
	return doc, nil
}
