// internal/services/registry.go
package services

import (
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/config"
)

// Registry holds every service wired against one database handle. The HTTP
// server and the admin CLI share it.
type Registry struct {
	Auth         *AuthService
	Admin        *AdminService
	Products     *ProductService
	Stock        *StockService
	Storage      *StorageService
	Carts        *CartService
	Orders       *OrderService
	CustomOrders *CustomOrderService
	Cancellation *CancellationService
	Payments     *PaymentService
	Delivery     *DeliveryService
	Couriers     *CourierService
	Notifier     *NotificationService
}

// NewRegistry builds the service graph. A nil cache disables product caching;
// a nil gateway falls back to the Stripe configuration in cfg.
func NewRegistry(db *gorm.DB, cfg *config.Config, cache ProductCache, gateway PaymentGateway) (*Registry, error) {
	storage, err := NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	payments := NewPaymentService(db, cfg)
	if gateway != nil {
		payments = NewPaymentServiceWithGateway(db, gateway, cfg.Payment.Currency)
	}

	notifier := NewNotificationService(cfg)
	stock := NewStockService(db, cache, cfg.Stock)
	carts := NewCartService(db)
	orders := NewOrderService(db, carts, stock, payments, notifier)
	customOrders := NewCustomOrderService(db, orders, storage)

	return &Registry{
		Auth:         NewAuthService(db, cfg),
		Admin:        NewAdminService(db),
		Products:     NewProductService(db, stock, storage, cache),
		Stock:        stock,
		Storage:      storage,
		Carts:        carts,
		Orders:       orders,
		CustomOrders: customOrders,
		Cancellation: NewCancellationService(db, orders, customOrders),
		Payments:     payments,
		Delivery:     NewDeliveryService(db, orders, notifier, cfg.Delivery),
		Couriers:     NewCourierService(db),
		Notifier:     notifier,
	}, nil
}
