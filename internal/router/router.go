// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/handlers"
	"github.com/javajoker/sevenfour-backend/internal/middleware"
	"github.com/javajoker/sevenfour-backend/internal/services"
)

const version = "1.0.0"

func Initialize(db *gorm.DB, cfg *config.Config, svc *services.Registry) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	productHandler := handlers.NewProductHandler(svc.Products, svc.Stock)
	inventoryHandler := handlers.NewInventoryHandler(svc.Stock)
	cartHandler := handlers.NewCartHandler(svc.Carts)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	cancellationHandler := handlers.NewCancellationHandler(svc.Cancellation)
	customOrderHandler := handlers.NewCustomOrderHandler(svc.CustomOrders, svc.Cancellation)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments)
	deliveryHandler := handlers.NewDeliveryHandler(svc.Delivery)
	courierHandler := handlers.NewCourierHandler(svc.Couriers)
	adminHandler := handlers.NewAdminHandler(svc.Admin)

	// limit wraps a rate limiter so tests and trusted deployments can turn it off
	limit := func(h gin.HandlerFunc) gin.HandlerFunc {
		if !cfg.Server.RateLimit {
			return func(c *gin.Context) { c.Next() }
		}
		return h
	}

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(limit(middleware.GeneralRateLimit()))
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": version,
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(limit(middleware.AuthRateLimit()))
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PUT("/me", middleware.AuthRequired(), authHandler.UpdateProfile)
		}

		// Catalog routes (public)
		products := v1.Group("/products")
		products.Use(middleware.OptionalAuth())
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/types", productHandler.GetProductTypes)
			products.GET("/:id", productHandler.GetProduct)
		}

		// Cart routes
		cart := v1.Group("/cart")
		cart.Use(middleware.AuthRequired())
		{
			cart.GET("", cartHandler.GetCart)
			cart.DELETE("", cartHandler.ClearCart)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items/:id", cartHandler.UpdateItem)
			cart.DELETE("/items/:id", cartHandler.RemoveItem)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", limit(middleware.CheckoutRateLimit()), orderHandler.PlaceOrder)
			orders.GET("", orderHandler.GetMyOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.GET("/:id/items", orderHandler.GetOrderItems)
			orders.GET("/:id/invoice", orderHandler.GetInvoice)
			orders.POST("/:id/cancellation", cancellationHandler.RequestCancellation)
		}

		v1.GET("/cancellations/me", middleware.AuthRequired(), cancellationHandler.GetMyCancellations)

		// Custom (made-to-order) designs
		customOrders := v1.Group("/custom-orders")
		customOrders.Use(middleware.AuthRequired())
		{
			customOrders.POST("", limit(middleware.UploadRateLimit()), customOrderHandler.Submit)
			customOrders.GET("", customOrderHandler.GetMine)
			customOrders.GET("/:ref", customOrderHandler.Get)
			customOrders.POST("/:ref/payment", limit(middleware.UploadRateLimit()), customOrderHandler.SubmitPayment)
			customOrders.POST("/:ref/cancellation", customOrderHandler.RequestCancellation)
			customOrders.POST("/:ref/received", customOrderHandler.MarkReceived)
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("/intent", limit(middleware.CheckoutRateLimit()), paymentHandler.CreatePaymentIntent)
			payments.POST("/confirm", paymentHandler.ConfirmPayment)
			payments.GET("/history", paymentHandler.GetPaymentHistory)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			// Dashboard
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)

			// Order management
			adminOrders := admin.Group("/orders")
			{
				adminOrders.GET("", orderHandler.AdminGetOrders)
				adminOrders.GET("/:id", orderHandler.GetOrder)
				adminOrders.PUT("/:id/confirm", orderHandler.ConfirmOrder)
				adminOrders.PUT("/:id/status", orderHandler.UpdateOrderStatus)
				adminOrders.PUT("/:id/payment", paymentHandler.VerifyPayment)
			}

			// Cancellation requests
			adminCancellations := admin.Group("/cancellations")
			{
				adminCancellations.GET("", cancellationHandler.GetCancellations)
				adminCancellations.PUT("/:id/approve", cancellationHandler.ApproveCancellation)
				adminCancellations.PUT("/:id/reject", cancellationHandler.RejectCancellation)
			}

			// Custom orders and their offline payments
			adminCustomOrders := admin.Group("/custom-orders")
			{
				adminCustomOrders.GET("", customOrderHandler.AdminList)
				adminCustomOrders.GET("/:ref", customOrderHandler.Get)
				adminCustomOrders.PUT("/:ref/status", customOrderHandler.Review)
				adminCustomOrders.POST("/:ref/cancel", customOrderHandler.Cancel)
			}
			adminCustomPayments := admin.Group("/custom-payments")
			{
				adminCustomPayments.GET("/pending", customOrderHandler.PendingPayments)
				adminCustomPayments.PUT("/:id/approve", customOrderHandler.ApprovePayment)
				adminCustomPayments.PUT("/:id/reject", customOrderHandler.RejectPayment)
			}

			// Catalog management
			adminProducts := admin.Group("/products")
			{
				adminProducts.GET("", productHandler.AdminGetProducts)
				adminProducts.GET("/:id", productHandler.AdminGetProduct)
				adminProducts.POST("", productHandler.CreateProduct)
				adminProducts.PUT("/:id", productHandler.UpdateProduct)
				adminProducts.DELETE("/:id", productHandler.ArchiveProduct)
				adminProducts.POST("/:id/images", limit(middleware.UploadRateLimit()), productHandler.UploadProductImage)
				adminProducts.PUT("/:id/variants", productHandler.UpsertVariant)
			}

			// Stock
			admin.POST("/variants/:id/adjust", inventoryHandler.AdjustVariant)
			admin.GET("/inventory", inventoryHandler.GetInventory)
			admin.GET("/inventory/low-stock", inventoryHandler.GetLowStock)
			admin.GET("/stock/movements", inventoryHandler.GetMovements)
			admin.GET("/stock/verify", inventoryHandler.VerifyStock)
			admin.POST("/stock/repair", inventoryHandler.RepairStock)

			// Delivery scheduling
			delivery := admin.Group("/delivery")
			{
				delivery.GET("/schedules", deliveryHandler.GetSchedules)
				delivery.POST("/schedules", deliveryHandler.ScheduleDelivery)
				delivery.GET("/schedules/:id", deliveryHandler.GetSchedule)
				delivery.PUT("/schedules/:id/status", deliveryHandler.UpdateStatus)
				delivery.PUT("/schedules/:id/courier", deliveryHandler.AssignCourier)
				delivery.GET("/calendar", deliveryHandler.GetCalendar)
				delivery.PUT("/calendar/:date", deliveryHandler.SetAvailability)
				delivery.POST("/calendar/unavailable", deliveryHandler.MarkUnavailable)
				delivery.GET("/reconcile", deliveryHandler.CheckReconcile)
				delivery.POST("/reconcile", deliveryHandler.RepairReconcile)
			}

			// Couriers
			couriers := admin.Group("/couriers")
			{
				couriers.GET("", courierHandler.GetCouriers)
				couriers.GET("/active", courierHandler.GetActiveCouriers)
				couriers.POST("", courierHandler.CreateCourier)
				couriers.PUT("/:id", courierHandler.UpdateCourier)
				couriers.DELETE("/:id", courierHandler.DeleteCourier)
				couriers.GET("/:id/stats", courierHandler.GetCourierStats)
			}

			// Users and audit trail
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
		}
	}

	// Local uploads are served from disk when S3 is not configured
	if !svc.Storage.UsesS3() {
		r.Static(cfg.Upload.PublicURL, cfg.Upload.Dir)
	}

	return r
}
