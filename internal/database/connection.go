// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

var DB *gorm.DB

// GormConfig is shared by the server and the test harness so both get the
// same naming and constraint behaviour.
func GormConfig(logLevel string) *gorm.Config {
	level := logger.Silent
	switch logLevel {
	case "info":
		level = logger.Info
	case "warn":
		level = logger.Warn
	case "error":
		level = logger.Error
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
		// order_items may outlive their product rows; no FK constraints.
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func dialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "postgres" {
		return postgres.Open(cfg.DSN())
	}
	return mysql.Open(cfg.DSN())
}

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	DB, err = gorm.Open(dialector(cfg), GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"driver":   cfg.Driver,
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Database connection established")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

// Models lists every table owned by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Product{},
		&models.ProductVariant{},
		&models.Cart{},
		&models.CartItem{},
		&models.OrderInvoice{},
		&models.SalesTransaction{},
		&models.Order{},
		&models.OrderItem{},
		&models.CustomOrder{},
		&models.CustomOrderImage{},
		&models.CustomOrderPayment{},
		&models.CancellationRequest{},
		&models.StockMovement{},
		&models.Courier{},
		&models.DeliverySchedule{},
		&models.DeliveryCalendarDay{},
		&models.DeliveryStatusLog{},
		&models.AuditLog{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

type compositeIndex struct {
	model   interface{}
	table   string
	name    string
	columns string
}

func createIndexes(db *gorm.DB) error {
	indexes := []compositeIndex{
		{&models.Order{}, "orders", "idx_orders_user_status", "user_id, status"},
		{&models.Order{}, "orders", "idx_orders_status_date", "status, order_date"},
		{&models.OrderItem{}, "order_items", "idx_order_items_product_variant", "product_id, size, color"},
		{&models.StockMovement{}, "stock_movements", "idx_stock_movements_product_created", "product_id, created_at"},
		{&models.DeliverySchedule{}, "delivery_schedules", "idx_delivery_schedules_date_status", "delivery_date, delivery_status"},
		{&models.DeliverySchedule{}, "delivery_schedules", "idx_delivery_schedules_courier_date", "courier_id, delivery_date"},
		{&models.CancellationRequest{}, "cancellation_requests", "idx_cancellation_requests_order_status", "order_id, status"},
		{&models.CustomOrder{}, "custom_orders", "idx_custom_orders_user_status", "user_id, status"},
		{&models.AuditLog{}, "audit_logs", "idx_audit_logs_user_action", "user_id, action"},
	}

	migrator := db.Migrator()
	for _, index := range indexes {
		if migrator.HasIndex(index.model, index.name) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", index.name, index.table, index.columns)
		if err := db.Exec(stmt).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index.name).Warn("Failed to create index")
		}
	}

	return nil
}

// SeedInitialData creates the default admin account.
func SeedInitialData(db *gorm.DB, cfg config.AdminSeedConfig) error {
	logrus.Info("Seeding initial data...")

	var adminCount int64
	if err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount).Error; err != nil {
		return fmt.Errorf("failed to count admin users: %w", err)
	}

	if adminCount == 0 {
		admin := &models.User{
			Username: cfg.Username,
			Email:    cfg.Email,
			FullName: "Seven Four Administrator",
			Role:     models.UserRoleAdmin,
			Status:   models.UserStatusActive,
		}

		if err := admin.SetPassword(cfg.Password); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		logrus.WithField("email", admin.Email).Info("Default admin user created")
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

const maxTxAttempts = 3

// WithRetry runs fn in a transaction, retrying deadlocks and lock wait
// timeouts. fn must be safe to run again from the start.
func WithRetry(db *gorm.DB, fn func(*gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = WithTransaction(db, fn)
		if err == nil || !utils.IsTransientDBError(err) {
			return err
		}
		logrus.WithError(err).WithField("attempt", attempt).Warn("Retrying transaction after transient database error")
		time.Sleep(time.Duration(attempt*50) * time.Millisecond)
	}
	return err
}
