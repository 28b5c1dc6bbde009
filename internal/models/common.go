// internal/models/common.go
package models

import (
	"time"
)

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enums
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

type StockStatus string

const (
	StockStatusInStock       StockStatus = "in_stock"
	StockStatusLowStock      StockStatus = "low_stock"
	StockStatusCriticalStock StockStatus = "critical_stock"
	StockStatusOutOfStock    StockStatus = "out_of_stock"
)

// Default stock status thresholds, overridable through config.
const (
	DefaultLowStockThreshold      = 15
	DefaultCriticalStockThreshold = 5
)

// StockStatusFor classifies an available quantity.
func StockStatusFor(available, low, critical int) StockStatus {
	switch {
	case available <= 0:
		return StockStatusOutOfStock
	case available <= critical:
		return StockStatusCriticalStock
	case available <= low:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusPaid      TransactionStatus = "paid"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodGCash          PaymentMethod = "gcash"
)

type MovementType string

const (
	MovementTypeIn     MovementType = "IN"
	MovementTypeOut    MovementType = "OUT"
	MovementTypeAdjust MovementType = "ADJUST"
)

// Stock movement reasons
const (
	MovementReasonOrderConfirmed    = "Order Confirmation"
	MovementReasonOrderCancellation = "Order Cancellation"
	MovementReasonOrderDelivered    = "Order Delivered"
	MovementReasonManualAdjustment  = "Manual Adjustment"
	MovementReasonInitialStock      = "Initial Stock"
	MovementReasonStockRepair       = "Stock Repair"
)

type CancellationStatus string

const (
	CancellationStatusPending  CancellationStatus = "pending"
	CancellationStatusApproved CancellationStatus = "approved"
	CancellationStatusRejected CancellationStatus = "rejected"
)

type CourierStatus string

const (
	CourierStatusActive   CourierStatus = "active"
	CourierStatusInactive CourierStatus = "inactive"
)

type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityNormal PriorityLevel = "normal"
	PriorityHigh   PriorityLevel = "high"
	PriorityUrgent PriorityLevel = "urgent"
)

func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
