// internal/models/stock.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// StockMovement is an append-only record of a stock delta and its cause.
// Reservations and releases track available quantity in QuantityBefore and
// QuantityAfter; deliveries and adjustments track stock quantity.
type StockMovement struct {
	ID              uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID       uint64       `json:"product_id" gorm:"not null;index"`
	VariantID       *uint        `json:"variant_id" gorm:"index"`
	MovementType    MovementType `json:"movement_type" gorm:"type:varchar(10);not null;index"`
	Quantity        int          `json:"quantity" gorm:"not null"`
	QuantityBefore  int          `json:"quantity_before"`
	QuantityAfter   int          `json:"quantity_after"`
	Size            string       `json:"size" gorm:"size:20"`
	Color           string       `json:"color" gorm:"size:50"`
	Reason          string       `json:"reason" gorm:"size:100;not null"`
	ReferenceNumber string       `json:"reference_number" gorm:"size:60;index"`
	UserID          *uuid.UUID   `json:"user_id" gorm:"type:char(36)"`
	Notes           string       `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"index"`
}

type CancellationRequest struct {
	BaseModel
	// Exactly one of OrderID and CustomOrderID is set.
	OrderID       *uint              `json:"order_id" gorm:"index"`
	CustomOrderID *uint              `json:"custom_order_id" gorm:"index"`
	OrderNumber   string             `json:"order_number" gorm:"size:40"`
	UserID        uuid.UUID          `json:"user_id" gorm:"type:char(36);not null;index"`
	Reason        string             `json:"reason" gorm:"type:text;not null"`
	Status        CancellationStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	AdminNotes    string             `json:"admin_notes" gorm:"type:text"`
	ProcessedBy   *uuid.UUID         `json:"processed_by" gorm:"type:char(36)"`
	ProcessedAt   *time.Time         `json:"processed_at"`

	Order       *Order       `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	CustomOrder *CustomOrder `json:"custom_order,omitempty" gorm:"foreignKey:CustomOrderID"`
}
