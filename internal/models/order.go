// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// OrderInvoice, SalesTransaction and Order are written together for each purchase
// and linked by the generated invoice_id / transaction_id strings.
type OrderInvoice struct {
	BaseModel
	InvoiceID       string          `json:"invoice_id" gorm:"size:40;not null;uniqueIndex"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;index"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	CustomerName    string          `json:"customer_name" gorm:"size:150"`
	CustomerEmail   string          `json:"customer_email" gorm:"size:255"`
	CustomerPhone   string          `json:"customer_phone" gorm:"size:30"`
	DeliveryAddress string          `json:"delivery_address" gorm:"type:text"`
	Notes           string          `json:"notes" gorm:"type:text"`
	Status          InvoiceStatus   `json:"invoice_status" gorm:"column:invoice_status;type:varchar(20);default:'pending';index"`
}

type SalesTransaction struct {
	BaseModel
	TransactionID    string            `json:"transaction_id" gorm:"size:40;not null;uniqueIndex"`
	InvoiceID        string            `json:"invoice_id" gorm:"size:40;not null;index"`
	UserID           uuid.UUID         `json:"user_id" gorm:"type:char(36);not null;index"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentMethod    PaymentMethod     `json:"payment_method" gorm:"type:varchar(30);default:'cash_on_delivery'"`
	PaymentReference string            `json:"payment_reference" gorm:"size:255"`
	Status           TransactionStatus `json:"transaction_status" gorm:"column:transaction_status;type:varchar(20);default:'pending';index"`
	PaidAt           *time.Time        `json:"paid_at"`
	RefundedAt       *time.Time        `json:"refunded_at"`
}

type Order struct {
	BaseModel
	OrderNumber           string          `json:"order_number" gorm:"size:40;not null;uniqueIndex"`
	UserID                uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;index"`
	InvoiceID             string          `json:"invoice_id" gorm:"size:40;not null;index"`
	TransactionID         string          `json:"transaction_id" gorm:"size:40;not null;index"`
	TotalAmount           decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	ShippingAddress       string          `json:"shipping_address" gorm:"type:text;not null"`
	ContactPhone          string          `json:"contact_phone" gorm:"size:30;not null"`
	Notes                 string          `json:"notes" gorm:"type:text"`
	Status                OrderStatus     `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	StockReserved         bool            `json:"stock_reserved" gorm:"default:false"`
	OrderDate             time.Time       `json:"order_date"`
	ConfirmedAt           *time.Time      `json:"confirmed_at"`
	ConfirmedBy           *uuid.UUID      `json:"confirmed_by" gorm:"type:char(36)"`
	CancelledAt           *time.Time      `json:"cancelled_at"`
	DeliveredAt           *time.Time      `json:"delivered_at"`
	ScheduledDeliveryDate *string         `json:"scheduled_delivery_date" gorm:"size:10"`
	DeliveryStatus        DeliveryStatus  `json:"delivery_status" gorm:"type:varchar(20);default:'pending'"`

	Items       []OrderItem       `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	Invoice     *OrderInvoice     `json:"invoice,omitempty" gorm:"foreignKey:InvoiceID;references:InvoiceID"`
	Transaction *SalesTransaction `json:"transaction,omitempty" gorm:"foreignKey:TransactionID;references:TransactionID"`
}

type OrderItem struct {
	BaseModel
	OrderID      uint            `json:"order_id" gorm:"not null;index"`
	InvoiceID    string          `json:"invoice_id" gorm:"size:40;not null;index"`
	ProductID    uint64          `json:"product_id" gorm:"not null;index"`
	VariantID    *uint           `json:"variant_id"`
	ProductName  string          `json:"product_name" gorm:"size:255"`
	ProductPrice decimal.Decimal `json:"product_price" gorm:"type:decimal(10,2);not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	Color        string          `json:"color" gorm:"size:50"`
	Size         string          `json:"size" gorm:"size:20"`
	Subtotal     decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
}

// ItemsTotal sums the line subtotals.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}
