// internal/models/custom_order.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CustomOrderStatus string

const (
	CustomOrderStatusPending   CustomOrderStatus = "pending"
	CustomOrderStatusApproved  CustomOrderStatus = "approved"
	CustomOrderStatusRejected  CustomOrderStatus = "rejected"
	CustomOrderStatusConfirmed CustomOrderStatus = "confirmed"
	CustomOrderStatusCompleted CustomOrderStatus = "completed"
	CustomOrderStatusCancelled CustomOrderStatus = "cancelled"
)

// A design is reviewed (approved or rejected), then paid for. Verified
// payment confirms it and opens a regular order that goes through delivery.
var customOrderTransitions = map[CustomOrderStatus][]CustomOrderStatus{
	CustomOrderStatusPending:   {CustomOrderStatusApproved, CustomOrderStatusRejected, CustomOrderStatusCancelled},
	CustomOrderStatusApproved:  {CustomOrderStatusConfirmed, CustomOrderStatusRejected, CustomOrderStatusCancelled},
	CustomOrderStatusConfirmed: {CustomOrderStatusCompleted, CustomOrderStatusCancelled},
}

func (s CustomOrderStatus) CanTransitionTo(next CustomOrderStatus) bool {
	for _, allowed := range customOrderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type CustomPaymentStatus string

const (
	CustomPaymentStatusPending   CustomPaymentStatus = "pending"
	CustomPaymentStatusSubmitted CustomPaymentStatus = "submitted"
	CustomPaymentStatusVerified  CustomPaymentStatus = "verified"
	CustomPaymentStatusRejected  CustomPaymentStatus = "rejected"
)

type Urgency string

const (
	UrgencyStandard Urgency = "standard"
	UrgencyExpress  Urgency = "express"
	UrgencyRush     Urgency = "rush"
)

type CustomOrder struct {
	BaseModel
	Reference           string              `json:"custom_order_id" gorm:"size:40;uniqueIndex;not null"`
	UserID              uuid.UUID           `json:"user_id" gorm:"type:char(36);not null;index"`
	ProductType         string              `json:"product_type" gorm:"size:50;not null;index"`
	ProductName         string              `json:"product_name" gorm:"size:255"`
	Size                string              `json:"size" gorm:"size:20;not null"`
	Color               string              `json:"color" gorm:"size:50;not null"`
	Quantity            int                 `json:"quantity" gorm:"not null;default:1"`
	Urgency             Urgency             `json:"urgency" gorm:"type:varchar(20);default:'standard'"`
	SpecialInstructions string              `json:"special_instructions" gorm:"type:text"`
	CustomerName        string              `json:"customer_name" gorm:"size:150;not null"`
	CustomerEmail       string              `json:"customer_email" gorm:"size:255;not null"`
	CustomerPhone       string              `json:"customer_phone" gorm:"size:30"`
	Province            string              `json:"province" gorm:"size:100;not null"`
	Municipality        string              `json:"municipality" gorm:"size:100;not null"`
	StreetNumber        string              `json:"street_number" gorm:"size:255;not null"`
	HouseNumber         string              `json:"house_number" gorm:"size:100"`
	Barangay            string              `json:"barangay" gorm:"size:100"`
	PostalCode          string              `json:"postal_code" gorm:"size:20"`
	EstimatedPrice      decimal.Decimal     `json:"estimated_price" gorm:"type:decimal(10,2);not null"`
	FinalPrice          decimal.Decimal     `json:"final_price" gorm:"type:decimal(10,2);default:0"`
	Status              CustomOrderStatus   `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentStatus       CustomPaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'pending';index"`
	AdminNotes          string              `json:"admin_notes" gorm:"type:text"`
	PaymentNotes        string              `json:"payment_notes" gorm:"type:text"`
	ReviewedBy          *uuid.UUID          `json:"reviewed_by" gorm:"type:char(36)"`
	ReviewedAt          *time.Time          `json:"reviewed_at"`
	PaymentSubmittedAt  *time.Time          `json:"payment_submitted_at"`
	PaymentVerifiedAt   *time.Time          `json:"payment_verified_at"`
	OrderID             *uint               `json:"order_id" gorm:"index"`
	ReceivedAt          *time.Time          `json:"received_at"`
	CancelledAt         *time.Time          `json:"cancelled_at"`

	Images   []CustomOrderImage   `json:"images,omitempty" gorm:"foreignKey:CustomOrderID"`
	Payments []CustomOrderPayment `json:"payments,omitempty" gorm:"foreignKey:CustomOrderID"`
	Order    *Order               `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

// AmountDue is the reviewed price when one was set, the estimate otherwise.
func (o *CustomOrder) AmountDue() decimal.Decimal {
	if o.FinalPrice.IsPositive() {
		return o.FinalPrice
	}
	return o.EstimatedPrice
}

// ShippingAddress renders the structured address on one line.
func (o *CustomOrder) ShippingAddress() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{o.HouseNumber, o.StreetNumber, o.Barangay, o.Municipality, o.Province, o.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type CustomOrderImage struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomOrderID    uint      `json:"custom_order_id" gorm:"not null;index"`
	URL              string    `json:"url" gorm:"size:500;not null"`
	StorageKey       string    `json:"-" gorm:"size:255"`
	OriginalFilename string    `json:"original_filename" gorm:"size:255"`
	Size             int64     `json:"size"`
	MimeType         string    `json:"mime_type" gorm:"size:50"`
	Position         int       `json:"position"`
	CreatedAt        time.Time `json:"created_at"`
}

// CustomOrderPayment is a customer's proof of an offline (e-wallet or bank)
// payment awaiting admin verification.
type CustomOrderPayment struct {
	BaseModel
	CustomOrderID uint                `json:"custom_order_id" gorm:"not null;index"`
	UserID        uuid.UUID           `json:"user_id" gorm:"type:char(36);not null"`
	FullName      string              `json:"full_name" gorm:"size:150;not null"`
	ContactNumber string              `json:"contact_number" gorm:"size:30;not null"`
	Reference     string              `json:"reference" gorm:"size:100;not null"`
	ProofURL      string              `json:"proof_url" gorm:"size:500;not null"`
	ProofKey      string              `json:"-" gorm:"size:255"`
	Amount        decimal.Decimal     `json:"amount" gorm:"type:decimal(10,2);not null"`
	Status        CustomPaymentStatus `json:"status" gorm:"type:varchar(20);default:'submitted';index"`
	VerifiedBy    *uuid.UUID          `json:"verified_by" gorm:"type:char(36)"`
	VerifiedAt    *time.Time          `json:"verified_at"`
	AdminNotes    string              `json:"admin_notes" gorm:"type:text"`

	CustomOrder *CustomOrder `json:"custom_order,omitempty" gorm:"foreignKey:CustomOrderID"`
}
