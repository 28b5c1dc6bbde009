// internal/models/delivery.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending:   {DeliveryStatusScheduled, DeliveryStatusCancelled},
	DeliveryStatusScheduled: {DeliveryStatusInTransit, DeliveryStatusCancelled, DeliveryStatusScheduled},
	DeliveryStatusInTransit: {DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusCancelled},
	DeliveryStatusFailed:    {DeliveryStatusScheduled, DeliveryStatusCancelled},
	DeliveryStatusCancelled: {DeliveryStatusScheduled},
}

func (s DeliveryStatus) Valid() bool {
	_, ok := deliveryStyles[s]
	return ok
}

func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active schedules count against daily capacity.
func (s DeliveryStatus) Active() bool {
	return s == DeliveryStatusScheduled || s == DeliveryStatusInTransit
}

type deliveryStyle struct {
	color string
	icon  string
}

var deliveryStyles = map[DeliveryStatus]deliveryStyle{
	DeliveryStatusPending:   {"#ffc107", "⏳"},
	DeliveryStatusScheduled: {"#007bff", "📅"},
	DeliveryStatusInTransit: {"#000000", "🚚"},
	DeliveryStatusDelivered: {"#28a745", "✅"},
	DeliveryStatusFailed:    {"#dc3545", "⚠️"},
	DeliveryStatusCancelled: {"#6c757d", "❌"},
}

func (s DeliveryStatus) CalendarColor() string { return deliveryStyles[s].color }
func (s DeliveryStatus) CalendarIcon() string  { return deliveryStyles[s].icon }

// DeliverySchedule is the source of truth for calendar display. The order row
// carries a mirror (scheduled_delivery_date, delivery_status).
type DeliverySchedule struct {
	BaseModel
	OrderID              uint            `json:"order_id" gorm:"not null;index"`
	OrderNumber          string          `json:"order_number" gorm:"size:40"`
	CustomerID           uuid.UUID       `json:"customer_id" gorm:"type:char(36);index"`
	CustomerName         string          `json:"customer_name" gorm:"size:150"`
	CustomerEmail        string          `json:"customer_email" gorm:"size:255"`
	CustomerPhone        string          `json:"customer_phone" gorm:"size:30"`
	DeliveryDate         string          `json:"delivery_date" gorm:"size:10;not null;index"`
	DeliveryTimeSlot     string          `json:"delivery_time_slot" gorm:"size:20"`
	DeliveryStatus       DeliveryStatus  `json:"delivery_status" gorm:"type:varchar(20);default:'scheduled';index"`
	DeliveryAddress      string          `json:"delivery_address" gorm:"type:text"`
	DeliveryCity         string          `json:"delivery_city" gorm:"size:100"`
	DeliveryProvince     string          `json:"delivery_province" gorm:"size:100"`
	DeliveryPostalCode   string          `json:"delivery_postal_code" gorm:"size:20"`
	DeliveryContactPhone string          `json:"delivery_contact_phone" gorm:"size:30"`
	DeliveryNotes        string          `json:"delivery_notes" gorm:"type:text"`
	CourierID            *uint           `json:"courier_id" gorm:"index"`
	PriorityLevel        PriorityLevel   `json:"priority_level" gorm:"type:varchar(10);default:'normal'"`
	DeliveryFee          decimal.Decimal `json:"delivery_fee" gorm:"type:decimal(10,2);default:0"`
	TrackingNumber       string          `json:"tracking_number" gorm:"size:40;index"`
	CalendarColor        string          `json:"calendar_color" gorm:"size:10"`
	DisplayIcon          string          `json:"display_icon" gorm:"size:16"`
	ScheduledBy          *uuid.UUID      `json:"scheduled_by" gorm:"type:char(36)"`
	DeliveredAt          *time.Time      `json:"delivered_at"`

	Courier *Courier `json:"courier,omitempty" gorm:"foreignKey:CourierID;constraint:OnDelete:SET NULL"`
}

func (d *DeliverySchedule) ApplyStatus(status DeliveryStatus) {
	d.DeliveryStatus = status
	d.CalendarColor = status.CalendarColor()
	d.DisplayIcon = status.CalendarIcon()
}

type DeliveryCalendarDay struct {
	CalendarDate   string     `json:"date" gorm:"primaryKey;size:10"`
	IsAvailable    bool       `json:"is_available" gorm:"default:true"`
	IsBlackoutDate bool       `json:"is_blackout_date" gorm:"default:false"`
	IsHoliday      bool       `json:"is_holiday" gorm:"default:false"`
	MaxDeliveries  int        `json:"max_deliveries"`
	SpecialNotes   string     `json:"special_notes" gorm:"type:text"`
	SetByAdminID   *uuid.UUID `json:"set_by_admin_id" gorm:"type:char(36)"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (DeliveryCalendarDay) TableName() string { return "delivery_calendar" }

// Bookable reports whether the day accepts new deliveries at all.
func (d *DeliveryCalendarDay) Bookable() bool {
	return d.IsAvailable && !d.IsBlackoutDate
}

type DeliveryStatusLog struct {
	ID                 uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	DeliveryScheduleID uint           `json:"delivery_schedule_id" gorm:"not null;index"`
	OrderID            uint           `json:"order_id" gorm:"not null;index"`
	PreviousStatus     DeliveryStatus `json:"previous_status" gorm:"type:varchar(20)"`
	NewStatus          DeliveryStatus `json:"new_status" gorm:"type:varchar(20);not null"`
	Notes              string         `json:"notes" gorm:"type:text"`
	ChangedBy          *uuid.UUID     `json:"changed_by" gorm:"type:char(36)"`
	CreatedAt          time.Time      `json:"created_at"`
}

type Courier struct {
	BaseModel
	Name                 string                      `json:"name" gorm:"size:150;not null"`
	PhoneNumber          string                      `json:"phone_number" gorm:"size:30;not null"`
	Email                string                      `json:"email" gorm:"size:255"`
	LicenseNumber        string                      `json:"license_number" gorm:"size:60"`
	VehicleType          string                      `json:"vehicle_type" gorm:"size:40;default:'motorcycle'"`
	Status               CourierStatus               `json:"status" gorm:"type:varchar(20);default:'active';index"`
	MaxDeliveriesPerDay  int                         `json:"max_deliveries_per_day" gorm:"default:10"`
	ServiceAreas         datatypes.JSONSlice[string] `json:"service_areas"`
	Rating               decimal.Decimal             `json:"rating" gorm:"type:decimal(3,2);default:5"`
	TotalDeliveries      int                         `json:"total_deliveries" gorm:"default:0"`
	SuccessfulDeliveries int                         `json:"successful_deliveries" gorm:"default:0"`
	Notes                string                      `json:"notes" gorm:"type:text"`
}

// AuditLog records mutating API calls.
type AuditLog struct {
	ID           uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       *uuid.UUID     `json:"user_id" gorm:"type:char(36);index"`
	Action       string         `json:"action" gorm:"size:255;not null"`
	ResourceType string         `json:"resource_type" gorm:"size:50;index"`
	ResourceID   string         `json:"resource_id" gorm:"size:64"`
	StatusCode   int            `json:"status_code"`
	IPAddress    string         `json:"ip_address" gorm:"size:45"`
	UserAgent    string         `json:"user_agent" gorm:"size:500"`
	Payload      datatypes.JSON `json:"payload"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
}
