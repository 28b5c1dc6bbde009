// internal/models/cart.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	BaseModel
	UserID uuid.UUID  `json:"user_id" gorm:"type:char(36);not null;uniqueIndex"`
	Items  []CartItem `json:"items,omitempty" gorm:"foreignKey:CartID"`
}

type CartItem struct {
	BaseModel
	CartID    uint            `json:"cart_id" gorm:"not null;index"`
	ProductID uint64          `json:"product_id" gorm:"not null;index"`
	VariantID uint            `json:"variant_id" gorm:"not null"`
	Size      string          `json:"size" gorm:"size:20"`
	Color     string          `json:"color" gorm:"size:50"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (i *CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
