// internal/models/product.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Product struct {
	ID                  uint64                          `json:"product_id" gorm:"primaryKey;autoIncrement"`
	Name                string                          `json:"name" gorm:"size:255;not null"`
	Description         string                          `json:"description" gorm:"type:text"`
	ProductType         string                          `json:"product_type" gorm:"size:50;index"`
	Color               string                          `json:"color" gorm:"size:50"`
	Price               decimal.Decimal                 `json:"price" gorm:"type:decimal(10,2);not null"`
	MainImage           string                          `json:"main_image" gorm:"size:500"`
	Images              datatypes.JSONSlice[string]     `json:"images"`
	Sizes               datatypes.JSONType[[]SizeStock] `json:"sizes"`
	TotalStock          int                             `json:"total_stock" gorm:"default:0"`
	TotalAvailableStock int                             `json:"total_available_stock" gorm:"default:0"`
	TotalReservedStock  int                             `json:"total_reserved_stock" gorm:"default:0"`
	StockStatus         StockStatus                     `json:"stock_status" gorm:"type:varchar(20);default:'out_of_stock'"`
	Status              ProductStatus                   `json:"status" gorm:"type:varchar(20);default:'active';index"`
	LastStockUpdate     *time.Time                      `json:"last_stock_update"`
	CreatedAt           time.Time                       `json:"created_at"`
	UpdatedAt           time.Time                       `json:"updated_at"`

	Variants []ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
}

// SizeStock is one entry of the per-size snapshot kept on products.sizes.
type SizeStock struct {
	Size      string       `json:"size"`
	Stock     int          `json:"stock"`
	Available int          `json:"available"`
	Reserved  int          `json:"reserved"`
	Colors    []ColorStock `json:"colors,omitempty"`
}

type ColorStock struct {
	Color     string `json:"color"`
	Stock     int    `json:"stock"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// ProductVariant is one (product, size, color) stock keeping unit.
type ProductVariant struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID         uint64    `json:"product_id" gorm:"not null;uniqueIndex:idx_variant_product_size_color,priority:1"`
	Size              string    `json:"size" gorm:"size:20;not null;uniqueIndex:idx_variant_product_size_color,priority:2"`
	Color             string    `json:"color" gorm:"size:50;not null;uniqueIndex:idx_variant_product_size_color,priority:3"`
	SKU               string    `json:"sku" gorm:"size:100"`
	StockQuantity     int       `json:"stock_quantity" gorm:"not null;default:0"`
	ReservedQuantity  int       `json:"reserved_quantity" gorm:"not null;default:0"`
	AvailableQuantity int       `json:"available_quantity" gorm:"not null;default:0"`
	LowStockThreshold int       `json:"low_stock_threshold" gorm:"default:15"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

// Consistent reports whether the stored counters satisfy
// available = stock - reserved with no negative or oversold values.
func (v *ProductVariant) Consistent() bool {
	return v.ReservedQuantity >= 0 &&
		v.StockQuantity >= 0 &&
		v.ReservedQuantity <= v.StockQuantity &&
		v.AvailableQuantity == v.StockQuantity-v.ReservedQuantity
}

func (v *ProductVariant) Label() string {
	return v.Size + "/" + v.Color
}
