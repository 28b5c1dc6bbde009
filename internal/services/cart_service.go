// internal/services/cart_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

const MaxCartItemQuantity = 99

type CartService struct {
	db *gorm.DB
}

type AddCartItemRequest struct {
	ProductID uint64 `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,size_label"`
	Color     string `json:"color" validate:"required,max=50"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

type CartView struct {
	CartID    uint              `json:"cart_id"`
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     decimal.Decimal   `json:"total"`
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// cartFor returns the user's cart, creating it on first use.
func (s *CartService) cartFor(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	cart := models.Cart{UserID: userID}
	if err := tx.Where(models.Cart{UserID: userID}).FirstOrCreate(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	db := s.db.WithContext(ctx)
	cart, err := s.cartFor(db, userID)
	if err != nil {
		return nil, err
	}

	var items []models.CartItem
	err = db.Preload("Product", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "name", "product_type", "price", "main_image", "status", "total_available_stock")
	}).Where("cart_id = ?", cart.ID).Order("id").Find(&items).Error
	if err != nil {
		return nil, err
	}

	view := &CartView{CartID: cart.ID, Items: items, Total: decimal.Zero}
	for i := range items {
		view.ItemCount += items[i].Quantity
		view.Total = view.Total.Add(items[i].Subtotal())
	}
	return view, nil
}

// AddItem adds a product/size/color line to the cart, merging with an
// existing line for the same combination.
func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, req *AddCartItemRequest) (*CartView, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	size := strings.ToUpper(strings.TrimSpace(req.Size))
	color := strings.TrimSpace(req.Color)

	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, req.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !product.IsActive() {
			return ErrProductUnavailable
		}

		var variant models.ProductVariant
		if err := tx.Where("product_id = ? AND size = ? AND color = ?", product.ID, size, color).First(&variant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrVariantNotFound, size, color)
			}
			return err
		}

		cart, err := s.cartFor(tx, userID)
		if err != nil {
			return err
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ? AND size = ? AND color = ?", cart.ID, product.ID, size, color).
			First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.CartItem{
				CartID:    cart.ID,
				ProductID: product.ID,
				VariantID: variant.ID,
				Size:      size,
				Color:     color,
				Quantity:  req.Quantity,
				Price:     product.Price,
			}
		case err != nil:
			return err
		default:
			item.Quantity += req.Quantity
			item.Price = product.Price
			item.VariantID = variant.ID
		}

		if item.Quantity > MaxCartItemQuantity {
			return fmt.Errorf("%w: at most %d of one item per order", ErrValidation, MaxCartItemQuantity)
		}
		if item.Quantity > variant.AvailableQuantity {
			return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, variant.Label(), variant.AvailableQuantity)
		}

		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// UpdateItem sets an item's quantity; zero removes the item.
func (s *CartService) UpdateItem(ctx context.Context, userID uuid.UUID, itemID uint, req *UpdateCartItemRequest) (*CartView, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		item, err := s.ownedItem(tx, userID, itemID)
		if err != nil {
			return err
		}

		if req.Quantity == 0 {
			return tx.Delete(item).Error
		}

		var variant models.ProductVariant
		if err := tx.First(&variant, item.VariantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariantNotFound
			}
			return err
		}
		if req.Quantity > variant.AvailableQuantity {
			return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, variant.Label(), variant.AvailableQuantity)
		}

		return tx.Model(item).Update("quantity", req.Quantity).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID uuid.UUID, itemID uint) (*CartView, error) {
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		item, err := s.ownedItem(tx, userID, itemID)
		if err != nil {
			return err
		}
		return tx.Delete(item).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.clearInTx(s.db.WithContext(ctx), userID)
}

func (s *CartService) clearInTx(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Where("cart_id IN (?)", tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)).
		Delete(&models.CartItem{}).Error
}

// ownedItem loads a cart item, hiding items of other users as not found.
func (s *CartService) ownedItem(tx *gorm.DB, userID uuid.UUID, itemID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := tx.Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
