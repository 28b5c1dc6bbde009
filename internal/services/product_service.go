// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type ProductService struct {
	db      *gorm.DB
	stock   *StockService
	storage *StorageService
	cache   ProductCache
}

type CreateProductRequest struct {
	ID          uint64                `json:"product_id,omitempty"`
	Name        string                `json:"name" validate:"required,min=2,max=255"`
	Description string                `json:"description" validate:"max=5000"`
	ProductType string                `json:"product_type" validate:"required,max=50"`
	Color       string                `json:"color" validate:"max=50"`
	Price       decimal.Decimal       `json:"price"`
	MainImage   string                `json:"main_image" validate:"max=500"`
	Images      []string              `json:"images,omitempty"`
	Variants    []VariantStockRequest `json:"variants,omitempty" validate:"dive"`
}

type UpdateProductRequest struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=5000"`
	ProductType *string              `json:"product_type,omitempty" validate:"omitempty,max=50"`
	Color       *string              `json:"color,omitempty" validate:"omitempty,max=50"`
	Price       *decimal.Decimal     `json:"price,omitempty"`
	MainImage   *string              `json:"main_image,omitempty" validate:"omitempty,max=500"`
	Images      []string             `json:"images,omitempty"`
	Status      models.ProductStatus `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	ProductType string
	Color       string
	Size        string
	PriceMin    *decimal.Decimal
	PriceMax    *decimal.Decimal
	InStock     *bool
	// admin listings may include archived products
	IncludeArchived bool
}

func NewProductService(db *gorm.DB, stock *StockService, storage *StorageService, cache ProductCache) *ProductService {
	if cache == nil {
		cache = NoopProductCache{}
	}
	return &ProductService{db: db, stock: stock, storage: storage, cache: cache}
}

func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest, adminID uuid.UUID) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}

	product := &models.Product{
		ID:          req.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ProductType: strings.ToLower(strings.TrimSpace(req.ProductType)),
		Color:       req.Color,
		Price:       req.Price.Round(2),
		MainImage:   req.MainImage,
		Images:      datatypes.JSONSlice[string](req.Images),
		StockStatus: models.StockStatusOutOfStock,
		Status:      models.ProductStatusActive,
	}
	if product.Images == nil {
		product.Images = datatypes.JSONSlice[string]{}
	}
	if product.MainImage == "" && len(req.Images) > 0 {
		product.MainImage = req.Images[0]
	}

	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, fmt.Errorf("%w: product id %d already exists", ErrValidation, req.ID)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	for i := range req.Variants {
		if _, err := s.stock.UpsertVariant(ctx, product.ID, &req.Variants[i], &adminID); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"variants":   len(req.Variants),
		"admin_id":   adminID,
	}).Info("Product created")

	return s.loadProduct(ctx, product.ID, true)
}

func (s *ProductService) loadProduct(ctx context.Context, id uint64, includeArchived bool) (*models.Product, error) {
	query := s.db.WithContext(ctx).Preload("Variants")
	if !includeArchived {
		query = query.Where("status = ?", models.ProductStatusActive)
	}

	var product models.Product
	if err := query.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sortVariants(product.Variants)
	return &product, nil
}

// GetProduct returns an active product with its variants, served from the
// product cache when possible.
func (s *ProductService) GetProduct(ctx context.Context, id uint64) (*models.Product, error) {
	if cached, ok := s.cache.GetProduct(ctx, id); ok {
		return cached, nil
	}

	product, err := s.loadProduct(ctx, id, false)
	if err != nil {
		return nil, err
	}
	s.cache.SetProduct(ctx, product)
	return product, nil
}

// GetProductForAdmin bypasses the cache and includes archived products.
func (s *ProductService) GetProductForAdmin(ctx context.Context, id uint64) (*models.Product, error) {
	return s.loadProduct(ctx, id, true)
}

func (s *ProductService) UpdateProduct(ctx context.Context, id uint64, req *UpdateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.ProductType != nil {
		updates["product_type"] = strings.ToLower(strings.TrimSpace(*req.ProductType))
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
		}
		updates["price"] = req.Price.Round(2)
	}
	if req.MainImage != nil {
		updates["main_image"] = *req.MainImage
	}
	if req.Images != nil {
		updates["images"] = datatypes.JSONSlice[string](req.Images)
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id").First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&product).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProducts(ctx, id)
	return s.loadProduct(ctx, id, true)
}

// ArchiveProduct hides a product from the catalog. Order history keeps
// pointing at it, so rows are never hard deleted.
func (s *ProductService) ArchiveProduct(ctx context.Context, id uint64) error {
	result := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Update("status", models.ProductStatusArchived)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.cache.InvalidateProducts(ctx, id)
	return nil
}

func (s *ProductService) SearchProducts(ctx context.Context, params ProductSearchParams) ([]models.Product, int64, error) {
	params.PaginationParams = utils.NormalizePagination(params.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.Product{})

	if !params.IncludeArchived {
		query = query.Where("status = ?", models.ProductStatusActive)
	}
	if params.Search != "" {
		like := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if params.ProductType != "" {
		query = query.Where("product_type = ?", strings.ToLower(params.ProductType))
	}
	if params.Color != "" || params.Size != "" {
		sub := s.db.Model(&models.ProductVariant{}).Select("product_id").Where("available_quantity > 0")
		if params.Color != "" {
			sub = sub.Where("LOWER(color) = ?", strings.ToLower(params.Color))
		}
		if params.Size != "" {
			sub = sub.Where("size = ?", strings.ToUpper(params.Size))
		}
		query = query.Where("id IN (?)", sub)
	}
	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}
	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}
	if params.InStock != nil {
		if *params.InStock {
			query = query.Where("total_available_stock > 0")
		} else {
			query = query.Where("total_available_stock <= 0")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "price", "name", "total_available_stock"})

	var products []models.Product
	if err := utils.ApplyPagination(query, params.PaginationParams).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UploadImage stores an image and appends it to the product's gallery. The
// first uploaded image becomes the main image.
func (s *ProductService) UploadImage(ctx context.Context, id uint64, file multipart.File, header *multipart.FileHeader) (*models.Product, error) {
	product, err := s.loadProduct(ctx, id, true)
	if err != nil {
		return nil, err
	}

	result, err := s.storage.UploadFile(file, header, s.storage.ProductImageOptions())
	if err != nil {
		return nil, err
	}

	images := append(datatypes.JSONSlice[string]{}, product.Images...)
	images = append(images, result.URL)
	updates := map[string]interface{}{"images": images}
	if product.MainImage == "" {
		updates["main_image"] = result.URL
	}

	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if delErr := s.storage.DeleteFile(result.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", result.Key).Warn("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("failed to save product image: %w", err)
	}

	s.cache.InvalidateProducts(ctx, id)
	return s.loadProduct(ctx, id, true)
}

// ProductTypes lists distinct product types of active products.
func (s *ProductService) ProductTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("status = ?", models.ProductStatusActive).
		Distinct().Order("product_type").Pluck("product_type", &types).Error
	return types, err
}
