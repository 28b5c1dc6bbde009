// internal/services/stock_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

// StockService owns every write to product_variants stock counters and the
// stock_movements ledger.
type StockService struct {
	db     *gorm.DB
	cache  ProductCache
	limits config.StockConfig
}

// StockLine identifies a variant and a quantity. VariantID is preferred;
// product/size/color is the fallback for items without one.
type StockLine struct {
	ProductID uint64
	VariantID *uint
	Size      string
	Color     string
	Quantity  int
}

type MovementMeta struct {
	Reference string
	Reason    string
	UserID    *uuid.UUID
	Notes     string
}

type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required,min=-100000,max=100000"`
	Reason string `json:"reason" validate:"omitempty,max=100"`
	Notes  string `json:"notes" validate:"max=500"`
}

type VariantStockRequest struct {
	Size              string `json:"size" validate:"required,size_label"`
	Color             string `json:"color" validate:"required,min=1,max=50"`
	StockQuantity     int    `json:"stock_quantity" validate:"min=0,max=100000"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty" validate:"omitempty,min=0,max=1000"`
	SKU               string `json:"sku" validate:"max=100"`
}

type MovementFilter struct {
	ProductID    uint64
	VariantID    uint
	MovementType models.MovementType
	Reference    string
	Pagination   utils.PaginationParams
}

type VariantIssue struct {
	VariantID         uint     `json:"variant_id"`
	ProductID         uint64   `json:"product_id"`
	Size              string   `json:"size"`
	Color             string   `json:"color"`
	StockQuantity     int      `json:"stock_quantity"`
	ReservedQuantity  int      `json:"reserved_quantity"`
	AvailableQuantity int      `json:"available_quantity"`
	ExpectedAvailable int      `json:"expected_available"`
	Problems          []string `json:"problems"`
}

type ProductIssue struct {
	ProductID           uint64             `json:"product_id"`
	Name                string             `json:"name"`
	TotalStock          int                `json:"total_stock"`
	ExpectedStock       int                `json:"expected_stock"`
	TotalAvailableStock int                `json:"total_available_stock"`
	ExpectedAvailable   int                `json:"expected_available"`
	TotalReservedStock  int                `json:"total_reserved_stock"`
	ExpectedReserved    int                `json:"expected_reserved"`
	StockStatus         models.StockStatus `json:"stock_status"`
	ExpectedStatus      models.StockStatus `json:"expected_status"`
}

type StockReport struct {
	CheckedVariants int            `json:"checked_variants"`
	CheckedProducts int            `json:"checked_products"`
	VariantIssues   []VariantIssue `json:"variant_issues"`
	ProductIssues   []ProductIssue `json:"product_issues"`
	Repaired        bool           `json:"repaired"`
}

func (r *StockReport) Clean() bool {
	return len(r.VariantIssues) == 0 && len(r.ProductIssues) == 0
}

func NewStockService(db *gorm.DB, cache ProductCache, limits config.StockConfig) *StockService {
	if cache == nil {
		cache = NoopProductCache{}
	}
	if limits.LowThreshold == 0 && limits.CriticalThreshold == 0 {
		limits = config.StockConfig{
			LowThreshold:      models.DefaultLowStockThreshold,
			CriticalThreshold: models.DefaultCriticalStockThreshold,
		}
	}
	return &StockService{db: db, cache: cache, limits: limits}
}

func lineFromOrderItem(item models.OrderItem) StockLine {
	return StockLine{
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Size:      item.Size,
		Color:     item.Color,
		Quantity:  item.Quantity,
	}
}

func (s *StockService) findVariant(tx *gorm.DB, line StockLine) (*models.ProductVariant, error) {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})

	var variant models.ProductVariant
	if line.VariantID != nil {
		err := locked.First(&variant, *line.VariantID).Error
		if err == nil {
			return &variant, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	err := locked.Where("product_id = ? AND size = ? AND color = ?", line.ProductID, line.Size, line.Color).
		First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: product %d %s/%s", ErrVariantNotFound, line.ProductID, line.Size, line.Color)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (s *StockService) recordMovement(tx *gorm.DB, variant *models.ProductVariant, kind models.MovementType, quantity, before, after int, meta MovementMeta) error {
	movement := &models.StockMovement{
		ProductID:       variant.ProductID,
		VariantID:       &variant.ID,
		MovementType:    kind,
		Quantity:        quantity,
		QuantityBefore:  before,
		QuantityAfter:   after,
		Size:            variant.Size,
		Color:           variant.Color,
		Reason:          meta.Reason,
		ReferenceNumber: meta.Reference,
		UserID:          meta.UserID,
		Notes:           meta.Notes,
	}
	if err := tx.Create(movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}

// Reserve moves quantity from available to reserved. The guard and both
// counters are applied in one statement so concurrent confirmations cannot
// oversell.
func (s *StockService) Reserve(tx *gorm.DB, line StockLine, meta MovementMeta) error {
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	variant, err := s.findVariant(tx, line)
	if err != nil {
		return err
	}

	result := tx.Exec(
		`UPDATE product_variants
		    SET available_quantity = stock_quantity - reserved_quantity - ?,
		        reserved_quantity = reserved_quantity + ?,
		        updated_at = ?
		  WHERE id = ? AND reserved_quantity + ? <= stock_quantity`,
		line.Quantity, line.Quantity, time.Now(), variant.ID, line.Quantity,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to reserve stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s has %d available, %d requested",
			ErrInsufficientStock, variant.Label(), variant.StockQuantity-variant.ReservedQuantity, line.Quantity)
	}

	before := variant.StockQuantity - variant.ReservedQuantity
	if meta.Reason == "" {
		meta.Reason = models.MovementReasonOrderConfirmed
	}
	if err := s.recordMovement(tx, variant, models.MovementTypeOut, line.Quantity, before, before-line.Quantity, meta); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"variant_id": variant.ID,
		"product_id": variant.ProductID,
		"quantity":   line.Quantity,
		"reference":  meta.Reference,
	}).Info("Stock reserved")

	return s.syncProductInTx(tx, variant.ProductID)
}

// Release returns reserved quantity to available, clamping reserved at zero.
// It reports how much was actually released.
func (s *StockService) Release(tx *gorm.DB, line StockLine, meta MovementMeta) (int, error) {
	if line.Quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	variant, err := s.findVariant(tx, line)
	if err != nil {
		return 0, err
	}

	released := line.Quantity
	if variant.ReservedQuantity < released {
		released = variant.ReservedQuantity
		if released < 0 {
			released = 0
		}
		logrus.WithFields(logrus.Fields{
			"variant_id": variant.ID,
			"reserved":   variant.ReservedQuantity,
			"requested":  line.Quantity,
			"reference":  meta.Reference,
		}).Warn("Release exceeds reserved quantity, clamping at zero")
	}

	result := tx.Exec(
		`UPDATE product_variants
		    SET available_quantity = stock_quantity - (CASE WHEN reserved_quantity >= ? THEN reserved_quantity - ? ELSE 0 END),
		        reserved_quantity = CASE WHEN reserved_quantity >= ? THEN reserved_quantity - ? ELSE 0 END,
		        updated_at = ?
		  WHERE id = ?`,
		line.Quantity, line.Quantity, line.Quantity, line.Quantity, time.Now(), variant.ID,
	)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release stock: %w", result.Error)
	}

	if released > 0 {
		before := variant.StockQuantity - variant.ReservedQuantity
		if meta.Reason == "" {
			meta.Reason = models.MovementReasonOrderCancellation
		}
		if err := s.recordMovement(tx, variant, models.MovementTypeIn, released, before, before+released, meta); err != nil {
			return 0, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"variant_id": variant.ID,
		"product_id": variant.ProductID,
		"quantity":   released,
		"reference":  meta.Reference,
	}).Info("Stock released")

	return released, s.syncProductInTx(tx, variant.ProductID)
}

// Ship turns a reservation into shipped stock: stock and reserved both drop
// by quantity, available is unchanged.
func (s *StockService) Ship(tx *gorm.DB, line StockLine, meta MovementMeta) error {
	variant, err := s.findVariant(tx, line)
	if err != nil {
		return err
	}

	result := tx.Exec(
		`UPDATE product_variants
		    SET available_quantity = stock_quantity - reserved_quantity,
		        stock_quantity = stock_quantity - ?,
		        reserved_quantity = reserved_quantity - ?,
		        updated_at = ?
		  WHERE id = ? AND reserved_quantity >= ? AND stock_quantity >= ?`,
		line.Quantity, line.Quantity, time.Now(), variant.ID, line.Quantity, line.Quantity,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to ship stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s has only %d reserved for shipment of %d",
			ErrInsufficientStock, variant.Label(), variant.ReservedQuantity, line.Quantity)
	}

	if meta.Reason == "" {
		meta.Reason = models.MovementReasonOrderDelivered
	}
	if err := s.recordMovement(tx, variant, models.MovementTypeOut, line.Quantity,
		variant.StockQuantity, variant.StockQuantity-line.Quantity, meta); err != nil {
		return err
	}

	return s.syncProductInTx(tx, variant.ProductID)
}

func (s *StockService) adjustInTx(tx *gorm.DB, variant *models.ProductVariant, delta int, meta MovementMeta) error {
	result := tx.Exec(
		`UPDATE product_variants
		    SET available_quantity = stock_quantity + ? - reserved_quantity,
		        stock_quantity = stock_quantity + ?,
		        updated_at = ?
		  WHERE id = ? AND stock_quantity + ? >= reserved_quantity`,
		delta, delta, time.Now(), variant.ID, delta,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to adjust stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s has %d reserved", ErrBelowReserved, variant.Label(), variant.ReservedQuantity)
	}

	if meta.Reason == "" {
		meta.Reason = models.MovementReasonManualAdjustment
	}
	return s.recordMovement(tx, variant, models.MovementTypeAdjust, delta,
		variant.StockQuantity, variant.StockQuantity+delta, meta)
}

// Adjust applies an admin stock correction to a variant.
func (s *StockService) Adjust(ctx context.Context, variantID uint, req *AdjustStockRequest, userID uuid.UUID) (*models.ProductVariant, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var variant models.ProductVariant
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		current, err := s.findVariant(tx, StockLine{VariantID: &variantID})
		if err != nil {
			if errors.Is(err, ErrVariantNotFound) {
				return ErrNotFound
			}
			return err
		}

		meta := MovementMeta{Reason: req.Reason, UserID: &userID, Notes: req.Notes}
		if err := s.adjustInTx(tx, current, req.Delta, meta); err != nil {
			return err
		}
		if err := s.syncProductInTx(tx, current.ProductID); err != nil {
			return err
		}
		return tx.First(&variant, variantID).Error
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProducts(ctx, variant.ProductID)
	logrus.WithFields(logrus.Fields{
		"variant_id": variantID,
		"delta":      req.Delta,
		"user_id":    userID,
	}).Info("Stock adjusted")
	return &variant, nil
}

// UpsertVariant creates a variant or sets its absolute stock quantity.
func (s *StockService) UpsertVariant(ctx context.Context, productID uint64, req *VariantStockRequest, userID *uuid.UUID) (*models.ProductVariant, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	size := strings.ToUpper(strings.TrimSpace(req.Size))
	color := strings.TrimSpace(req.Color)

	var variant models.ProductVariant
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id").First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		existing, err := s.findVariant(tx, StockLine{ProductID: productID, Size: size, Color: color})
		switch {
		case errors.Is(err, ErrVariantNotFound):
			variant = models.ProductVariant{
				ProductID:         productID,
				Size:              size,
				Color:             color,
				SKU:               req.SKU,
				StockQuantity:     req.StockQuantity,
				AvailableQuantity: req.StockQuantity,
				LowStockThreshold: s.limits.LowThreshold,
			}
			if variant.SKU == "" {
				variant.SKU = utils.GenerateSKU(productID, size, color)
			}
			if req.LowStockThreshold != nil {
				variant.LowStockThreshold = *req.LowStockThreshold
			}
			if err := tx.Create(&variant).Error; err != nil {
				return fmt.Errorf("failed to create variant: %w", err)
			}
			if req.StockQuantity > 0 {
				meta := MovementMeta{Reason: models.MovementReasonInitialStock, UserID: userID}
				if err := s.recordMovement(tx, &variant, models.MovementTypeIn, req.StockQuantity, 0, req.StockQuantity, meta); err != nil {
					return err
				}
			}
		case err != nil:
			return err
		default:
			if delta := req.StockQuantity - existing.StockQuantity; delta != 0 {
				if err := s.adjustInTx(tx, existing, delta, MovementMeta{UserID: userID}); err != nil {
					return err
				}
			}
			updates := map[string]interface{}{}
			if req.SKU != "" {
				updates["sku"] = req.SKU
			}
			if req.LowStockThreshold != nil {
				updates["low_stock_threshold"] = *req.LowStockThreshold
			}
			if len(updates) > 0 {
				if err := tx.Model(existing).Updates(updates).Error; err != nil {
					return err
				}
			}
			if err := tx.First(&variant, existing.ID).Error; err != nil {
				return err
			}
		}

		return s.syncProductInTx(tx, productID)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProducts(ctx, productID)
	return &variant, nil
}

var sizeRank = map[string]int{
	"XXS": 0, "XS": 1, "S": 2, "M": 3, "L": 4, "XL": 5, "XXL": 6, "2XL": 6, "XXXL": 7, "3XL": 7, "4XL": 8,
}

func sortVariants(variants []models.ProductVariant) {
	rank := func(size string) int {
		if r, ok := sizeRank[size]; ok {
			return r
		}
		return len(sizeRank) + 1
	}
	sort.SliceStable(variants, func(i, j int) bool {
		ri, rj := rank(variants[i].Size), rank(variants[j].Size)
		if ri != rj {
			return ri < rj
		}
		if variants[i].Size != variants[j].Size {
			return variants[i].Size < variants[j].Size
		}
		return variants[i].Color < variants[j].Color
	})
}

// buildSizeSnapshot groups variants by size for the products.sizes column.
func buildSizeSnapshot(variants []models.ProductVariant) []models.SizeStock {
	sortVariants(variants)

	var sizes []models.SizeStock
	index := map[string]int{}
	for _, v := range variants {
		i, ok := index[v.Size]
		if !ok {
			sizes = append(sizes, models.SizeStock{Size: v.Size})
			i = len(sizes) - 1
			index[v.Size] = i
		}
		sizes[i].Stock += v.StockQuantity
		sizes[i].Available += v.AvailableQuantity
		sizes[i].Reserved += v.ReservedQuantity
		sizes[i].Colors = append(sizes[i].Colors, models.ColorStock{
			Color:     v.Color,
			Stock:     v.StockQuantity,
			Available: v.AvailableQuantity,
			Reserved:  v.ReservedQuantity,
		})
	}
	return sizes
}

type productTotals struct {
	stock, available, reserved int
}

func totalsOf(variants []models.ProductVariant) productTotals {
	var t productTotals
	for _, v := range variants {
		t.stock += v.StockQuantity
		t.available += v.AvailableQuantity
		t.reserved += v.ReservedQuantity
	}
	return t
}

// syncProductInTx rebuilds product aggregates and the sizes snapshot from
// product_variants.
func (s *StockService) syncProductInTx(tx *gorm.DB, productID uint64) error {
	var variants []models.ProductVariant
	if err := tx.Where("product_id = ?", productID).Find(&variants).Error; err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}

	totals := totalsOf(variants)
	status := models.StockStatusFor(totals.available, s.limits.LowThreshold, s.limits.CriticalThreshold)

	err := tx.Model(&models.Product{}).Where("id = ?", productID).Updates(map[string]interface{}{
		"total_stock":           totals.stock,
		"total_available_stock": totals.available,
		"total_reserved_stock":  totals.reserved,
		"stock_status":          status,
		"sizes":                 datatypes.NewJSONType(buildSizeSnapshot(variants)),
		"last_stock_update":     time.Now(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to sync product %d: %w", productID, err)
	}
	return nil
}

func (s *StockService) SyncProduct(ctx context.Context, productID uint64) error {
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return s.syncProductInTx(tx, productID)
	})
	if err == nil {
		s.cache.InvalidateProducts(ctx, productID)
	}
	return err
}

// SyncAll rebuilds aggregates for every product and returns how many were synced.
func (s *StockService) SyncAll(ctx context.Context) (int, error) {
	var ids []uint64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := s.SyncProduct(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// InvalidateProducts drops cached product payloads; callers run it after
// committing a transaction that touched stock.
func (s *StockService) InvalidateProducts(ctx context.Context, ids ...uint64) {
	s.cache.InvalidateProducts(ctx, ids...)
}

func variantProblems(v models.ProductVariant) []string {
	var problems []string
	if v.StockQuantity < 0 {
		problems = append(problems, "negative stock_quantity")
	}
	if v.ReservedQuantity < 0 {
		problems = append(problems, "negative reserved_quantity")
	}
	if v.ReservedQuantity > v.StockQuantity {
		problems = append(problems, "reserved_quantity exceeds stock_quantity")
	}
	if v.AvailableQuantity != v.StockQuantity-v.ReservedQuantity {
		problems = append(problems, "available_quantity != stock_quantity - reserved_quantity")
	}
	return problems
}

// Verify reports variants and products whose stored counters disagree.
func (s *StockService) Verify(ctx context.Context) (*StockReport, error) {
	db := s.db.WithContext(ctx)

	var variants []models.ProductVariant
	if err := db.Order("product_id, id").Find(&variants).Error; err != nil {
		return nil, err
	}
	var products []models.Product
	if err := db.Order("id").Find(&products).Error; err != nil {
		return nil, err
	}

	report := &StockReport{CheckedVariants: len(variants), CheckedProducts: len(products)}
	byProduct := map[uint64][]models.ProductVariant{}
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
		if problems := variantProblems(v); len(problems) > 0 {
			report.VariantIssues = append(report.VariantIssues, VariantIssue{
				VariantID:         v.ID,
				ProductID:         v.ProductID,
				Size:              v.Size,
				Color:             v.Color,
				StockQuantity:     v.StockQuantity,
				ReservedQuantity:  v.ReservedQuantity,
				AvailableQuantity: v.AvailableQuantity,
				ExpectedAvailable: v.StockQuantity - v.ReservedQuantity,
				Problems:          problems,
			})
		}
	}

	for _, p := range products {
		totals := totalsOf(byProduct[p.ID])
		expectedStatus := models.StockStatusFor(totals.available, s.limits.LowThreshold, s.limits.CriticalThreshold)
		if p.TotalStock != totals.stock || p.TotalAvailableStock != totals.available ||
			p.TotalReservedStock != totals.reserved || p.StockStatus != expectedStatus {
			report.ProductIssues = append(report.ProductIssues, ProductIssue{
				ProductID:           p.ID,
				Name:                p.Name,
				TotalStock:          p.TotalStock,
				ExpectedStock:       totals.stock,
				TotalAvailableStock: p.TotalAvailableStock,
				ExpectedAvailable:   totals.available,
				TotalReservedStock:  p.TotalReservedStock,
				ExpectedReserved:    totals.reserved,
				StockStatus:         p.StockStatus,
				ExpectedStatus:      expectedStatus,
			})
		}
	}

	return report, nil
}

// Repair fixes inconsistent variants and resyncs every product. The returned
// report describes the state found before repairing.
func (s *StockService) Repair(ctx context.Context, userID *uuid.UUID) (*StockReport, error) {
	report, err := s.Verify(ctx)
	if err != nil {
		return nil, err
	}

	for _, issue := range report.VariantIssues {
		issue := issue
		err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
			var v models.ProductVariant
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&v, issue.VariantID).Error; err != nil {
				return err
			}

			stock := max(v.StockQuantity, 0)
			reserved := min(max(v.ReservedQuantity, 0), stock)
			if reserved != v.ReservedQuantity {
				logrus.WithFields(logrus.Fields{
					"variant_id": v.ID,
					"reserved":   v.ReservedQuantity,
					"stock":      stock,
				}).Warn("Clamping reserved quantity during repair")
			}

			err := tx.Model(&models.ProductVariant{}).Where("id = ?", v.ID).Updates(map[string]interface{}{
				"stock_quantity":     stock,
				"reserved_quantity":  reserved,
				"available_quantity": stock - reserved,
			}).Error
			if err != nil {
				return err
			}

			before := v.AvailableQuantity
			after := stock - reserved
			meta := MovementMeta{
				Reason: models.MovementReasonStockRepair,
				UserID: userID,
				Notes:  strings.Join(issue.Problems, "; "),
			}
			return s.recordMovement(tx, &v, models.MovementTypeAdjust, after-before, before, after, meta)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to repair variant %d: %w", issue.VariantID, err)
		}
	}

	if _, err := s.SyncAll(ctx); err != nil {
		return nil, err
	}

	report.Repaired = true
	logrus.WithFields(logrus.Fields{
		"variant_issues": len(report.VariantIssues),
		"product_issues": len(report.ProductIssues),
	}).Info("Stock repair completed")
	return report, nil
}

func (s *StockService) ListMovements(ctx context.Context, filter MovementFilter) ([]models.StockMovement, int64, error) {
	params := utils.NormalizePagination(filter.Pagination)
	query := s.db.WithContext(ctx).Model(&models.StockMovement{})

	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.VariantID != 0 {
		query = query.Where("variant_id = ?", filter.VariantID)
	}
	if filter.MovementType != "" {
		query = query.Where("movement_type = ?", filter.MovementType)
	}
	if filter.Reference != "" {
		query = query.Where("reference_number = ?", filter.Reference)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movements []models.StockMovement
	err := utils.ApplyPagination(query.Order("created_at DESC, id DESC"), params).Find(&movements).Error
	return movements, total, err
}

// LowStock lists variants at or below their own low stock threshold.
func (s *StockService) LowStock(ctx context.Context) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	err := s.db.WithContext(ctx).
		Preload("Product", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "product_type", "price", "main_image", "status")
		}).
		Where("available_quantity <= low_stock_threshold").
		Order("available_quantity ASC, product_id, id").
		Find(&variants).Error
	return variants, err
}

// Inventory returns every product with its variants for the admin report.
func (s *StockService) Inventory(ctx context.Context, status models.StockStatus) ([]models.Product, error) {
	query := s.db.WithContext(ctx).Preload("Variants").Order("name")
	if status != "" {
		query = query.Where("stock_status = ?", status)
	}

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		sortVariants(products[i].Variants)
	}
	return products, nil
}
