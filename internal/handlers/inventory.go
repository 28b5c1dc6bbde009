// internal/handlers/inventory.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type InventoryHandler struct {
	stockService *services.StockService
}

func NewInventoryHandler(stockService *services.StockService) *InventoryHandler {
	return &InventoryHandler{stockService: stockService}
}

// POST /admin/variants/:id/adjust
func (h *InventoryHandler) AdjustVariant(c *gin.Context) {
	variantID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}

	variant, err := h.stockService.Adjust(c.Request.Context(), variantID, &req, adminID)
	if err != nil {
		respondError(c, err, "variant")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyStockAdjusted, variant)
}

// GET /admin/inventory
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	products, err := h.stockService.Inventory(c.Request.Context(), models.StockStatus(c.Query("stock_status")))
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.SuccessResponse(c, products)
}

// GET /admin/inventory/low-stock
func (h *InventoryHandler) GetLowStock(c *gin.Context) {
	variants, err := h.stockService.LowStock(c.Request.Context())
	if err != nil {
		respondError(c, err, "variant")
		return
	}
	utils.SuccessResponse(c, variants)
}

// GET /admin/stock/movements
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	filter := services.MovementFilter{
		VariantID:    queryUint(c, "variant_id"),
		MovementType: models.MovementType(c.Query("movement_type")),
		Reference:    c.Query("reference"),
		Pagination:   utils.GetPaginationParams(c),
	}
	if productID, err := strconv.ParseUint(c.Query("product_id"), 10, 64); err == nil {
		filter.ProductID = productID
	}

	movements, total, err := h.stockService.ListMovements(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(movements, total, filter.Pagination))
}

// GET /admin/stock/verify
func (h *InventoryHandler) VerifyStock(c *gin.Context) {
	report, err := h.stockService.Verify(c.Request.Context())
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.SuccessResponse(c, gin.H{
		"clean":  report.Clean(),
		"report": report,
	})
}

// POST /admin/stock/repair
func (h *InventoryHandler) RepairStock(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	report, err := h.stockService.Repair(c.Request.Context(), &adminID)
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.SuccessMessageResponse(c, i18n.KeyStockRepaired, report)
}
