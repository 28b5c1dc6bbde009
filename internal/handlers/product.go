// internal/handlers/product.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	stockService   *services.StockService
}

func NewProductHandler(productService *services.ProductService, stockService *services.StockService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		stockService:   stockService,
	}
}

func searchParamsFrom(c *gin.Context) services.ProductSearchParams {
	searchParams := services.ProductSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		ProductType:      c.Query("product_type"),
		Color:            c.Query("color"),
		Size:             c.Query("size"),
	}

	if priceMinStr := c.Query("price_min"); priceMinStr != "" {
		if priceMin, err := decimal.NewFromString(priceMinStr); err == nil {
			searchParams.PriceMin = &priceMin
		}
	}

	if priceMaxStr := c.Query("price_max"); priceMaxStr != "" {
		if priceMax, err := decimal.NewFromString(priceMaxStr); err == nil {
			searchParams.PriceMax = &priceMax
		}
	}

	if inStockStr := c.Query("in_stock"); inStockStr != "" {
		if inStock, err := strconv.ParseBool(inStockStr); err == nil {
			searchParams.InStock = &inStock
		}
	}
	return searchParams
}

// GET /products. Signed-in admins may pass include_archived=true.
func (h *ProductHandler) GetProducts(c *gin.Context) {
	searchParams := searchParamsFrom(c)
	if isAdmin(c) {
		searchParams.IncludeArchived, _ = strconv.ParseBool(c.Query("include_archived"))
	}

	products, total, err := h.productService.SearchProducts(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	result := utils.CreatePaginationResult(products, total, searchParams.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /products/types
func (h *ProductHandler) GetProductTypes(c *gin.Context) {
	types, err := h.productService.ProductTypes(c.Request.Context())
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.SuccessResponse(c, types)
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	get := h.productService.GetProduct
	if isAdmin(c) {
		// admins previewing the storefront also see archived products
		get = h.productService.GetProductForAdmin
	}
	product, err := get(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.SuccessResponse(c, product)
}

// GET /admin/products
func (h *ProductHandler) AdminGetProducts(c *gin.Context) {
	searchParams := searchParamsFrom(c)
	searchParams.IncludeArchived = true

	products, total, err := h.productService.SearchProducts(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(products, total, searchParams.PaginationParams))
}

// GET /admin/products/:id
func (h *ProductHandler) AdminGetProduct(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	product, err := h.productService.GetProductForAdmin(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err, "product")
		return
	}
	utils.SuccessResponse(c, product)
}

// POST /admin/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), &req, adminID)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductCreated),
		"product": product,
	})
}

// PUT /admin/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req services.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), productID, &req)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyProductUpdated, product)
}

// DELETE /admin/products/:id
func (h *ProductHandler) ArchiveProduct(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	if err := h.productService.ArchiveProduct(c.Request.Context(), productID); err != nil {
		respondError(c, err, "product")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyProductArchived, nil)
}

// POST /admin/products/:id/images
func (h *ProductHandler) UploadProductImage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	defer file.Close()

	product, err := h.productService.UploadImage(c.Request.Context(), productID, file, fileHeader)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyFileUploadSuccess),
		"product": product,
	})
}

// PUT /admin/products/:id/variants
func (h *ProductHandler) UpsertVariant(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.VariantStockRequest
	if !bindJSON(c, &req) {
		return
	}

	variant, err := h.stockService.UpsertVariant(c.Request.Context(), productID, &req, &adminID)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyStockAdjusted, variant)
}
