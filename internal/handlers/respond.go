// internal/handlers/respond.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
	key    string
}

var errorMappings = []errorMapping{
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", i18n.KeyAuthInvalidCredentials},
	{services.ErrAccountSuspended, http.StatusForbidden, "ACCOUNT_SUSPENDED", i18n.KeyAuthAccountSuspended},
	{services.ErrForbidden, http.StatusForbidden, "FORBIDDEN", i18n.KeyAdminAccessDenied},
	{services.ErrUserExists, http.StatusConflict, "USER_EXISTS", i18n.KeyAuthUserExists},
	{services.ErrEmptyCart, http.StatusBadRequest, "EMPTY_CART", i18n.KeyCartEmpty},
	{services.ErrVariantNotFound, http.StatusNotFound, "VARIANT_NOT_FOUND", i18n.KeyVariantNotFound},
	{services.ErrProductUnavailable, http.StatusConflict, "PRODUCT_UNAVAILABLE", i18n.KeyProductUnavailable},
	{services.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK", i18n.KeyStockInsufficient},
	{services.ErrBelowReserved, http.StatusConflict, "BELOW_RESERVED", i18n.KeyStockBelowReserved},
	{services.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION", i18n.KeyOrderInvalidTransition},
	{services.ErrCancellationProcessed, http.StatusConflict, "ALREADY_PROCESSED", i18n.KeyCancellationProcessed},
	{services.ErrCancellationExists, http.StatusConflict, "ALREADY_REQUESTED", i18n.KeyCancellationExists},
	{services.ErrAlreadyPaid, http.StatusConflict, "ALREADY_PAID", i18n.KeyPaymentAlreadyPaid},
	{services.ErrPaymentPending, http.StatusConflict, "PAYMENT_PENDING", i18n.KeyPaymentPending},
	{services.ErrPaymentNotConfigured, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", i18n.KeyPaymentNotConfigured},
	{services.ErrPaymentFailed, http.StatusPaymentRequired, "PAYMENT_FAILED", i18n.KeyPaymentFailed},
	{services.ErrOrderNotConfirmed, http.StatusConflict, "ORDER_NOT_CONFIRMED", i18n.KeyDeliveryOrderNotReady},
	{services.ErrDateUnavailable, http.StatusConflict, "DATE_UNAVAILABLE", i18n.KeyDeliveryDateUnavailable},
	{services.ErrCapacityExceeded, http.StatusConflict, "CAPACITY_EXCEEDED", i18n.KeyDeliveryCapacityExceeded},
	{services.ErrCourierUnavailable, http.StatusConflict, "COURIER_UNAVAILABLE", i18n.KeyCourierUnavailable},
	{services.ErrDuplicateSchedule, http.StatusConflict, "DUPLICATE_SCHEDULE", i18n.KeyDeliveryDuplicate},
	{services.ErrInvalidFile, http.StatusBadRequest, "INVALID_FILE", i18n.KeyFileInvalidType},
	{services.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", i18n.KeyFileTooLarge},
}

// respondError maps service errors onto HTTP responses. resource names the
// i18n prefix used for ErrNotFound (e.g. "order" -> "order.not_found").
func respondError(c *gin.Context, err error, resource string) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrValidation):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			utils.ErrorResponse(c, m.status, m.code, i18n.T(lang, m.key), err.Error())
			return
		}
	}

	// Unique index races that slipped past the service checks.
	if utils.IsDuplicateKey(err) {
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyConflict))
		return
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"path":       c.Request.URL.Path,
		"request_id": c.GetString("request_id"),
	}).Error("Request failed")
	utils.InternalErrorResponse(c, "")
}

// bindJSON decodes and validates the request body, writing the error
// response itself when it returns false.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

// bindForm is bindJSON for multipart requests.
func bindForm(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBind(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.UnauthorizedResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthInvalidToken))
		return uuid.Nil, false
	}
	return userID, true
}

func isAdmin(c *gin.Context) bool {
	role, _ := utils.GetRoleFromContext(c)
	return role == string(models.UserRoleAdmin)
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || value == 0 {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, name), nil)
		return 0, false
	}
	return uint(value), true
}

// product ids are 12 digit barcodes and do not fit in 32 bits
func productIDParam(c *gin.Context) (uint64, bool) {
	value, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || value == 0 {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "product_id"), nil)
		return 0, false
	}
	return value, true
}

func queryUint(c *gin.Context, name string) uint {
	value, _ := strconv.ParseUint(c.Query(name), 10, 32)
	return uint(value)
}
