// internal/services/errors.go
package services

import "errors"

var (
	ErrNotFound              = errors.New("record not found")
	ErrForbidden             = errors.New("not allowed to access this resource")
	ErrValidation            = errors.New("validation failed")
	ErrUserExists            = errors.New("user with this email or username already exists")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountSuspended      = errors.New("account suspended")
	ErrProductUnavailable    = errors.New("product is not available")
	ErrVariantNotFound       = errors.New("variant not found for size and color")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrBelowReserved         = errors.New("stock cannot go below reserved quantity")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCancellationProcessed = errors.New("cancellation request already processed")
	ErrCancellationExists    = errors.New("cancellation already requested for this order")
	ErrAlreadyPaid           = errors.New("transaction already paid")
	ErrPaymentPending        = errors.New("payment already submitted and awaiting verification")
	ErrPaymentNotConfigured  = errors.New("payment gateway not configured")
	ErrPaymentFailed         = errors.New("payment failed")
	ErrOrderNotConfirmed     = errors.New("order must be confirmed before scheduling delivery")
	ErrDateUnavailable       = errors.New("delivery date unavailable")
	ErrCapacityExceeded      = errors.New("delivery capacity exceeded for date")
	ErrCourierUnavailable    = errors.New("courier unavailable")
	ErrDuplicateSchedule     = errors.New("order already has an active delivery schedule")
	ErrInvalidFile           = errors.New("invalid file")
	ErrFileTooLarge          = errors.New("file too large")
)
