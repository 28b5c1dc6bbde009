// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "internal_error"
	KeyConflict      = "conflict"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthAccountSuspended   = "auth.account_suspended"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// Users
	KeyUserNotFound      = "user.not_found"
	KeyUserStatusUpdated = "user.status_updated"
	KeyProfileUpdated    = "user.profile_updated"

	// Products and stock
	KeyProductCreated     = "product.created"
	KeyProductUpdated     = "product.updated"
	KeyProductArchived    = "product.archived"
	KeyProductNotFound    = "product.not_found"
	KeyProductUnavailable = "product.unavailable"
	KeyVariantNotFound    = "variant.not_found"
	KeyStockInsufficient  = "stock.insufficient"
	KeyStockAdjusted      = "stock.adjusted"
	KeyStockBelowReserved = "stock.below_reserved"
	KeyStockRepaired      = "stock.repaired"

	// Cart
	KeyCartNotFound     = "cart.not_found"
	KeyCartItemNotFound = "cart_item.not_found"
	KeyCartItemAdded    = "cart.item_added"
	KeyCartItemUpdated  = "cart.item_updated"
	KeyCartItemRemoved  = "cart.item_removed"
	KeyCartCleared      = "cart.cleared"
	KeyCartEmpty        = "cart.empty"

	// Orders
	KeyOrderPlaced            = "order.placed"
	KeyOrderConfirmed         = "order.confirmed"
	KeyOrderStatusUpdated     = "order.status_updated"
	KeyOrderNotFound          = "order.not_found"
	KeyOrderInvalidTransition = "order.invalid_transition"
	KeyInvoiceNotFound        = "invoice.not_found"

	// Cancellations
	KeyCancellationRequested = "cancellation.requested"
	KeyCancellationApproved  = "cancellation.approved"
	KeyCancellationRejected  = "cancellation.rejected"
	KeyCancellationNotFound  = "cancellation.not_found"
	KeyCancellationProcessed = "cancellation.already_processed"
	KeyCancellationExists    = "cancellation.already_requested"

	// Payments
	KeyPaymentSuccess       = "payment.success"
	KeyPaymentFailed        = "payment.failed"
	KeyPaymentVerified      = "payment.verified"
	KeyPaymentNotConfigured = "payment.not_configured"
	KeyPaymentAlreadyPaid   = "payment.already_paid"
	KeyPaymentPending       = "payment.pending_verification"

	// Custom orders
	KeyCustomOrderSubmitted        = "custom_order.submitted"
	KeyCustomOrderReviewed         = "custom_order.reviewed"
	KeyCustomOrderCancelled        = "custom_order.cancelled"
	KeyCustomOrderReceived         = "custom_order.received"
	KeyCustomOrderPaymentSubmitted = "custom_order.payment_submitted"
	KeyCustomOrderPaymentVerified  = "custom_order.payment_verified"
	KeyCustomOrderPaymentRejected  = "custom_order.payment_rejected"

	// Delivery
	KeyDeliveryScheduled        = "delivery.scheduled"
	KeyDeliveryUpdated          = "delivery.updated"
	KeyDeliveryNotFound         = "delivery.not_found"
	KeyDeliveryCapacityExceeded = "delivery.capacity_exceeded"
	KeyDeliveryDateUnavailable  = "delivery.date_unavailable"
	KeyDeliveryOrderNotReady    = "delivery.order_not_ready"
	KeyDeliveryCalendarUpdated  = "delivery.calendar_updated"
	KeyDeliveryDuplicate        = "delivery.duplicate"
	KeyDeliveryReconciled       = "delivery.reconciled"
	KeyCourierNotFound          = "courier.not_found"
	KeyCourierUnavailable       = "courier.unavailable"
	KeyCourierDeactivated       = "courier.deactivated"
	KeyCourierDeleted           = "courier.deleted"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"

	// Rate limiting
	KeyRateLimited = "rate_limited"
)
