package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

type paymentFixture struct {
	db       *gorm.DB
	gateway  *testutil.FakeGateway
	registry *services.Registry
	admin    *models.User
	customer *models.User
	order    *models.Order
}

// confirmedCardOrder confirms a two-tee order (1798.00) with a fake card
// gateway wired in.
func confirmedCardOrder(t *testing.T) *paymentFixture {
	t.Helper()
	db := testutil.NewDB(t)
	gateway := testutil.NewFakeGateway()
	f := &paymentFixture{db: db, gateway: gateway, registry: testutil.NewRegistry(t, db, gateway)}
	f.admin = testutil.CreateAdmin(t, db)
	f.customer = testutil.CreateCustomer(t, db, "maria")

	testutil.CreateProduct(t, f.registry, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "White", Quantity: 10})
	testutil.AddToCart(t, f.registry, f.customer.ID, teeID, "M", "White", 2)
	f.order = testutil.PlaceOrder(t, f.registry, f.customer.ID)

	_, err := f.registry.Orders.ConfirmOrder(context.Background(), f.order.ID, f.admin.ID)
	require.NoError(t, err)
	return f
}

func (f *paymentFixture) transaction(t *testing.T) *models.SalesTransaction {
	t.Helper()
	var txn models.SalesTransaction
	require.NoError(t, f.db.Where("transaction_id = ?", f.order.TransactionID).First(&txn).Error)
	return &txn
}

func (f *paymentFixture) invoiceStatus(t *testing.T) models.InvoiceStatus {
	t.Helper()
	var invoice models.OrderInvoice
	require.NoError(t, f.db.Where("invoice_id = ?", f.order.InvoiceID).First(&invoice).Error)
	return invoice.Status
}

func TestCardPaymentFlow(t *testing.T) {
	ctx := context.Background()
	f := confirmedCardOrder(t)

	intent, err := f.registry.Payments.CreatePaymentIntent(ctx, f.customer.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1", intent.PaymentID)
	assert.Equal(t, "php", intent.Currency)
	assert.Equal(t, "1798", intent.Amount.String())

	// Asking again reuses the same intent
	again, err := f.registry.Payments.CreatePaymentIntent(ctx, f.customer.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.PaymentID, again.PaymentID)

	txn := f.transaction(t)
	assert.Equal(t, models.PaymentMethodCard, txn.PaymentMethod)
	assert.Equal(t, intent.PaymentID, txn.PaymentReference)

	// Not paid yet
	_, err = f.registry.Payments.ConfirmPayment(ctx, f.customer.ID,
		&services.ConfirmPaymentRequest{OrderID: f.order.ID, PaymentIntentID: intent.PaymentID})
	assert.ErrorIs(t, err, services.ErrPaymentFailed)

	_, err = f.registry.Payments.ConfirmPayment(ctx, f.customer.ID,
		&services.ConfirmPaymentRequest{OrderID: f.order.ID, PaymentIntentID: "pi_someone_else"})
	assert.ErrorIs(t, err, services.ErrValidation)

	f.gateway.Succeed(intent.PaymentID)
	paid, err := f.registry.Payments.ConfirmPayment(ctx, f.customer.ID,
		&services.ConfirmPaymentRequest{OrderID: f.order.ID, PaymentIntentID: intent.PaymentID})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, models.InvoiceStatusPaid, f.invoiceStatus(t))

	_, err = f.registry.Payments.CreatePaymentIntent(ctx, f.customer.ID, f.order.ID)
	assert.ErrorIs(t, err, services.ErrAlreadyPaid)

	history, err := f.registry.Payments.PaymentHistory(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, f.order.TransactionID, history[0].TransactionID)
}

func TestCancellingCardPaidOrderRefunds(t *testing.T) {
	ctx := context.Background()
	f := confirmedCardOrder(t)

	intent, err := f.registry.Payments.CreatePaymentIntent(ctx, f.customer.ID, f.order.ID)
	require.NoError(t, err)
	f.gateway.Succeed(intent.PaymentID)
	_, err = f.registry.Payments.ConfirmPayment(ctx, f.customer.ID,
		&services.ConfirmPaymentRequest{OrderID: f.order.ID, PaymentIntentID: intent.PaymentID})
	require.NoError(t, err)

	// A declined refund rolls the whole cancellation back
	f.gateway.FailRefunds = true
	_, err = f.registry.Orders.CancelOrder(ctx, f.order.ID, &f.admin.ID, "out of ink")
	assert.ErrorIs(t, err, services.ErrPaymentFailed)
	order, err := f.registry.Orders.GetOrder(ctx, f.order.ID, f.admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, 2, testutil.Variant(t, f.db, teeID, "M", "White").ReservedQuantity)

	f.gateway.FailRefunds = false
	_, err = f.registry.Orders.CancelOrder(ctx, f.order.ID, &f.admin.ID, "out of ink")
	require.NoError(t, err)

	assert.Equal(t, []string{intent.PaymentID}, f.gateway.Refunds)
	txn := f.transaction(t)
	assert.Equal(t, models.TransactionStatusRefunded, txn.Status)
	assert.NotNil(t, txn.RefundedAt)
	assert.Equal(t, models.InvoiceStatusCancelled, f.invoiceStatus(t))
	assert.Equal(t, 0, testutil.Variant(t, f.db, teeID, "M", "White").ReservedQuantity)
}

func TestOfflinePaymentVerification(t *testing.T) {
	ctx := context.Background()
	f := confirmedCardOrder(t)

	paid, err := f.registry.Payments.VerifyPayment(ctx, f.order.ID, f.admin.ID,
		&services.VerifyPaymentRequest{Reference: "BDO-778812"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPaid, paid.Status)
	assert.Equal(t, "BDO-778812", paid.PaymentReference)

	_, err = f.registry.Payments.VerifyPayment(ctx, f.order.ID, f.admin.ID, &services.VerifyPaymentRequest{})
	assert.ErrorIs(t, err, services.ErrAlreadyPaid)

	_, err = f.registry.Payments.VerifyPayment(ctx, 9999, f.admin.ID, &services.VerifyPaymentRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound)

	// Offline refunds are recorded without touching the gateway
	_, err = f.registry.Orders.CancelOrder(ctx, f.order.ID, &f.admin.ID, "customer moved away")
	require.NoError(t, err)
	assert.Empty(t, f.gateway.Refunds)
	assert.Equal(t, models.TransactionStatusRefunded, f.transaction(t).Status)

	_, err = f.registry.Payments.VerifyPayment(ctx, f.order.ID, f.admin.ID, &services.VerifyPaymentRequest{})
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

func TestPaymentsWithoutGateway(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)
	customer := testutil.CreateCustomer(t, db, "maria")
	stranger := testutil.CreateCustomer(t, db, "pedro")
	testutil.CreateProduct(t, registry, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "White", Quantity: 10})
	testutil.AddToCart(t, registry, customer.ID, teeID, "M", "White", 1)
	order := testutil.PlaceOrder(t, registry, customer.ID)

	_, err := registry.Payments.CreatePaymentIntent(ctx, customer.ID, order.ID)
	assert.ErrorIs(t, err, services.ErrPaymentNotConfigured)
	_, err = registry.Payments.ConfirmPayment(ctx, customer.ID,
		&services.ConfirmPaymentRequest{OrderID: order.ID, PaymentIntentID: "pi_x"})
	assert.ErrorIs(t, err, services.ErrPaymentNotConfigured)

	gateway := testutil.NewFakeGateway()
	withGateway := testutil.NewRegistry(t, db, gateway)
	_, err = withGateway.Payments.CreatePaymentIntent(ctx, stranger.ID, order.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	// Unpaid cash on delivery transactions are simply cancelled
	_, err = registry.Orders.CancelOrder(ctx, order.ID, nil, "changed my mind")
	require.NoError(t, err)
	var txn models.SalesTransaction
	require.NoError(t, db.Where("transaction_id = ?", order.TransactionID).First(&txn).Error)
	assert.Equal(t, models.TransactionStatusCancelled, txn.Status)
	assert.Equal(t, models.PaymentMethodCashOnDelivery, txn.PaymentMethod)

	_, err = withGateway.Payments.CreatePaymentIntent(ctx, customer.ID, order.ID)
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}
