package services_test

import (
	"context"
	"mime/multipart"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

type CustomOrderServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       *gorm.DB
	registry *services.Registry
	admin    *models.User
	customer *models.User
	gateway  *testutil.FakeGateway
}

func (s *CustomOrderServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())
	s.gateway = testutil.NewFakeGateway()
	s.registry = testutil.NewRegistry(s.T(), s.db, s.gateway)
	s.admin = testutil.CreateAdmin(s.T(), s.db)
	s.customer = testutil.CreateCustomer(s.T(), s.db, "maria")
}

func (s *CustomOrderServiceTestSuite) designs(n int) []*multipart.FileHeader {
	headers := make([]*multipart.FileHeader, n)
	for i := range headers {
		headers[i] = testutil.FileHeader(s.T(), "design.png", testutil.PNG(s.T(), 400, 300))
	}
	return headers
}

func (s *CustomOrderServiceTestSuite) submit() *models.CustomOrder {
	order, err := s.registry.CustomOrders.Submit(s.ctx, s.customer.ID, &services.CustomOrderRequest{
		ProductType:  "hoodies",
		ProductName:  "Barkada reunion",
		Size:         "xl",
		Color:        "Maroon",
		Quantity:     3,
		Urgency:      models.UrgencyExpress,
		Province:     "Metro Manila",
		Municipality: "Quezon City",
		StreetNumber: "12 Mabini St",
		Barangay:     "San Roque",
	}, s.designs(2))
	s.Require().NoError(err)
	return order
}

func (s *CustomOrderServiceTestSuite) approve(reference string, price *decimal.Decimal) {
	_, err := s.registry.CustomOrders.Review(s.ctx, reference, s.admin.ID, &services.ReviewCustomOrderRequest{
		Status:     models.CustomOrderStatusApproved,
		FinalPrice: price,
	})
	s.Require().NoError(err)
}

func (s *CustomOrderServiceTestSuite) pay(reference string) (*models.CustomOrderPayment, error) {
	return s.registry.CustomOrders.SubmitPayment(s.ctx, s.customer.ID, reference, &services.CustomPaymentRequest{
		FullName:      "Maria Santos",
		ContactNumber: "0917 123 4567",
		Reference:     "GC-778812",
	}, testutil.FileHeader(s.T(), "receipt.png", testutil.PNG(s.T(), 200, 400)))
}

// paidOrder takes a fresh submission through approval and verified payment.
func (s *CustomOrderServiceTestSuite) paidOrder() *models.CustomOrder {
	submitted := s.submit()
	price := decimal.RequireFromString("6000")
	s.approve(submitted.Reference, &price)
	payment, err := s.pay(submitted.Reference)
	s.Require().NoError(err)
	verified, err := s.registry.CustomOrders.VerifyPayment(s.ctx, payment.ID, s.admin.ID, "matched GCash record")
	s.Require().NoError(err)
	return verified
}

func (s *CustomOrderServiceTestSuite) TestEstimatePrice() {
	s.Equal("6240", services.EstimatePrice("hoodies", 3, models.UrgencyExpress).String())
	s.Equal("1680", services.EstimatePrice("t-shirts", 1, models.UrgencyRush).String())
	s.Equal("1000", services.EstimatePrice("caps", 2, models.UrgencyStandard).String())
}

func (s *CustomOrderServiceTestSuite) TestSubmit() {
	order := s.submit()
	s.Regexp(`^CUSTOM-`, order.Reference)
	s.Equal(models.CustomOrderStatusPending, order.Status)
	s.Equal("XL", order.Size)
	s.Equal("Maria", order.CustomerName)
	s.Equal("maria@example.com", order.CustomerEmail)
	s.Equal("6240", order.EstimatedPrice.String())
	s.Equal("12 Mabini St, San Roque, Quezon City, Metro Manila", order.ShippingAddress())
	s.Require().Len(order.Images, 2)
	s.Equal("image/png", order.Images[1].MimeType)
	s.Equal(1, order.Images[1].Position)

	mine, err := s.registry.CustomOrders.ListMine(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Len(mine[0].Images, 2)

	_, err = s.registry.CustomOrders.Submit(s.ctx, s.customer.ID, &services.CustomOrderRequest{
		ProductType: "hoodies", Size: "M", Color: "Black", Quantity: 1,
		Province: "Cebu", Municipality: "Cebu City", StreetNumber: "1 Osmeña Blvd",
	}, nil)
	s.ErrorIs(err, services.ErrValidation)

	_, err = s.registry.CustomOrders.Submit(s.ctx, s.customer.ID, &services.CustomOrderRequest{
		ProductType: "capes", Size: "M", Color: "Black", Quantity: 1,
		Province: "Cebu", Municipality: "Cebu City", StreetNumber: "1 Osmeña Blvd",
	}, s.designs(1))
	s.ErrorIs(err, services.ErrValidation)
}

func (s *CustomOrderServiceTestSuite) TestOwnership() {
	order := s.submit()
	stranger := testutil.CreateCustomer(s.T(), s.db, "pedro")

	_, err := s.registry.CustomOrders.Get(s.ctx, order.Reference, stranger.ID, false)
	s.ErrorIs(err, services.ErrForbidden)
	_, err = s.registry.CustomOrders.Get(s.ctx, order.Reference, stranger.ID, true)
	s.NoError(err)
	_, err = s.registry.CustomOrders.Get(s.ctx, "CUSTOM-NOPE-00000", s.customer.ID, false)
	s.ErrorIs(err, services.ErrNotFound)

	_, err = s.registry.Cancellation.RequestCustom(s.ctx, stranger.ID, order.Reference,
		&services.CancellationRequestInput{Reason: "not mine"})
	s.ErrorIs(err, services.ErrForbidden)
}

func (s *CustomOrderServiceTestSuite) TestPaymentLifecycle() {
	order := s.submit()

	_, err := s.pay(order.Reference)
	s.ErrorIs(err, services.ErrInvalidTransition, "payment before approval")

	price := decimal.RequireFromString("6000")
	s.approve(order.Reference, &price)

	first, err := s.pay(order.Reference)
	s.Require().NoError(err)
	s.Equal("6000", first.Amount.String())
	s.Equal("09171234567", first.ContactNumber)

	_, err = s.pay(order.Reference)
	s.ErrorIs(err, services.ErrPaymentPending)

	pending, err := s.registry.CustomOrders.PendingPayments(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(order.Reference, pending[0].CustomOrder.Reference)

	_, err = s.registry.CustomOrders.RejectPayment(s.ctx, first.ID, s.admin.ID, " ")
	s.ErrorIs(err, services.ErrValidation)
	_, err = s.registry.CustomOrders.RejectPayment(s.ctx, first.ID, s.admin.ID, "Reference not found in GCash")
	s.Require().NoError(err)

	current, err := s.registry.CustomOrders.Get(s.ctx, order.Reference, s.customer.ID, false)
	s.Require().NoError(err)
	s.Equal(models.CustomPaymentStatusRejected, current.PaymentStatus)
	s.Equal("Reference not found in GCash", current.PaymentNotes)

	second, err := s.pay(order.Reference)
	s.Require().NoError(err)

	verified, err := s.registry.CustomOrders.VerifyPayment(s.ctx, second.ID, s.admin.ID, "ok")
	s.Require().NoError(err)
	s.Equal(models.CustomOrderStatusConfirmed, verified.Status)
	s.Equal(models.CustomPaymentStatusVerified, verified.PaymentStatus)
	s.Require().NotNil(verified.Order)
	s.Equal(models.OrderStatusConfirmed, verified.Order.Status)
	s.False(verified.Order.StockReserved)
	s.Equal("6000", verified.Order.TotalAmount.String())

	var txn models.SalesTransaction
	s.Require().NoError(s.db.Where("transaction_id = ?", verified.Order.TransactionID).First(&txn).Error)
	s.Equal(models.TransactionStatusPaid, txn.Status)
	s.Equal(models.PaymentMethodGCash, txn.PaymentMethod)
	s.Equal("GC-778812", txn.PaymentReference)

	var items []models.OrderItem
	s.Require().NoError(s.db.Where("order_id = ?", verified.Order.ID).Find(&items).Error)
	s.Require().Len(items, 1)
	s.Equal("2000", items[0].ProductPrice.String())
	s.True(items[0].Subtotal.Equal(verified.Order.TotalAmount))

	_, err = s.registry.CustomOrders.VerifyPayment(s.ctx, second.ID, s.admin.ID, "again")
	s.ErrorIs(err, services.ErrInvalidTransition)
	_, err = s.pay(order.Reference)
	s.ErrorIs(err, services.ErrInvalidTransition)
}

func (s *CustomOrderServiceTestSuite) TestRejectedDesignCannotBePaid() {
	order := s.submit()
	_, err := s.registry.CustomOrders.Review(s.ctx, order.Reference, s.admin.ID, &services.ReviewCustomOrderRequest{
		Status:     models.CustomOrderStatusRejected,
		AdminNotes: "Artwork resolution too low",
	})
	s.Require().NoError(err)

	_, err = s.pay(order.Reference)
	s.ErrorIs(err, services.ErrInvalidTransition)

	_, err = s.registry.CustomOrders.Review(s.ctx, order.Reference, s.admin.ID, &services.ReviewCustomOrderRequest{
		Status: models.CustomOrderStatusApproved,
	})
	s.ErrorIs(err, services.ErrInvalidTransition)
}

func (s *CustomOrderServiceTestSuite) TestDeliveryCompletesCustomOrder() {
	order := s.paidOrder()

	_, err := s.registry.CustomOrders.MarkReceived(s.ctx, s.customer.ID, order.Reference)
	s.ErrorIs(err, services.ErrInvalidTransition)

	schedule, err := s.registry.Delivery.Schedule(s.ctx, &services.ScheduleDeliveryRequest{
		OrderID:      *order.OrderID,
		DeliveryDate: testutil.FutureDate(4),
		TimeSlot:     "13:00-17:00",
	}, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(order.ShippingAddress(), schedule.DeliveryAddress)

	_, err = s.registry.Orders.UpdateStatus(s.ctx, *order.OrderID,
		&services.UpdateOrderStatusRequest{Status: models.OrderStatusDelivered}, s.admin.ID)
	s.Require().NoError(err)

	received, err := s.registry.CustomOrders.MarkReceived(s.ctx, s.customer.ID, order.Reference)
	s.Require().NoError(err)
	s.Equal(models.CustomOrderStatusCompleted, received.Status)
	s.Require().NotNil(received.ReceivedAt)

	_, err = s.registry.Cancellation.RequestCustom(s.ctx, s.customer.ID, order.Reference,
		&services.CancellationRequestInput{Reason: "Changed my mind"})
	s.ErrorIs(err, services.ErrInvalidTransition)
}

func (s *CustomOrderServiceTestSuite) TestCancellationRequestRefundsVerifiedPayment() {
	order := s.paidOrder()

	request, err := s.registry.Cancellation.RequestCustom(s.ctx, s.customer.ID, order.Reference,
		&services.CancellationRequestInput{Reason: "Event was postponed"})
	s.Require().NoError(err)
	s.Nil(request.OrderID)
	s.Equal(order.Reference, request.OrderNumber)

	_, err = s.registry.Cancellation.RequestCustom(s.ctx, s.customer.ID, order.Reference,
		&services.CancellationRequestInput{Reason: "Event was postponed"})
	s.ErrorIs(err, services.ErrCancellationExists)

	approved, err := s.registry.Cancellation.Approve(s.ctx, request.ID, s.admin.ID, &services.ProcessCancellationRequest{})
	s.Require().NoError(err)
	s.Equal(models.CancellationStatusApproved, approved.Status)
	s.Require().NotNil(approved.CustomOrder)
	s.Equal(models.CustomOrderStatusCancelled, approved.CustomOrder.Status)

	_, err = s.registry.Cancellation.Approve(s.ctx, request.ID, s.admin.ID, &services.ProcessCancellationRequest{})
	s.ErrorIs(err, services.ErrCancellationProcessed)

	current, err := s.registry.CustomOrders.Get(s.ctx, order.Reference, s.customer.ID, false)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, current.Order.Status)

	var txn models.SalesTransaction
	s.Require().NoError(s.db.Where("transaction_id = ?", current.Order.TransactionID).First(&txn).Error)
	s.Equal(models.TransactionStatusRefunded, txn.Status)
	s.Empty(s.gateway.Refunds)
}

func (s *CustomOrderServiceTestSuite) TestCancellingLinkedOrderCancelsCustomOrder() {
	order := s.paidOrder()

	_, err := s.registry.Orders.CancelOrder(s.ctx, *order.OrderID, &s.admin.ID, "Fabric unavailable")
	s.Require().NoError(err)

	current, err := s.registry.CustomOrders.Get(s.ctx, order.Reference, s.customer.ID, false)
	s.Require().NoError(err)
	s.Equal(models.CustomOrderStatusCancelled, current.Status)
	s.NotNil(current.CancelledAt)
}

func (s *CustomOrderServiceTestSuite) TestAdminCancelRejectsUnverifiedPayment() {
	order := s.submit()
	s.approve(order.Reference, nil)
	payment, err := s.pay(order.Reference)
	s.Require().NoError(err)
	s.Equal("6240", payment.Amount.String())

	cancelled, err := s.registry.CustomOrders.Cancel(s.ctx, order.Reference, &s.admin.ID, "Duplicate submission")
	s.Require().NoError(err)
	s.Equal(models.CustomOrderStatusCancelled, cancelled.Status)
	s.Nil(cancelled.Order)
	s.Require().Len(cancelled.Payments, 1)
	s.Equal(models.CustomPaymentStatusRejected, cancelled.Payments[0].Status)

	_, err = s.registry.CustomOrders.VerifyPayment(s.ctx, payment.ID, s.admin.ID, "late")
	s.ErrorIs(err, services.ErrInvalidTransition)

	_, err = s.registry.CustomOrders.Cancel(s.ctx, order.Reference, &s.admin.ID, "again")
	s.ErrorIs(err, services.ErrInvalidTransition)
}

func (s *CustomOrderServiceTestSuite) TestAdminList() {
	first := s.submit()
	s.submit()
	s.approve(first.Reference, nil)

	orders, total, err := s.registry.CustomOrders.List(s.ctx, services.CustomOrderFilter{
		Status:           models.CustomOrderStatusApproved,
		PaginationParams: pageAll(),
	})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(first.Reference, orders[0].Reference)

	_, total, err = s.registry.CustomOrders.List(s.ctx, services.CustomOrderFilter{
		Search:           "CUSTOM-",
		PaginationParams: pageAll(),
	})
	s.Require().NoError(err)
	s.EqualValues(2, total)
}

func TestCustomOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(CustomOrderServiceTestSuite))
}
