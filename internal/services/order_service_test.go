package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

const (
	teeID    uint64 = 640009057958
	hoodieID uint64 = 640009057965
)

type OrderServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       *gorm.DB
	svc      *services.Registry
	admin    *models.User
	customer *models.User
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())
	s.svc = testutil.NewRegistry(s.T(), s.db, nil)
	s.admin = testutil.CreateAdmin(s.T(), s.db)
	s.customer = testutil.CreateCustomer(s.T(), s.db, "maria")

	testutil.CreateProduct(s.T(), s.svc, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "Black", Quantity: 20},
		testutil.Stock{Size: "L", Color: "Black", Quantity: 18},
	)
	testutil.CreateProduct(s.T(), s.svc, hoodieID, "Seven Four Streetwear Hoodie", "1299.00",
		testutil.Stock{Size: "M", Color: "Gray", Quantity: 3},
	)
}

func (s *OrderServiceTestSuite) movements(reference string) []models.StockMovement {
	var movements []models.StockMovement
	s.Require().NoError(s.db.Where("reference_number = ?", reference).Order("id").Find(&movements).Error)
	return movements
}

func (s *OrderServiceTestSuite) TestPlaceOrderTotalsMatchItems() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 2)
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, hoodieID, "M", "Gray", 1)

	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	s.Equal(models.OrderStatusPending, order.Status)
	s.False(order.StockReserved)
	s.Len(order.Items, 2)
	s.True(decimal.RequireFromString("3097.00").Equal(order.TotalAmount), "got %s", order.TotalAmount)
	s.True(models.ItemsTotal(order.Items).Equal(order.TotalAmount))
	s.Require().NotNil(order.Invoice)
	s.Require().NotNil(order.Transaction)
	s.True(order.Invoice.TotalAmount.Equal(order.TotalAmount))
	s.True(order.Transaction.Amount.Equal(order.TotalAmount))
	s.Equal(models.PaymentMethodCashOnDelivery, order.Transaction.PaymentMethod)
	s.Equal("09171234567", order.ContactPhone)

	for _, item := range order.Items {
		s.True(item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.Subtotal))
	}

	cart, err := s.svc.Carts.GetCart(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Empty(cart.Items, "cart is emptied by checkout")

	// Placing does not touch stock
	variant := testutil.Variant(s.T(), s.db, teeID, "L", "Black")
	s.Equal(0, variant.ReservedQuantity)
	s.Equal(18, variant.AvailableQuantity)
}

func (s *OrderServiceTestSuite) TestPlaceOrderWithEmptyCartWritesNothing() {
	_, err := s.svc.Orders.PlaceOrder(s.ctx, s.customer.ID, &services.PlaceOrderRequest{
		ShippingAddress: "12 Mabini St, Quezon City",
		ContactPhone:    "09171234567",
	})
	s.ErrorIs(err, services.ErrEmptyCart)

	for _, model := range []interface{}{&models.Order{}, &models.OrderInvoice{}, &models.SalesTransaction{}, &models.OrderItem{}} {
		var count int64
		s.Require().NoError(s.db.Model(model).Count(&count).Error)
		s.Zero(count)
	}
}

func (s *OrderServiceTestSuite) TestPlaceOrderRejectsInvalidPhone() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 1)
	_, err := s.svc.Orders.PlaceOrder(s.ctx, s.customer.ID, &services.PlaceOrderRequest{
		ShippingAddress: "12 Mabini St, Quezon City",
		ContactPhone:    "12",
	})
	s.ErrorIs(err, services.ErrValidation)
}

func (s *OrderServiceTestSuite) TestConfirmReservesStock() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 5)
	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	confirmed, err := s.svc.Orders.ConfirmOrder(s.ctx, order.ID, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusConfirmed, confirmed.Status)
	s.True(confirmed.StockReserved)
	s.Require().NotNil(confirmed.ConfirmedBy)
	s.Equal(s.admin.ID, *confirmed.ConfirmedBy)
	s.Equal(models.InvoiceStatusConfirmed, confirmed.Invoice.Status)
	s.Equal(models.TransactionStatusConfirmed, confirmed.Transaction.Status)

	variant := testutil.Variant(s.T(), s.db, teeID, "L", "Black")
	s.Equal(18, variant.StockQuantity)
	s.Equal(5, variant.ReservedQuantity)
	s.Equal(13, variant.AvailableQuantity)

	product, err := s.svc.Products.GetProductForAdmin(s.ctx, teeID)
	s.Require().NoError(err)
	s.Equal(38, product.TotalStock)
	s.Equal(5, product.TotalReservedStock)
	s.Equal(33, product.TotalAvailableStock)

	movements := s.movements(order.OrderNumber)
	s.Require().Len(movements, 1)
	s.Equal(models.MovementTypeOut, movements[0].MovementType)
	s.Equal(5, movements[0].Quantity)
	s.Equal(18, movements[0].QuantityBefore)
	s.Equal(13, movements[0].QuantityAfter)
	s.Equal(models.MovementReasonOrderConfirmed, movements[0].Reason)

	_, err = s.svc.Orders.ConfirmOrder(s.ctx, order.ID, s.admin.ID)
	s.ErrorIs(err, services.ErrInvalidTransition, "confirming twice must not reserve twice")
	s.Equal(5, testutil.Variant(s.T(), s.db, teeID, "L", "Black").ReservedQuantity)
}

func (s *OrderServiceTestSuite) TestConfirmIsAllOrNothing() {
	other := testutil.CreateCustomer(s.T(), s.db, "jose")

	testutil.AddToCart(s.T(), s.svc, other.ID, hoodieID, "M", "Gray", 3)
	first := testutil.PlaceOrder(s.T(), s.svc, other.ID)

	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 2)
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, hoodieID, "M", "Gray", 2)
	second := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	_, err := s.svc.Orders.ConfirmOrder(s.ctx, first.ID, s.admin.ID)
	s.Require().NoError(err)

	_, err = s.svc.Orders.ConfirmOrder(s.ctx, second.ID, s.admin.ID)
	s.ErrorIs(err, services.ErrInsufficientStock)

	tee := testutil.Variant(s.T(), s.db, teeID, "L", "Black")
	s.Equal(0, tee.ReservedQuantity, "earlier items of a failed confirmation roll back")
	hoodie := testutil.Variant(s.T(), s.db, hoodieID, "M", "Gray")
	s.Equal(3, hoodie.ReservedQuantity)
	s.Equal(0, hoodie.AvailableQuantity)
	s.Empty(s.movements(second.OrderNumber))

	reloaded, err := s.svc.Orders.GetOrder(s.ctx, second.ID, s.customer.ID, false)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPending, reloaded.Status)
	s.False(reloaded.StockReserved)
}

func (s *OrderServiceTestSuite) TestCancelPendingOrderLeavesStockAlone() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 4)
	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	cancelled, err := s.svc.Orders.CancelOrder(s.ctx, order.ID, &s.admin.ID, "customer called")
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, cancelled.Status)
	s.Equal(models.InvoiceStatusCancelled, cancelled.Invoice.Status)
	s.Equal(models.TransactionStatusCancelled, cancelled.Transaction.Status)

	s.Empty(s.movements(order.OrderNumber))
	s.Equal(18, testutil.Variant(s.T(), s.db, teeID, "L", "Black").AvailableQuantity)
}

func (s *OrderServiceTestSuite) TestCancelSkipsOrphanedItems() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 2)
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, hoodieID, "M", "Gray", 1)
	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)
	_, err := s.svc.Orders.ConfirmOrder(s.ctx, order.ID, s.admin.ID)
	s.Require().NoError(err)

	// The hoodie row disappears behind the application's back
	s.Require().NoError(s.db.Exec("DELETE FROM products WHERE id = ?", hoodieID).Error)

	_, err = s.svc.Orders.CancelOrder(s.ctx, order.ID, &s.admin.ID, "out of season")
	s.Require().NoError(err)

	tee := testutil.Variant(s.T(), s.db, teeID, "L", "Black")
	s.Equal(0, tee.ReservedQuantity)
	s.Equal(18, tee.AvailableQuantity)

	movements := s.movements(order.OrderNumber)
	var in []models.StockMovement
	for _, m := range movements {
		if m.MovementType == models.MovementTypeIn {
			in = append(in, m)
		}
	}
	s.Require().Len(in, 1)
	s.Equal(teeID, in[0].ProductID)
}

func (s *OrderServiceTestSuite) TestDeliveredShipsReservedStockAndCollectsCash() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "M", "Black", 3)
	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)
	_, err := s.svc.Orders.ConfirmOrder(s.ctx, order.ID, s.admin.ID)
	s.Require().NoError(err)

	delivered, err := s.svc.Orders.UpdateStatus(s.ctx, order.ID,
		&services.UpdateOrderStatusRequest{Status: models.OrderStatusDelivered}, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusDelivered, delivered.Status)
	s.False(delivered.StockReserved)
	s.Equal(models.TransactionStatusPaid, delivered.Transaction.Status)
	s.Equal(models.InvoiceStatusPaid, delivered.Invoice.Status)

	variant := testutil.Variant(s.T(), s.db, teeID, "M", "Black")
	s.Equal(17, variant.StockQuantity)
	s.Equal(0, variant.ReservedQuantity)
	s.Equal(17, variant.AvailableQuantity)

	_, err = s.svc.Orders.UpdateStatus(s.ctx, order.ID,
		&services.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled}, s.admin.ID)
	s.ErrorIs(err, services.ErrInvalidTransition)
}

func (s *OrderServiceTestSuite) TestOrderVisibility() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 1)
	order := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	_, err := s.svc.Orders.GetOrder(s.ctx, order.ID, uuid.New(), false)
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.svc.Orders.GetOrder(s.ctx, order.ID, s.admin.ID, true)
	s.NoError(err)

	_, err = s.svc.Orders.GetOrder(s.ctx, 9999, s.customer.ID, false)
	s.ErrorIs(err, services.ErrNotFound)

	invoice, err := s.svc.Orders.GetInvoice(s.ctx, order.ID, s.customer.ID, false)
	s.Require().NoError(err)
	s.Equal(order.InvoiceID, invoice.Invoice.InvoiceID)
	s.True(invoice.ItemsTotal.Equal(invoice.Invoice.TotalAmount))
	s.Nil(invoice.Order.Items)
}

func (s *OrderServiceTestSuite) TestListOrders() {
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "L", "Black", 1)
	first := testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)
	testutil.AddToCart(s.T(), s.svc, s.customer.ID, teeID, "M", "Black", 1)
	testutil.PlaceOrder(s.T(), s.svc, s.customer.ID)

	_, err := s.svc.Orders.ConfirmOrder(s.ctx, first.ID, s.admin.ID)
	s.Require().NoError(err)

	mine, total, err := s.svc.Orders.ListUserOrders(s.ctx, s.customer.ID, pageAll())
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(mine, 2)

	confirmed, total, err := s.svc.Orders.ListOrders(s.ctx, services.OrderFilter{
		Status:     models.OrderStatusConfirmed,
		Pagination: pageAll(),
	})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Require().Len(confirmed, 1)
	s.Equal(first.ID, confirmed[0].ID)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)

	_, err := registry.Orders.UpdateStatus(context.Background(), 1,
		&services.UpdateOrderStatusRequest{Status: "shipped"}, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
}
