package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

type DeliveryServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       *gorm.DB
	registry *services.Registry
	admin    *models.User
	date     string
}

func (s *DeliveryServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())
	s.registry = testutil.NewRegistry(s.T(), s.db, nil)
	s.admin = testutil.CreateAdmin(s.T(), s.db)
	s.date = testutil.FutureDate(3)
	testutil.CreateProduct(s.T(), s.registry, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "Black", Quantity: 20})
}

// confirmedOrder places and confirms a one-tee order for a new customer.
func (s *DeliveryServiceTestSuite) confirmedOrder(username string) *models.Order {
	customer := testutil.CreateCustomer(s.T(), s.db, username)
	testutil.AddToCart(s.T(), s.registry, customer.ID, teeID, "M", "Black", 1)
	order := testutil.PlaceOrder(s.T(), s.registry, customer.ID)
	confirmed, err := s.registry.Orders.ConfirmOrder(s.ctx, order.ID, s.admin.ID)
	s.Require().NoError(err)
	return confirmed
}

func (s *DeliveryServiceTestSuite) schedule(orderID uint, date string, courierID *uint) (*models.DeliverySchedule, error) {
	return s.registry.Delivery.Schedule(s.ctx, &services.ScheduleDeliveryRequest{
		OrderID:      orderID,
		DeliveryDate: date,
		TimeSlot:     "09:00-12:00",
		CourierID:    courierID,
	}, s.admin.ID)
}

func (s *DeliveryServiceTestSuite) order(id uint) *models.Order {
	var order models.Order
	s.Require().NoError(s.db.First(&order, id).Error)
	return &order
}

func (s *DeliveryServiceTestSuite) courier(name string, perDay int) *models.Courier {
	courier, err := s.registry.Couriers.Create(s.ctx, &services.CourierRequest{
		Name:                name,
		PhoneNumber:         "09171112222",
		VehicleType:         "motorcycle",
		MaxDeliveriesPerDay: perDay,
	})
	s.Require().NoError(err)
	return courier
}

func (s *DeliveryServiceTestSuite) TestScheduleRequiresConfirmedOrder() {
	customer := testutil.CreateCustomer(s.T(), s.db, "maria")
	testutil.AddToCart(s.T(), s.registry, customer.ID, teeID, "M", "Black", 1)
	pending := testutil.PlaceOrder(s.T(), s.registry, customer.ID)

	_, err := s.schedule(pending.ID, s.date, nil)
	s.ErrorIs(err, services.ErrOrderNotConfirmed)

	_, err = s.schedule(9999, s.date, nil)
	s.ErrorIs(err, services.ErrNotFound)

	_, err = s.schedule(pending.ID, "17/10/2026", nil)
	s.ErrorIs(err, services.ErrValidation)
}

func (s *DeliveryServiceTestSuite) TestScheduleMirrorsOntoOrder() {
	order := s.confirmedOrder("maria")

	schedule, err := s.schedule(order.ID, s.date, nil)
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusScheduled, schedule.DeliveryStatus)
	s.Equal(order.OrderNumber, schedule.OrderNumber)
	s.Equal("Maria", schedule.CustomerName)
	s.NotEmpty(schedule.TrackingNumber)
	s.Equal(models.DeliveryStatusScheduled.CalendarColor(), schedule.CalendarColor)

	mirrored := s.order(order.ID)
	s.Require().NotNil(mirrored.ScheduledDeliveryDate)
	s.Equal(s.date, *mirrored.ScheduledDeliveryDate)
	s.Equal(models.DeliveryStatusScheduled, mirrored.DeliveryStatus)

	history, err := s.registry.Delivery.History(s.ctx, schedule.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *DeliveryServiceTestSuite) TestRescheduleReusesSchedule() {
	order := s.confirmedOrder("maria")
	first, err := s.schedule(order.ID, s.date, nil)
	s.Require().NoError(err)

	later := testutil.FutureDate(5)
	moved, err := s.schedule(order.ID, later, nil)
	s.Require().NoError(err)
	s.Equal(first.ID, moved.ID)
	s.Equal(first.TrackingNumber, moved.TrackingNumber)
	s.Equal(later, moved.DeliveryDate)

	var count int64
	s.Require().NoError(s.db.Model(&models.DeliverySchedule{}).Where("order_id = ?", order.ID).Count(&count).Error)
	s.EqualValues(1, count)
	s.Equal(later, *s.order(order.ID).ScheduledDeliveryDate)
}

func (s *DeliveryServiceTestSuite) TestDailyCapacity() {
	for i := 0; i < 3; i++ {
		order := s.confirmedOrder(fmt.Sprintf("customer%d", i))
		_, err := s.schedule(order.ID, s.date, nil)
		s.Require().NoError(err)
	}

	fourth := s.confirmedOrder("customer3")
	_, err := s.schedule(fourth.ID, s.date, nil)
	s.ErrorIs(err, services.ErrCapacityExceeded)

	limit := 4
	_, err = s.registry.Delivery.SetAvailability(s.ctx, s.date,
		&services.CalendarAvailabilityRequest{MaxDeliveries: &limit}, s.admin.ID)
	s.Require().NoError(err)
	_, err = s.schedule(fourth.ID, s.date, nil)
	s.Require().NoError(err)

	days, err := s.registry.Delivery.Calendar(s.ctx, s.date, s.date)
	s.Require().NoError(err)
	s.Require().Len(days, 1)
	s.Equal(4, days[0].Booked)
	s.Equal(4, days[0].MaxDeliveries)
	s.Equal(0, days[0].Remaining)
	s.Equal(4, days[0].StatusCounts[models.DeliveryStatusScheduled])
	s.Len(days[0].Deliveries, 4)
}

func (s *DeliveryServiceTestSuite) TestUnavailableAndPastDates() {
	order := s.confirmedOrder("maria")

	_, err := s.schedule(order.ID, testutil.FutureDate(-1), nil)
	s.ErrorIs(err, services.ErrDateUnavailable)

	_, err = s.registry.Delivery.MarkUnavailable(s.ctx,
		&services.MarkUnavailableRequest{Date: s.date, Reason: "Typhoon signal no. 3"}, s.admin.ID)
	s.Require().NoError(err)

	_, err = s.schedule(order.ID, s.date, nil)
	s.ErrorIs(err, services.ErrDateUnavailable)

	days, err := s.registry.Delivery.Calendar(s.ctx, s.date, testutil.FutureDate(4))
	s.Require().NoError(err)
	s.Require().Len(days, 2)
	s.False(days[0].IsAvailable)
	s.Equal("Typhoon signal no. 3", days[0].SpecialNotes)
	s.Equal(0, days[0].Remaining)
	s.True(days[1].IsAvailable)
	s.Equal(3, days[1].Remaining)
}

func (s *DeliveryServiceTestSuite) TestCourierLimits() {
	courier := s.courier("Metro Express Riders", 1)
	first := s.confirmedOrder("maria")
	second := s.confirmedOrder("pedro")

	schedule, err := s.schedule(first.ID, s.date, &courier.ID)
	s.Require().NoError(err)
	s.Require().NotNil(schedule.Courier)
	s.Equal(courier.Name, schedule.Courier.Name)

	_, err = s.schedule(second.ID, s.date, &courier.ID)
	s.ErrorIs(err, services.ErrCourierUnavailable)

	other, err := s.schedule(second.ID, s.date, nil)
	s.Require().NoError(err)
	_, err = s.registry.Delivery.AssignCourier(s.ctx, other.ID, &services.AssignCourierRequest{CourierID: &courier.ID}, s.admin.ID)
	s.ErrorIs(err, services.ErrCourierUnavailable)

	missing := uint(9999)
	_, err = s.schedule(second.ID, s.date, &missing)
	s.ErrorIs(err, services.ErrCourierUnavailable)

	// Deleting a courier with open deliveries only deactivates it
	removed, err := s.registry.Couriers.Delete(s.ctx, courier.ID)
	s.Require().NoError(err)
	s.False(removed)
	deactivated, err := s.registry.Couriers.Get(s.ctx, courier.ID)
	s.Require().NoError(err)
	s.Equal(models.CourierStatusInactive, deactivated.Status)

	_, err = s.registry.Delivery.AssignCourier(s.ctx, other.ID, &services.AssignCourierRequest{CourierID: &courier.ID}, s.admin.ID)
	s.ErrorIs(err, services.ErrCourierUnavailable)

	active, err := s.registry.Couriers.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *DeliveryServiceTestSuite) TestDeliveredCompletesOrder() {
	courier := s.courier("South Link Logistics", 5)
	order := s.confirmedOrder("maria")
	schedule, err := s.schedule(order.ID, s.date, &courier.ID)
	s.Require().NoError(err)

	_, err = s.registry.Delivery.UpdateStatus(s.ctx, schedule.ID,
		&services.UpdateDeliveryStatusRequest{Status: models.DeliveryStatusDelivered}, s.admin.ID)
	s.ErrorIs(err, services.ErrInvalidTransition)

	_, err = s.registry.Delivery.UpdateStatus(s.ctx, schedule.ID,
		&services.UpdateDeliveryStatusRequest{Status: models.DeliveryStatusInTransit, Notes: "left the warehouse"}, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusInTransit, s.order(order.ID).DeliveryStatus)

	delivered, err := s.registry.Delivery.UpdateStatus(s.ctx, schedule.ID,
		&services.UpdateDeliveryStatusRequest{Status: models.DeliveryStatusDelivered}, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusDelivered, delivered.DeliveryStatus)
	s.NotNil(delivered.DeliveredAt)

	completed := s.order(order.ID)
	s.Equal(models.OrderStatusDelivered, completed.Status)
	s.Equal(models.DeliveryStatusDelivered, completed.DeliveryStatus)
	s.False(completed.StockReserved)

	variant := testutil.Variant(s.T(), s.db, teeID, "M", "Black")
	s.Equal(19, variant.StockQuantity)
	s.Equal(0, variant.ReservedQuantity)

	stats, err := s.registry.Couriers.Stats(s.ctx, courier.ID)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalDeliveries)
	s.Equal(1, stats.SuccessfulDeliveries)
	s.Equal("100", stats.SuccessRate.String())
	s.Equal(1, stats.ByStatus[models.DeliveryStatusDelivered])
	s.Equal(0, stats.Upcoming)

	history, err := s.registry.Delivery.History(s.ctx, schedule.ID)
	s.Require().NoError(err)
	s.Len(history, 3)

	// A finished courier can now be removed outright
	removed, err := s.registry.Couriers.Delete(s.ctx, courier.ID)
	s.Require().NoError(err)
	s.True(removed)
}

func (s *DeliveryServiceTestSuite) TestCancelledOrderCancelsSchedule() {
	order := s.confirmedOrder("maria")
	schedule, err := s.schedule(order.ID, s.date, nil)
	s.Require().NoError(err)

	_, err = s.registry.Orders.CancelOrder(s.ctx, order.ID, &s.admin.ID, "customer unreachable")
	s.Require().NoError(err)

	cancelled, err := s.registry.Delivery.Get(s.ctx, schedule.ID)
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusCancelled, cancelled.DeliveryStatus)

	mirrored := s.order(order.ID)
	s.Nil(mirrored.ScheduledDeliveryDate)
	s.Equal(models.DeliveryStatusCancelled, mirrored.DeliveryStatus)

	days, err := s.registry.Delivery.Calendar(s.ctx, s.date, s.date)
	s.Require().NoError(err)
	s.Equal(0, days[0].Booked)
	s.Equal(1, days[0].StatusCounts[models.DeliveryStatusCancelled])
}

func (s *DeliveryServiceTestSuite) TestReconcileRepairsMirrorAndDuplicates() {
	order := s.confirmedOrder("maria")
	schedule, err := s.schedule(order.ID, s.date, nil)
	s.Require().NoError(err)

	report, err := s.registry.Delivery.Reconcile(s.ctx, false, nil)
	s.Require().NoError(err)
	s.True(report.Clean())
	s.Equal(1, report.CheckedSchedules)

	// Drift the mirror and add a second open schedule behind the service's back
	s.Require().NoError(s.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"scheduled_delivery_date": nil,
		"delivery_status":         models.DeliveryStatusPending,
	}).Error)
	duplicate := *schedule
	duplicate.ID = 0
	duplicate.Courier = nil
	duplicate.TrackingNumber = "SF-DUPLICATE"
	duplicate.DeliveryDate = testutil.FutureDate(6)
	s.Require().NoError(s.db.Create(&duplicate).Error)

	report, err = s.registry.Delivery.Reconcile(s.ctx, false, nil)
	s.Require().NoError(err)
	s.False(report.Clean())
	s.False(report.Repaired)
	s.Require().Len(report.Duplicates, 1)
	s.Equal(duplicate.ID, report.Duplicates[0].KeptID)
	s.Equal([]uint{schedule.ID}, report.Duplicates[0].Duplicates)
	s.Require().Len(report.MirrorIssues, 1)
	s.Equal(order.ID, report.MirrorIssues[0].OrderID)

	actor := s.admin.ID
	report, err = s.registry.Delivery.Reconcile(s.ctx, true, &actor)
	s.Require().NoError(err)
	s.True(report.Repaired)

	older, err := s.registry.Delivery.Get(s.ctx, schedule.ID)
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusCancelled, older.DeliveryStatus)

	mirrored := s.order(order.ID)
	s.Require().NotNil(mirrored.ScheduledDeliveryDate)
	s.Equal(duplicate.DeliveryDate, *mirrored.ScheduledDeliveryDate)
	s.Equal(models.DeliveryStatusScheduled, mirrored.DeliveryStatus)

	report, err = s.registry.Delivery.Reconcile(s.ctx, false, nil)
	s.Require().NoError(err)
	s.True(report.Clean())
}

func (s *DeliveryServiceTestSuite) TestListFilters() {
	first := s.confirmedOrder("maria")
	second := s.confirmedOrder("pedro")
	_, err := s.schedule(first.ID, s.date, nil)
	s.Require().NoError(err)
	_, err = s.schedule(second.ID, testutil.FutureDate(4), nil)
	s.Require().NoError(err)

	all, total, err := s.registry.Delivery.List(s.ctx, services.DeliveryFilter{Pagination: pageAll()})
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(all, 2)

	onDate, total, err := s.registry.Delivery.List(s.ctx, services.DeliveryFilter{
		DateFrom:   s.date,
		DateTo:     s.date,
		Pagination: pageAll(),
	})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(first.ID, onDate[0].OrderID)

	_, err = s.registry.Delivery.Get(s.ctx, 9999)
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *DeliveryServiceTestSuite) TestSetAvailabilitySurvivesFailedBookingCount() {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	s.Require().NoError(s.db.Callback().Query().Before("gorm:query").Register("test:fail_schedule_count",
		func(db *gorm.DB) {
			if db.Statement.Table == "delivery_schedules" {
				db.AddError(errors.New("connection lost"))
			}
		}))

	closed := false
	day, err := s.registry.Delivery.SetAvailability(s.ctx, s.date,
		&services.CalendarAvailabilityRequest{IsAvailable: &closed, SpecialNotes: "typhoon"}, s.admin.ID)
	s.Require().NoError(err)
	s.False(day.IsAvailable)

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["date"] == s.date && entry.Data[logrus.ErrorKey] != nil {
			logged = true
		}
	}
	s.True(logged, "failed booking count should be logged")
}

func TestDeliveryServiceSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceTestSuite))
}

func TestCalendarRejectsReversedRange(t *testing.T) {
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)

	_, err := registry.Delivery.Calendar(context.Background(), testutil.FutureDate(5), testutil.FutureDate(1))
	if err == nil {
		t.Fatal("expected an error for a reversed range")
	}

	_, err = registry.Delivery.MarkUnavailable(context.Background(),
		&services.MarkUnavailableRequest{Date: testutil.FutureDate(2)}, uuid.New())
	if err == nil {
		t.Fatal("expected a validation error without a reason")
	}
}
