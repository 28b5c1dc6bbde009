package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusConfirmed))
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusCancelled))
	assert.True(t, OrderStatusConfirmed.CanTransitionTo(OrderStatusDelivered))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusDelivered))
	assert.False(t, OrderStatusCancelled.CanTransitionTo(OrderStatusConfirmed))
	assert.False(t, OrderStatusDelivered.CanTransitionTo(OrderStatusCancelled))

	assert.True(t, OrderStatusCancelled.IsFinal())
	assert.False(t, OrderStatusConfirmed.IsFinal())
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestDeliveryStatusTransitions(t *testing.T) {
	assert.True(t, DeliveryStatusScheduled.CanTransitionTo(DeliveryStatusScheduled))
	assert.True(t, DeliveryStatusInTransit.CanTransitionTo(DeliveryStatusFailed))
	assert.True(t, DeliveryStatusFailed.CanTransitionTo(DeliveryStatusScheduled))
	assert.True(t, DeliveryStatusCancelled.CanTransitionTo(DeliveryStatusScheduled))
	assert.False(t, DeliveryStatusScheduled.CanTransitionTo(DeliveryStatusDelivered))
	assert.False(t, DeliveryStatusDelivered.CanTransitionTo(DeliveryStatusCancelled))

	assert.True(t, DeliveryStatusInTransit.Active())
	assert.False(t, DeliveryStatusPending.Active())
	assert.False(t, DeliveryStatus("lost").Valid())

	var schedule DeliverySchedule
	schedule.ApplyStatus(DeliveryStatusDelivered)
	assert.Equal(t, DeliveryStatusDelivered, schedule.DeliveryStatus)
	assert.Equal(t, "#28a745", schedule.CalendarColor)
	assert.Equal(t, "✅", schedule.DisplayIcon)

	day := DeliveryCalendarDay{IsAvailable: true, IsBlackoutDate: true}
	assert.False(t, day.Bookable())
}

func TestStockStatusFor(t *testing.T) {
	low, critical := DefaultLowStockThreshold, DefaultCriticalStockThreshold
	cases := map[int]StockStatus{
		-2: StockStatusOutOfStock,
		0:  StockStatusOutOfStock,
		1:  StockStatusCriticalStock,
		5:  StockStatusCriticalStock,
		6:  StockStatusLowStock,
		15: StockStatusLowStock,
		16: StockStatusInStock,
	}
	for available, want := range cases {
		assert.Equal(t, want, StockStatusFor(available, low, critical), "available=%d", available)
	}
}

func TestVariantConsistency(t *testing.T) {
	v := ProductVariant{Size: "XL", Color: "Navy", StockQuantity: 8, ReservedQuantity: 3, AvailableQuantity: 5}
	assert.True(t, v.Consistent())
	assert.Equal(t, "XL/Navy", v.Label())

	v.AvailableQuantity = 6
	assert.False(t, v.Consistent())

	oversold := ProductVariant{StockQuantity: 2, ReservedQuantity: 3, AvailableQuantity: -1}
	assert.False(t, oversold.Consistent())
}

func TestTotals(t *testing.T) {
	item := CartItem{Price: decimal.RequireFromString("899.00"), Quantity: 3}
	assert.Equal(t, "2697", item.Subtotal().String())

	items := []OrderItem{
		{Subtotal: decimal.RequireFromString("1798.00")},
		{Subtotal: decimal.RequireFromString("1299.50")},
	}
	assert.Equal(t, "3097.5", ItemsTotal(items).String())
	assert.True(t, ItemsTotal(nil).IsZero())
}

func TestUserPassword(t *testing.T) {
	u := User{Username: "maria"}
	require.NoError(t, u.SetPassword("TestPass123!"))
	assert.NotEqual(t, "TestPass123!", u.PasswordHash)
	assert.NoError(t, u.CheckPassword("TestPass123!"))
	assert.Error(t, u.CheckPassword("testpass123!"))

	assert.Equal(t, "maria", u.DisplayName())
	u.FullName = "Maria Santos"
	assert.Equal(t, "Maria Santos", u.DisplayName())
	assert.False(t, u.IsAdmin())

	assert.True(t, PriorityUrgent.Valid())
	assert.False(t, PriorityLevel("asap").Valid())
}
