package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

func TestCourierLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)

	courier, err := registry.Couriers.Create(ctx, &services.CourierRequest{
		Name:         "  Metro Express Riders ",
		PhoneNumber:  "0917 555 0101",
		VehicleType:  "motorcycle",
		ServiceAreas: []string{"Quezon City", "Manila"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Metro Express Riders", courier.Name)
	assert.Equal(t, models.CourierStatusActive, courier.Status)
	assert.Equal(t, 10, courier.MaxDeliveriesPerDay)
	assert.Equal(t, []string{"Quezon City", "Manila"}, []string(courier.ServiceAreas))

	_, err = registry.Couriers.Create(ctx, &services.CourierRequest{Name: "X", PhoneNumber: "12"})
	assert.ErrorIs(t, err, services.ErrValidation)

	updated, err := registry.Couriers.Update(ctx, courier.ID, &services.CourierRequest{
		Name:        "Metro Express Riders",
		PhoneNumber: "09175550101",
		VehicleType: "van",
		Status:      models.CourierStatusInactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "van", updated.VehicleType)
	assert.Equal(t, models.CourierStatusInactive, updated.Status)

	_, err = registry.Couriers.Update(ctx, 9999, &services.CourierRequest{Name: "Nobody", PhoneNumber: "09175550101"})
	assert.ErrorIs(t, err, services.ErrNotFound)

	all, err := registry.Couriers.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	active, err := registry.Couriers.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	stats, err := registry.Couriers.Stats(ctx, courier.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDeliveries)
	assert.True(t, stats.SuccessRate.IsZero())

	removed, err := registry.Couriers.Delete(ctx, courier.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = registry.Couriers.Get(ctx, courier.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
