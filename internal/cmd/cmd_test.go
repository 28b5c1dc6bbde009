package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

const hoodieID uint64 = 640009057965

// useTestEnvironment points every command at a fresh in-memory database
// holding one hoodie with a single variant.
func useTestEnvironment(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)
	testutil.CreateProduct(t, registry, hoodieID, "Seven Four Streetwear Hoodie", "1299.00",
		testutil.Stock{Size: "L", Color: "Gray", Quantity: 15})

	previous := openEnvironment
	openEnvironment = func() (*environment, error) {
		return &environment{cfg: testutil.Config(), db: db, registry: registry}, nil
	}
	t.Cleanup(func() {
		openEnvironment = previous
		logrus.SetOutput(os.Stderr)
	})
	return db
}

func run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--env-file="))
	err := root.Execute()
	return stdout.String(), err
}

func TestStockVerifyFailsOnDriftAndRepairFixesIt(t *testing.T) {
	db := useTestEnvironment(t)

	_, err := run("stock", "verify")
	require.NoError(t, err)

	variant := testutil.Variant(t, db, hoodieID, "L", "Gray")
	require.NoError(t, db.Model(&models.ProductVariant{}).Where("id = ?", variant.ID).
		Update("available_quantity", 40).Error)

	out, err := run("stock", "verify")
	assert.ErrorIs(t, err, errUnclean)
	var report services.StockReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.NotEmpty(t, report.VariantIssues)
	assert.False(t, report.Repaired)

	out, err = run("stock", "verify", "--repair")
	require.NoError(t, err)
	report = services.StockReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.True(t, report.Repaired)

	variant = testutil.Variant(t, db, hoodieID, "L", "Gray")
	assert.Equal(t, 15, variant.AvailableQuantity)
	assert.True(t, variant.Consistent())

	_, err = run("stock", "verify")
	assert.NoError(t, err)
}

func TestStockSyncProductID(t *testing.T) {
	useTestEnvironment(t)

	_, err := run("stock", "sync", "--product-id=abc")
	assert.Error(t, err)

	out, err := run("stock", "sync", "--product-id=640009057965")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced product 640009057965")

	out, err = run("stock", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 products")
}

func TestDeliveryReconcileOnCleanDatabase(t *testing.T) {
	useTestEnvironment(t)

	out, err := run("delivery", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "{")
}
