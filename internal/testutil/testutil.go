// internal/testutil/testutil.go
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
)

const Password = "TestPass123!"

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

// Config returns a configuration that never reaches external services.
func Config() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: "0", Host: "127.0.0.1", RateLimit: false},
		Database:    config.DatabaseConfig{Driver: "mysql", LogLevel: "silent"},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Payment:  config.PaymentConfig{Currency: "php", DefaultMethod: "cash_on_delivery"},
		Email:    config.EmailConfig{FromEmail: "noreply@example.com", FromName: "Seven Four Clothing"},
		Upload:   config.UploadConfig{Dir: "testdata/uploads", PublicURL: "/uploads", MaxSizeMB: 1},
		Stock:    config.StockConfig{LowThreshold: 15, CriticalThreshold: 5},
		Delivery: config.DeliveryConfig{DailyCapacity: 3},
		Admin:    config.AdminSeedConfig{Email: "admin@example.com", Username: "admin", Password: "Admin123!"},
		I18n:     config.I18nConfig{DefaultLocale: "en"},
		Frontend: config.FrontendConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

// NewRegistry wires every service against db. A nil gateway leaves card
// payments unconfigured. Uploads land in a per-test directory.
func NewRegistry(t testing.TB, db *gorm.DB, gateway services.PaymentGateway) *services.Registry {
	t.Helper()
	cfg := Config()
	cfg.Upload.Dir = t.TempDir()
	registry, err := services.NewRegistry(db, cfg, services.NewMemoryProductCache(), gateway)
	require.NoError(t, err)
	return registry
}

func CreateUser(t testing.TB, db *gorm.DB, username string, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		FullName: strings.ToUpper(username[:1]) + username[1:],
		Phone:    "09171234567",
		Address:  "12 Mabini St, Quezon City",
		Role:     role,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword(Password))
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateCustomer(t testing.TB, db *gorm.DB, username string) *models.User {
	return CreateUser(t, db, username, models.UserRoleCustomer)
}

func CreateAdmin(t testing.TB, db *gorm.DB) *models.User {
	return CreateUser(t, db, "admin", models.UserRoleAdmin)
}

// Stock describes one variant of a fixture product.
type Stock struct {
	Size     string
	Color    string
	Quantity int
}

// CreateProduct creates an active product and its variants through the
// product service, so the ledger and aggregates match production writes.
func CreateProduct(t testing.TB, registry *services.Registry, id uint64, name, price string, stock ...Stock) *models.Product {
	t.Helper()
	req := &services.CreateProductRequest{
		ID:          id,
		Name:        name,
		ProductType: "t-shirts",
		Color:       "Black",
		Price:       decimal.RequireFromString(price),
	}
	for _, s := range stock {
		req.Variants = append(req.Variants, services.VariantStockRequest{
			Size:          s.Size,
			Color:         s.Color,
			StockQuantity: s.Quantity,
		})
	}
	product, err := registry.Products.CreateProduct(context.Background(), req, uuid.New())
	require.NoError(t, err)
	return product
}

func Variant(t testing.TB, db *gorm.DB, productID uint64, size, color string) *models.ProductVariant {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, db.Where("product_id = ? AND size = ? AND color = ?", productID, size, color).First(&variant).Error)
	return &variant
}

func AddToCart(t testing.TB, registry *services.Registry, userID uuid.UUID, productID uint64, size, color string, quantity int) {
	t.Helper()
	_, err := registry.Carts.AddItem(context.Background(), userID, &services.AddCartItemRequest{
		ProductID: productID,
		Size:      size,
		Color:     color,
		Quantity:  quantity,
	})
	require.NoError(t, err)
}

func PlaceOrder(t testing.TB, registry *services.Registry, userID uuid.UUID) *models.Order {
	t.Helper()
	order, err := registry.Orders.PlaceOrder(context.Background(), userID, &services.PlaceOrderRequest{
		ShippingAddress: "12 Mabini St, Quezon City",
		ContactPhone:    "0917 123 4567",
	})
	require.NoError(t, err)
	return order
}

// PNG encodes a solid width x height image.
func PNG(t testing.TB, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 20, G: 40, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// File is one part of a multipart upload.
type File struct {
	Field   string
	Name    string
	Content []byte
}

// MultipartBody encodes form fields and files, returning the body and its
// content type.
func MultipartBody(t testing.TB, fields map[string]string, files ...File) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		require.NoError(t, err)
		_, err = part.Write(f.Content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

// FileHeader returns the parsed header of a single uploaded file, as a
// handler would see it.
func FileHeader(t testing.TB, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body, contentType := MultipartBody(t, nil, File{Field: "file", Name: name, Content: content})
	_, boundary, ok := strings.Cut(contentType, "boundary=")
	require.True(t, ok)

	form, err := multipart.NewReader(body, boundary).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	require.Len(t, form.File["file"], 1)
	return form.File["file"][0]
}

// FutureDate returns a calendar date days from today.
func FutureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(models.DateLayout)
}

// FakeGateway is an in-memory PaymentGateway. Intents start as
// requires_payment_method; Succeed marks one as paid.
type FakeGateway struct {
	mu      sync.Mutex
	next    int
	intents map[string]*services.GatewayIntent
	Refunds []string
	// FailRefunds makes every refund call return an error
	FailRefunds bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{intents: map[string]*services.GatewayIntent{}}
}

func (g *FakeGateway) CreateIntent(_ context.Context, amount int64, _ string, metadata map[string]string, idempotencyKey string) (*services.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, intent := range g.intents {
		if intent.Metadata["idempotency_key"] == idempotencyKey {
			copied := *intent
			return &copied, nil
		}
	}

	g.next++
	id := fmt.Sprintf("pi_test_%d", g.next)
	meta := map[string]string{"idempotency_key": idempotencyKey}
	for k, v := range metadata {
		meta[k] = v
	}
	intent := &services.GatewayIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       amount,
		Metadata:     meta,
	}
	g.intents[id] = intent
	copied := *intent
	return &copied, nil
}

func (g *FakeGateway) GetIntent(_ context.Context, intentID string) (*services.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", intentID)
	}
	copied := *intent
	return &copied, nil
}

func (g *FakeGateway) Refund(_ context.Context, intentID string, _ int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefunds {
		return "", fmt.Errorf("refund declined for %s", intentID)
	}
	g.Refunds = append(g.Refunds, intentID)
	return "re_" + intentID, nil
}

// Succeed marks an intent as paid.
func (g *FakeGateway) Succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = services.IntentStatusSucceeded
	}
}
