package services_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
)

func newLocalStorage(t *testing.T) (*services.StorageService, string) {
	t.Helper()
	cfg := testutil.Config()
	cfg.Upload.Dir = t.TempDir()
	storage, err := services.NewStorageService(cfg)
	require.NoError(t, err)
	require.False(t, storage.UsesS3())
	return storage, cfg.Upload.Dir
}

func upload(t *testing.T, storage *services.StorageService, name string, content []byte, opts services.UploadOptions) (*services.UploadResult, error) {
	t.Helper()
	header := testutil.FileHeader(t, name, content)
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()
	return storage.UploadFile(file, header, opts)
}

func TestProductImagesAreFittedWithinMaxDimension(t *testing.T) {
	storage, dir := newLocalStorage(t)

	result, err := upload(t, storage, "banner.png", testutil.PNG(t, 2400, 1200), storage.ProductImageOptions())
	require.NoError(t, err)
	assert.Equal(t, "image/png", result.MimeType)
	assert.True(t, strings.HasPrefix(result.Key, "products/"))
	assert.Equal(t, ".png", filepath.Ext(result.Key))
	assert.Equal(t, "/uploads/"+result.Key, result.URL)

	img, err := imaging.Open(filepath.Join(dir, filepath.FromSlash(result.Key)))
	require.NoError(t, err)
	assert.Equal(t, 1600, img.Bounds().Dx())
	assert.Equal(t, 800, img.Bounds().Dy())
}

func TestJPEGUploadsAreReencoded(t *testing.T) {
	storage, dir := newLocalStorage(t)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 300, 200)), nil))

	result, err := upload(t, storage, "PHOTO.JPEG", buf.Bytes(), storage.CustomDesignOptions())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.MimeType)
	assert.Equal(t, ".jpg", filepath.Ext(result.Key))
	assert.True(t, strings.HasPrefix(result.Key, "custom-orders/"))

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(result.Key)))
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestPaymentProofsAreStoredUnchanged(t *testing.T) {
	storage, dir := newLocalStorage(t)
	content := testutil.PNG(t, 2000, 100)

	result, err := upload(t, storage, "receipt.png", content, storage.PaymentProofOptions())
	require.NoError(t, err)

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(result.Key)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	require.NoError(t, storage.DeleteFile(result.Key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(result.Key)))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadRejectsBadFiles(t *testing.T) {
	storage, _ := newLocalStorage(t)

	_, err := upload(t, storage, "design.png", []byte("definitely not an image"), storage.ProductImageOptions())
	assert.ErrorIs(t, err, services.ErrInvalidFile)

	_, err = upload(t, storage, "design.pdf", testutil.PNG(t, 10, 10), storage.ProductImageOptions())
	assert.ErrorIs(t, err, services.ErrInvalidFile)

	// testutil.Config caps uploads at 1MB
	_, err = upload(t, storage, "huge.png", make([]byte, 2<<20), storage.ProductImageOptions())
	assert.ErrorIs(t, err, services.ErrFileTooLarge)
}

func TestProductImageUploadUpdatesGallery(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	registry := testutil.NewRegistry(t, db, nil)
	testutil.CreateProduct(t, registry, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "Black", Quantity: 5})

	header := testutil.FileHeader(t, "front.png", testutil.PNG(t, 1800, 1800))
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()

	product, err := registry.Products.UploadImage(ctx, teeID, file, header)
	require.NoError(t, err)
	require.Len(t, product.Images, 1)
	assert.Equal(t, product.Images[0], product.MainImage)
	assert.True(t, strings.HasSuffix(product.MainImage, ".png"))
}
