// internal/services/cache.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/models"
)

// ProductCache holds product detail payloads (product + variants). Every
// stock mutation invalidates the affected products after its commit.
type ProductCache interface {
	GetProduct(ctx context.Context, id uint64) (*models.Product, bool)
	SetProduct(ctx context.Context, product *models.Product)
	InvalidateProducts(ctx context.Context, ids ...uint64)
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewProductCache picks redis when configured and reachable.
func NewProductCache(cfg config.RedisConfig) ProductCache {
	if !cfg.Enabled() {
		return NoopProductCache{}
	}
	client := NewRedisClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("addr", cfg.Addr()).Warn("Redis unavailable, product cache disabled")
		client.Close()
		return NoopProductCache{}
	}
	return NewRedisProductCache(client, time.Duration(cfg.CacheTTL)*time.Second)
}

type RedisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProductCache(client *redis.Client, ttl time.Duration) *RedisProductCache {
	return &RedisProductCache{client: client, ttl: ttl}
}

func productCacheKey(id uint64) string {
	return fmt.Sprintf("sevenfour:product:%d", id)
}

func (c *RedisProductCache) GetProduct(ctx context.Context, id uint64) (*models.Product, bool) {
	data, err := c.client.Get(ctx, productCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("product_id", id).Warn("Product cache read failed")
		}
		return nil, false
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		logrus.WithError(err).WithField("product_id", id).Warn("Discarding undecodable cached product")
		c.client.Del(ctx, productCacheKey(id))
		return nil, false
	}
	return &product, true
}

func (c *RedisProductCache) SetProduct(ctx context.Context, product *models.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, productCacheKey(product.ID), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("product_id", product.ID).Warn("Product cache write failed")
	}
}

func (c *RedisProductCache) InvalidateProducts(ctx context.Context, ids ...uint64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("product_ids", ids).Warn("Product cache invalidation failed")
	}
}

type NoopProductCache struct{}

func (NoopProductCache) GetProduct(context.Context, uint64) (*models.Product, bool) { return nil, false }
func (NoopProductCache) SetProduct(context.Context, *models.Product)                {}
func (NoopProductCache) InvalidateProducts(context.Context, ...uint64)              {}

// MemoryProductCache is an in-process cache for single-instance runs and tests.
type MemoryProductCache struct {
	mu       sync.RWMutex
	products map[uint64]models.Product
}

func NewMemoryProductCache() *MemoryProductCache {
	return &MemoryProductCache{products: make(map[uint64]models.Product)}
}

func (c *MemoryProductCache) GetProduct(_ context.Context, id uint64) (*models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[id]
	if !ok {
		return nil, false
	}
	return &product, true
}

func (c *MemoryProductCache) SetProduct(_ context.Context, product *models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = *product
}

func (c *MemoryProductCache) InvalidateProducts(_ context.Context, ids ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.products, id)
	}
}
