package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const notFoundMarker = "notfound"

// ProductRepository is the product persistence the cache sits in front of
type ProductRepository interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// CachedProductRepository serves single product reads from Redis and
// invalidates on every write. Redis failures fall through to the repository.
type CachedProductRepository struct {
	ProductRepository
	redis       *redis.Client
	ttl         time.Duration
	notFoundTTL time.Duration
	logger      *zap.Logger
}

func NewCachedProductRepository(repo ProductRepository, rdb *redis.Client) *CachedProductRepository {
	return &CachedProductRepository{
		ProductRepository: repo,
		redis:             rdb,
		ttl:               5 * time.Minute,
		notFoundTTL:       time.Minute,
		logger:            util.GetLogger(),
	}
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// GetProductByID reads through the cache. Misses for unknown ids are cached
// briefly as well.
func (c *CachedProductRepository) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	key := productKey(id)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
		}
		var product models.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
		c.logger.Warn("Failed to unmarshal cached product, continuing with DB", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Redis error, continuing with DB", zap.Error(err))
	}

	product, err := c.ProductRepository.GetProductByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		if setErr := c.redis.Set(ctx, key, notFoundMarker, c.notFoundTTL).Err(); setErr != nil {
			c.logger.Warn("Failed to cache not found marker", zap.Error(setErr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(product); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("Failed to cache product", zap.String("product_id", id), zap.Error(err))
		}
	}

	return product, nil
}

// CreateProduct clears any cached not found marker for the new id
func (c *CachedProductRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := c.ProductRepository.CreateProduct(ctx, product); err != nil {
		return err
	}
	c.InvalidateProducts(ctx, product.ID)
	return nil
}

func (c *CachedProductRepository) UpdateProduct(ctx context.Context, product *models.Product) error {
	defer c.InvalidateProducts(ctx, product.ID)
	return c.ProductRepository.UpdateProduct(ctx, product)
}

func (c *CachedProductRepository) DeleteProduct(ctx context.Context, id string) error {
	defer c.InvalidateProducts(ctx, id)
	return c.ProductRepository.DeleteProduct(ctx, id)
}

// InvalidateProducts drops cached entries, e.g. after stock changed
func (c *CachedProductRepository) InvalidateProducts(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
}
