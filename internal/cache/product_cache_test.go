package cache

import (
	"context"
	"fmt"
	"testing"

	"medstore/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	ProductRepository
	products map[string]*models.Product
	reads    int
}

func (r *countingRepo) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	r.reads++
	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (r *countingRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	r.products[product.ID] = product
	return nil
}

func (r *countingRepo) UpdateProduct(ctx context.Context, product *models.Product) error {
	r.products[product.ID] = product
	return nil
}

func newCache(t *testing.T) (*CachedProductRepository, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := &countingRepo{products: map[string]*models.Product{
		"p1": {ID: "p1", Name: "Oximeter", Price: decimal.NewFromInt(100), Stock: 4, IsActive: true},
	}}
	return NewCachedProductRepository(repo, rdb), repo, mr
}

func TestGetProductReadsThrough(t *testing.T) {
	c, repo, mr := newCache(t)
	ctx := context.Background()

	first, err := c.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	second, err := c.GetProductByID(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.reads)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, second.Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, mr.Exists("product:p1"))
}

func TestGetProductCachesNotFound(t *testing.T) {
	c, repo, mr := newCache(t)
	ctx := context.Background()

	_, err := c.GetProductByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = c.GetProductByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 1, repo.reads)
	got, _ := mr.Get("product:missing")
	assert.Equal(t, notFoundMarker, got)
}

func TestWritesInvalidate(t *testing.T) {
	c, repo, _ := newCache(t)
	ctx := context.Background()

	_, err := c.GetProductByID(ctx, "missing")
	require.Error(t, err)
	require.NoError(t, c.CreateProduct(ctx, &models.Product{ID: "missing", Name: "Mask"}))

	p, err := c.GetProductByID(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "Mask", p.Name)

	_, err = c.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, c.UpdateProduct(ctx, &models.Product{ID: "p1", Name: "Oximeter Pro", Stock: 9}))

	p, err = c.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Oximeter Pro", p.Name)
	assert.Equal(t, 4, repo.reads)
}

func TestRedisDownFallsBackToRepository(t *testing.T) {
	c, repo, mr := newCache(t)
	mr.Close()

	p, err := c.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Oximeter", p.Name)
	assert.Equal(t, 1, repo.reads)
}
