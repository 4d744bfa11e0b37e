package service

import (
	"context"
	"testing"

	"medstore/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddReview(t *testing.T) {
	store := newMemStore()
	svc := NewReviewService(store, store)
	ctx := context.Background()
	product := store.addProduct("Vitamin D", 500, 10)
	p := &models.Principal{ID: "user-a", Name: "Ayesha", IsVerified: true}

	_, err := svc.AddReview(ctx, p, ReviewInput{ProductID: product, Rating: 6})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.AddReview(ctx, p, ReviewInput{ProductID: "missing", Rating: 4})
	assert.ErrorIs(t, err, models.ErrNotFound)

	review, err := svc.AddReview(ctx, p, ReviewInput{ProductID: product, Rating: 4, Comment: " works "})
	require.NoError(t, err)
	assert.Equal(t, "works", review.Comment)

	_, err = svc.AddReview(ctx, p, ReviewInput{ProductID: product, Rating: 2})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.AddReview(ctx, &models.Principal{ID: "user-b"}, ReviewInput{ProductID: product, Rating: 2})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReviews)
	assert.InDelta(t, 3.0, stats.AverageRating, 0.001)
}

func TestWishlist(t *testing.T) {
	store := newMemStore()
	svc := NewWishlistService(store, store)
	ctx := context.Background()
	product := store.addProduct("Vitamin D", 500, 10)

	assert.ErrorIs(t, svc.Add(ctx, "user-a", "missing"), models.ErrNotFound)
	require.NoError(t, svc.Add(ctx, "user-a", product))
	assert.ErrorIs(t, svc.Add(ctx, "user-a", product), models.ErrConflict)

	in, err := svc.Contains(ctx, "user-a", product)
	require.NoError(t, err)
	assert.True(t, in)

	items, err := svc.List(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Vitamin D", items[0].ProductName)

	require.NoError(t, svc.Remove(ctx, "user-a", product))
	assert.ErrorIs(t, svc.Remove(ctx, "user-a", product), models.ErrNotFound)
}

func TestComplaints(t *testing.T) {
	store := newMemStore()
	svc := NewComplaintService(store)
	svc.logger = nopLogger
	ctx := context.Background()

	_, err := svc.Submit(ctx, nil, ComplaintInput{Name: "x", Email: "bad", Subject: "s", Message: "m"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	guest, err := svc.Submit(ctx, nil, ComplaintInput{Name: "Sara", Email: "Sara@Example.com", Subject: "Late", Message: "Order is late"})
	require.NoError(t, err)
	assert.Nil(t, guest.UserID)
	assert.Equal(t, models.ComplaintPending, guest.Status)
	assert.Equal(t, "sara@example.com", guest.Email)

	signedIn, err := svc.Submit(ctx, &models.Principal{ID: "user-a"}, ComplaintInput{Name: "A", Email: "a@example.com", Subject: "s", Message: "m"})
	require.NoError(t, err)
	require.NotNil(t, signedIn.UserID)

	updated, err := svc.UpdateStatus(ctx, guest.ID, models.ComplaintResolved)
	require.NoError(t, err)
	assert.Equal(t, models.ComplaintResolved, updated.Status)

	_, err = svc.UpdateStatus(ctx, guest.ID, "closed")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, svc.Delete(ctx, guest.ID))
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCatalogProducts(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewCatalogService(store, store, notifier)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, CategoryInput{Name: "Vitamins"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Vitamins"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Free", Price: decimal.Zero, Stock: 1, CategoryID: category.ID})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Orphan", Price: decimal.NewFromInt(10), Stock: 1, CategoryID: "no-such-category"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	product, err := svc.CreateProduct(ctx, ProductInput{Name: "Vitamin D", Price: decimal.NewFromInt(500), Stock: 10, CategoryID: category.ID})
	require.NoError(t, err)
	assert.True(t, product.IsActive)

	inactive := false
	_, err = svc.UpdateProduct(ctx, product.ID, ProductUpdate{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.GetProduct(ctx, product.ID, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.GetProduct(ctx, product.ID, true)
	assert.NoError(t, err)

	listed, err := svc.ListProducts(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	negative := -1
	_, err = svc.UpdateProduct(ctx, product.ID, ProductUpdate{Stock: &negative})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	assert.Positive(t, notifier.count(models.EventTypeAnalyticsUpdate, models.RoomAdmins))
}
