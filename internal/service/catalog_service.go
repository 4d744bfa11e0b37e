package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages categories and products
type CatalogService struct {
	categories CategoryRepository
	products   ProductRepository
	notifier   Notifier
	logger     *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(categories CategoryRepository, products ProductRepository, notifier Notifier) *CatalogService {
	return &CatalogService{
		categories: categories,
		products:   products,
		notifier:   notifier,
		logger:     util.GetLogger(),
	}
}

type CategoryInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  string          `json:"category_id"`
	Image       string          `json:"image"`
	IsActive    *bool           `json:"is_active"`
}

// ProductUpdate is a partial product edit; nil fields are left unchanged
type ProductUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	CategoryID  *string          `json:"category_id"`
	Image       *string          `json:"image"`
	IsActive    *bool            `json:"is_active"`
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories.ListCategories(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", models.ErrInvalidInput)
	}

	category := &models.Category{Name: name, Description: in.Description, Image: in.Image}
	if err := s.categories.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*models.Category, error) {
	category, err := s.categories.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		category.Name = name
	}
	category.Description = in.Description
	if in.Image != "" {
		category.Image = in.Image
	}

	if err := s.categories.UpdateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	return s.categories.DeleteCategory(ctx, id)
}

// ListProducts returns catalog products; only admins pass IncludeInactive
func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.products.ListProducts(ctx, filter)
}

// GetProduct returns a product; inactive products are only visible to admins
func (s *CatalogService) GetProduct(ctx context.Context, id string, includeInactive bool) (*models.Product, error) {
	product, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive && !includeInactive {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	return product, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	product := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Image:       in.Image,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if in.CategoryID != "" {
		categoryID := in.CategoryID
		product.CategoryID = &categoryID
	}

	if err := s.validateProduct(ctx, product); err != nil {
		return nil, err
	}
	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID))
	notify(ctx, s.notifier, s.logger, models.AnalyticsNotification())
	return product, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	product, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		product.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		product.Description = *upd.Description
	}
	if upd.Price != nil {
		product.Price = *upd.Price
	}
	if upd.Stock != nil {
		product.Stock = *upd.Stock
	}
	if upd.CategoryID != nil {
		if *upd.CategoryID == "" {
			product.CategoryID = nil
		} else {
			categoryID := *upd.CategoryID
			product.CategoryID = &categoryID
		}
	}
	if upd.Image != nil {
		product.Image = *upd.Image
	}
	if upd.IsActive != nil {
		product.IsActive = *upd.IsActive
	}

	if err := s.validateProduct(ctx, product); err != nil {
		return nil, err
	}
	if err := s.products.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, s.logger, models.AnalyticsNotification())
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	notify(ctx, s.notifier, s.logger, models.AnalyticsNotification())
	return nil
}

func (s *CatalogService) validateProduct(ctx context.Context, p *models.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", models.ErrInvalidInput)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", models.ErrInvalidInput)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", models.ErrInvalidInput)
	}
	if p.CategoryID != nil {
		_, err := s.categories.GetCategoryByID(ctx, *p.CategoryID)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: category %s does not exist", models.ErrInvalidInput, *p.CategoryID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
