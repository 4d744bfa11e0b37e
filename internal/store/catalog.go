package store

import (
	"context"
	"fmt"
	"strings"

	"medstore/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ListCategories returns all categories by name
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetCategoryByID retrieves a category by ID
func (s *Store) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := s.db.GetContext(ctx, &category, "SELECT * FROM categories WHERE id = $1", id); err != nil {
		return nil, notFound(err, "category "+id)
	}
	return &category, nil
}

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, name, description, image)
		VALUES (:id, :name, :description, :image)`, category)
	return mapWriteErr(err, "category name already exists")
}

// UpdateCategory writes back a category
func (s *Store) UpdateCategory(ctx context.Context, category *models.Category) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE categories SET name = :name, description = :description, image = :image, updated_at = NOW()
		WHERE id = :id`, category)
	return expectOne(res, mapWriteErr(err, "category name already exists"), "category "+category.ID)
}

// DeleteCategory removes a category. Its products become uncategorized.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	return expectOne(res, notFound(err, "category "+id), "category "+id)
}

// ListProducts returns products matching the filter, newest first
func (s *Store) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !filter.IncludeInactive {
		conds = append(conds, "is_active = TRUE")
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := "SELECT * FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, notFound(err, "products")
	}
	return products, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id); err != nil {
		return nil, notFound(err, "product "+id)
	}
	return &product, nil
}

// GetProductsByIDs retrieves the products that exist among ids
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE id = ANY($1::uuid[])", pq.Array(ids))
	if err != nil {
		return nil, mapWriteErr(err, "products")
	}
	return products, nil
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, category_id, image, is_active)
		VALUES (:id, :name, :description, :price, :stock, :category_id, :image, :is_active)`, product)
	return mapWriteErr(err, "product")
}

// UpdateProduct writes back a product
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products SET
			name = :name,
			description = :description,
			price = :price,
			stock = :stock,
			category_id = :category_id,
			image = :image,
			is_active = :is_active,
			updated_at = NOW()
		WHERE id = :id`, product)
	return expectOne(res, mapWriteErr(err, "product"), "product "+product.ID)
}

// DeleteProduct removes a product. Order lines keep their name and price snapshot.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	return expectOne(res, notFound(err, "product "+id), "product "+id)
}
