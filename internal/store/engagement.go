package store

import (
	"context"
	"fmt"

	"medstore/internal/models"

	"github.com/google/uuid"
)

// ListReviews returns a product's reviews with reviewer names, newest first
func (s *Store) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews, `
		SELECT r.id, r.product_id, r.user_id, u.name AS user_name, r.rating, r.comment, r.created_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1
		ORDER BY r.created_at DESC`, productID)
	if err != nil {
		return nil, notFound(err, "product "+productID)
	}
	return reviews, nil
}

// GetReviewStats returns the average rating and review count of a product
func (s *Store) GetReviewStats(ctx context.Context, productID string) (*models.ReviewStats, error) {
	var stats models.ReviewStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COALESCE(AVG(rating), 0)::float8 AS average_rating, COUNT(*) AS total_reviews
		FROM reviews WHERE product_id = $1`, productID)
	if err != nil {
		return nil, notFound(err, "product "+productID)
	}
	return &stats, nil
}

// CreateReview inserts a review. A second review by the same user for the
// same product fails with models.ErrConflict.
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	err := s.db.GetContext(ctx, &review.CreatedAt, `
		INSERT INTO reviews (id, product_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		review.ID, review.ProductID, review.UserID, review.Rating, review.Comment)
	return mapWriteErr(err, "you have already reviewed this product")
}

// ListWishlist returns a user's saved products with their catalog summary
func (s *Store) ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT w.id, w.user_id, w.product_id, p.name AS product_name, p.price AS product_price,
			p.image AS product_image, p.stock AS product_stock, w.created_at
		FROM wishlist_items w
		JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return items, nil
}

// AddWishlistItem saves a product for a user
func (s *Store) AddWishlistItem(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, user_id, product_id) VALUES ($1, $2, $3)`,
		uuid.New().String(), userID, productID)
	return mapWriteErr(err, "product already in wishlist")
}

// RemoveWishlistItem deletes a saved product
func (s *Store) RemoveWishlistItem(ctx context.Context, userID, productID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	return expectOne(res, notFound(err, "wishlist item"), "wishlist item")
}

// IsInWishlist reports whether the user saved the product
func (s *Store) IsInWishlist(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wishlist_items WHERE user_id = $1 AND product_id = $2)",
		userID, productID)
	if err != nil {
		return false, notFound(err, "product "+productID)
	}
	return exists, nil
}

// CreateComplaint inserts a contact-form submission
func (s *Store) CreateComplaint(ctx context.Context, complaint *models.Complaint) error {
	if complaint.ID == "" {
		complaint.ID = uuid.New().String()
	}
	if complaint.Status == "" {
		complaint.Status = models.ComplaintPending
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO complaints (id, user_id, name, email, phone, subject, message, status)
		VALUES (:id, :user_id, :name, :email, :phone, :subject, :message, :status)`, complaint)
	return mapWriteErr(err, "complaint")
}

// ListComplaints returns complaints newest first
func (s *Store) ListComplaints(ctx context.Context) ([]models.Complaint, error) {
	complaints := []models.Complaint{}
	if err := s.db.SelectContext(ctx, &complaints, "SELECT * FROM complaints ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	return complaints, nil
}

// UpdateComplaintStatus changes the handling state of a complaint
func (s *Store) UpdateComplaintStatus(ctx context.Context, id string, status models.ComplaintStatus) (*models.Complaint, error) {
	var complaint models.Complaint
	err := s.db.GetContext(ctx, &complaint, `
		UPDATE complaints SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING *`, status, id)
	if err != nil {
		return nil, notFound(err, "complaint "+id)
	}
	return &complaint, nil
}

// DeleteComplaint removes a complaint
func (s *Store) DeleteComplaint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM complaints WHERE id = $1", id)
	return expectOne(res, notFound(err, "complaint "+id), "complaint "+id)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
