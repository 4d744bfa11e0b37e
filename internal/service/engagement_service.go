package service

import (
	"context"
	"fmt"
	"strings"

	"medstore/internal/models"
	"medstore/internal/util"

	"go.uber.org/zap"
)

// ReviewService handles product ratings
type ReviewService struct {
	reviews  ReviewRepository
	products ProductRepository
	logger   *zap.Logger
}

func NewReviewService(reviews ReviewRepository, products ProductRepository) *ReviewService {
	return &ReviewService{reviews: reviews, products: products, logger: util.GetLogger()}
}

type ReviewInput struct {
	ProductID string `json:"product_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required,min=1,max=5"`
	Comment   string `json:"comment"`
}

func (s *ReviewService) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	return s.reviews.ListReviews(ctx, productID)
}

func (s *ReviewService) Stats(ctx context.Context, productID string) (*models.ReviewStats, error) {
	return s.reviews.GetReviewStats(ctx, productID)
}

// AddReview stores a rating. One review per user and product.
func (s *ReviewService) AddReview(ctx context.Context, p *models.Principal, in ReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", models.ErrInvalidInput)
	}
	if _, err := s.products.GetProductByID(ctx, in.ProductID); err != nil {
		return nil, err
	}

	review := &models.Review{
		ProductID: in.ProductID,
		UserID:    p.ID,
		UserName:  p.Name,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// WishlistService handles saved products
type WishlistService struct {
	wishlist WishlistRepository
	products ProductRepository
}

func NewWishlistService(wishlist WishlistRepository, products ProductRepository) *WishlistService {
	return &WishlistService{wishlist: wishlist, products: products}
}

func (s *WishlistService) List(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	return s.wishlist.ListWishlist(ctx, userID)
}

func (s *WishlistService) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetProductByID(ctx, productID); err != nil {
		return err
	}
	return s.wishlist.AddWishlistItem(ctx, userID, productID)
}

func (s *WishlistService) Remove(ctx context.Context, userID, productID string) error {
	return s.wishlist.RemoveWishlistItem(ctx, userID, productID)
}

func (s *WishlistService) Contains(ctx context.Context, userID, productID string) (bool, error) {
	return s.wishlist.IsInWishlist(ctx, userID, productID)
}

// ComplaintService handles contact-form submissions
type ComplaintService struct {
	complaints ComplaintRepository
	logger     *zap.Logger
}

func NewComplaintService(complaints ComplaintRepository) *ComplaintService {
	return &ComplaintService{complaints: complaints, logger: util.GetLogger()}
}

type ComplaintInput struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Submit stores a complaint, linked to the caller when signed in
func (s *ComplaintService) Submit(ctx context.Context, p *models.Principal, in ComplaintInput) (*models.Complaint, error) {
	complaint := &models.Complaint{
		Name:    strings.TrimSpace(in.Name),
		Email:   normalizeEmail(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
		Status:  models.ComplaintPending,
	}
	if complaint.Name == "" || complaint.Subject == "" || complaint.Message == "" || !strings.Contains(complaint.Email, "@") {
		return nil, fmt.Errorf("%w: name, email, subject and message are required", models.ErrInvalidInput)
	}
	if p != nil && !p.IsAdmin {
		userID := p.ID
		complaint.UserID = &userID
	}

	if err := s.complaints.CreateComplaint(ctx, complaint); err != nil {
		return nil, err
	}
	s.logger.Info("Complaint submitted", zap.String("complaint_id", complaint.ID))
	return complaint, nil
}

func (s *ComplaintService) List(ctx context.Context) ([]models.Complaint, error) {
	return s.complaints.ListComplaints(ctx)
}

func (s *ComplaintService) UpdateStatus(ctx context.Context, id string, status models.ComplaintStatus) (*models.Complaint, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown complaint status %q", models.ErrInvalidInput, status)
	}
	return s.complaints.UpdateComplaintStatus(ctx, id, status)
}

func (s *ComplaintService) Delete(ctx context.Context, id string) error {
	return s.complaints.DeleteComplaint(ctx, id)
}
