package service

import (
	"context"

	"medstore/internal/models"
	"medstore/internal/util"

	"go.uber.org/zap"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationToken(ctx context.Context, digest string) (*models.User, error)
	GetUserByResetToken(ctx context.Context, digest string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type AdminRepository interface {
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	GetAdminByID(ctx context.Context, id string) (*models.Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type ProductRepository interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type OrderRepository interface {
	NextOrderSequence(ctx context.Context, name string, year int) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	MutateOrder(ctx context.Context, id string, fn func(order *models.Order) error) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id string, params models.ConfirmPayment) (*models.Order, bool, error)
	GetDashboardStats(ctx context.Context, lowStockThreshold int) (*models.DashboardStats, error)
}

type EventRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type ReviewRepository interface {
	ListReviews(ctx context.Context, productID string) ([]models.Review, error)
	GetReviewStats(ctx context.Context, productID string) (*models.ReviewStats, error)
	CreateReview(ctx context.Context, review *models.Review) error
}

type WishlistRepository interface {
	ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error)
	AddWishlistItem(ctx context.Context, userID, productID string) error
	RemoveWishlistItem(ctx context.Context, userID, productID string) error
	IsInWishlist(ctx context.Context, userID, productID string) (bool, error)
}

type ComplaintRepository interface {
	CreateComplaint(ctx context.Context, complaint *models.Complaint) error
	ListComplaints(ctx context.Context) ([]models.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id string, status models.ComplaintStatus) (*models.Complaint, error)
	DeleteComplaint(ctx context.Context, id string) error
}

// Notifier delivers advisory realtime events
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// ProductCache drops cached products whose stock or details changed
type ProductCache interface {
	InvalidateProducts(ctx context.Context, ids ...string)
}

// Mailer sends transactional email
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PaymentGateway is the hosted card processor
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

type nopCache struct{}

func (nopCache) InvalidateProducts(context.Context, ...string) {}

// notify sends a notification without failing the caller
func notify(ctx context.Context, notifier Notifier, logger *zap.Logger, n *models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		logger.Warn("Failed to send notification",
			zap.String("event_type", n.EventType),
			zap.String("room", n.Room),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues(n.EventType).Inc()
}
