package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a storefront customer account
type User struct {
	ID                    string     `db:"id" json:"id"`
	Name                  string     `db:"name" json:"name"`
	Email                 string     `db:"email" json:"email"`
	PasswordHash          string     `db:"password_hash" json:"-"`
	Phone                 string     `db:"phone" json:"phone"`
	Address               string     `db:"address" json:"address"`
	City                  string     `db:"city" json:"city"`
	IsVerified            bool       `db:"is_verified" json:"is_verified"`
	SecurityQuestion      string     `db:"security_question" json:"security_question"`
	SecurityAnswerHash    string     `db:"security_answer_hash" json:"-"`
	VerificationTokenHash *string    `db:"verification_token_hash" json:"-"`
	VerificationExpiresAt *time.Time `db:"verification_expires_at" json:"-"`
	ResetTokenHash        *string    `db:"reset_token_hash" json:"-"`
	ResetExpiresAt        *time.Time `db:"reset_expires_at" json:"-"`
	AccountStatus         string     `db:"account_status" json:"account_status"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Admin is a back-office principal, stored apart from users
type Admin struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Category groups products in the catalog
type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Image       string    `db:"image" json:"image"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	CategoryID  *string         `db:"category_id" json:"category_id,omitempty"`
	Image       string          `db:"image" json:"image"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order. UserID is nil for guest checkouts.
type Order struct {
	ID                  string          `db:"id" json:"id"`
	OrderNumber         string          `db:"order_number" json:"order_number"`
	UserID              *string         `db:"user_id" json:"user_id,omitempty"`
	CustomerName        string          `db:"customer_name" json:"customer_name"`
	Email               string          `db:"email" json:"email"`
	Phone               string          `db:"phone" json:"phone"`
	Address             string          `db:"address" json:"address"`
	City                string          `db:"city" json:"city"`
	TotalAmount         decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentMethod       PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentStatus       PaymentStatus   `db:"payment_status" json:"payment_status"`
	OrderStatus         OrderStatus     `db:"order_status" json:"order_status"`
	ProofFilename       *string         `db:"proof_filename" json:"proof_filename,omitempty"`
	ProofURL            *string         `db:"proof_url" json:"proof_url,omitempty"`
	ProofUploadedAt     *time.Time      `db:"proof_uploaded_at" json:"proof_uploaded_at,omitempty"`
	TransactionID       *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	PaymentIntentID     *string         `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	VerifiedBy          *string         `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt          *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
	PaymentNotes        *string         `db:"payment_notes" json:"payment_notes,omitempty"`
	FailureReason       *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	PaidAt              *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	DeliveredAt         *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	WhatsappConfirmed   bool            `db:"whatsapp_confirmed" json:"whatsapp_confirmed"`
	WhatsappConfirmedAt *time.Time      `db:"whatsapp_confirmed_at" json:"whatsapp_confirmed_at,omitempty"`
	IdempotencyKey      *string         `db:"idempotency_key" json:"-"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// OwnedBy reports whether the order belongs to the given user.
// Guest orders (no owner) are owned by nobody.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != nil && userID != "" && *o.UserID == userID
}

// OrderItem is a line of an order with the unit price captured at checkout
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// LineTotal returns quantity * unit price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Review is a product rating, one per user and product
type Review struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	UserName  string    `db:"user_name" json:"user_name"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReviewStats aggregates ratings for a product
type ReviewStats struct {
	AverageRating float64 `db:"average_rating" json:"average_rating"`
	TotalReviews  int     `db:"total_reviews" json:"total_reviews"`
}

// WishlistItem is a saved product with a summary of its catalog entry
type WishlistItem struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	ProductPrice decimal.Decimal `db:"product_price" json:"product_price"`
	ProductImage string          `db:"product_image" json:"product_image"`
	ProductStock int             `db:"product_stock" json:"product_stock"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Complaint is a contact-form submission handled by admins
type Complaint struct {
	ID        string          `db:"id" json:"id"`
	UserID    *string         `db:"user_id" json:"user_id,omitempty"`
	Name      string          `db:"name" json:"name"`
	Email     string          `db:"email" json:"email"`
	Phone     string          `db:"phone" json:"phone"`
	Subject   string          `db:"subject" json:"subject"`
	Message   string          `db:"message" json:"message"`
	Status    ComplaintStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// DashboardStats feeds the admin overview
type DashboardStats struct {
	TotalOrders      int             `db:"total_orders" json:"total_orders"`
	PendingOrders    int             `db:"pending_orders" json:"pending_orders"`
	AwaitingPayment  int             `db:"awaiting_payment" json:"awaiting_payment"`
	PaidOrders       int             `db:"paid_orders" json:"paid_orders"`
	Revenue          decimal.Decimal `db:"revenue" json:"revenue"`
	TotalProducts    int             `db:"total_products" json:"total_products"`
	LowStockProducts int             `db:"low_stock_products" json:"low_stock_products"`
	TotalUsers       int             `db:"total_users" json:"total_users"`
	OpenComplaints   int             `db:"open_complaints" json:"open_complaints"`
}

// Account statuses
const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusSuspended = "suspended"
)

// RoleAdmin is the only admin role
const RoleAdmin = "admin"

// ComplaintStatus is the handling state of a complaint
type ComplaintStatus string

const (
	ComplaintPending    ComplaintStatus = "pending"
	ComplaintInProgress ComplaintStatus = "in-progress"
	ComplaintResolved   ComplaintStatus = "resolved"
)

// Valid reports whether s is a known complaint status
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintPending, ComplaintInProgress, ComplaintResolved:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// ProductFilter narrows product listings
type ProductFilter struct {
	CategoryID      string
	Search          string
	IncludeInactive bool
}
