package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderCounterName = "order"

// OrderOptions configures order numbering and dashboard thresholds
type OrderOptions struct {
	NumberPrefix      string
	LowStockThreshold int
}

// OrderService handles order business logic
type OrderService struct {
	orders   OrderRepository
	products ProductRepository
	notifier Notifier
	opts     OrderOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderRepository, products ProductRepository, notifier Notifier, opts OrderOptions) *OrderService {
	return &OrderService{
		orders:   orders,
		products: products,
		notifier: notifier,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerName   string               `json:"customer_name" binding:"required"`
	Email          string               `json:"email" binding:"required,email"`
	Phone          string               `json:"phone" binding:"required"`
	Address        string               `json:"address" binding:"required"`
	City           string               `json:"city" binding:"required"`
	Items          []OrderItemRequest   `json:"items" binding:"required,min=1,dive"`
	PaymentMethod  models.PaymentMethod `json:"payment_method" binding:"required"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order. Prices always come from the catalog.
type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// OrderStatusView is the lightweight status of an order
type OrderStatusView struct {
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	OrderStatus   models.OrderStatus   `json:"order_status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// replay returns the order already stored under an idempotency key, but only
// to the principal that placed it. Anyone else reusing the key gets a conflict.
func (s *OrderService) replay(existing *models.Order, key string, p *models.Principal) (*models.Order, error) {
	stored := ""
	if existing.UserID != nil {
		stored = *existing.UserID
	}
	if stored != orderOwner(p) || !p.CanAccessOrder(existing) {
		s.logger.Warn("Idempotency key reused by another principal",
			zap.String("idempotency_key", key),
			zap.String("order_id", existing.ID))
		return nil, fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", existing.ID))
	return existing, nil
}

// orderOwner is the user ID an order placed by p is stored under. Admin and
// guest orders have none.
func orderOwner(p *models.Principal) string {
	if p != nil && !p.IsAdmin {
		return p.ID
	}
	return ""
}

// CreateOrder prices the cart from the catalog, assigns the next order
// number and stores the order. No stock is reserved.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, p *models.Principal) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			return s.replay(existing, req.IdempotencyKey, p)
		}
	}

	if err := validateContact(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	now := s.now()
	seq, err := s.orders.NextOrderSequence(ctx, orderCounterName, now.Year())
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	order := &models.Order{
		OrderNumber:   formatOrderNumber(s.opts.NumberPrefix, now.Year(), seq),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Email:         normalizeEmail(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		City:          strings.TrimSpace(req.City),
		TotalAmount:   calculateTotal(items),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentStatusPending,
		OrderStatus:   models.OrderStatusPending,
		Items:         items,
	}
	if owner := orderOwner(p); owner != "" {
		order.UserID = &owner
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, models.ErrConflict) && order.IdempotencyKey != nil {
			if existing, getErr := s.orders.GetOrderByIdempotencyKey(ctx, *order.IdempotencyKey); getErr == nil && existing != nil {
				return s.replay(existing, *order.IdempotencyKey, p)
			}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	n := models.OrderNotification(models.EventTypeNewOrder, models.RoomAdmins, order)
	n.Message = fmt.Sprintf("New order %s from %s", order.OrderNumber, order.CustomerName)
	notify(ctx, s.notifier, s.logger, n)
	notify(ctx, s.notifier, s.logger, models.AnalyticsNotification())

	return order, nil
}

func validateContact(req *CreateOrderRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.Phone) == "" ||
		strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" {
		return fmt.Errorf("%w: name, phone, address and city are required", models.ErrInvalidInput)
	}
	if !strings.Contains(req.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", models.ErrInvalidInput)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", models.ErrInvalidInput, req.PaymentMethod)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", models.ErrInvalidInput)
	}
	return nil
}

// priceItems merges duplicate lines and snapshots the current catalog price
func (s *OrderService) priceItems(ctx context.Context, reqItems []OrderItemRequest) ([]models.OrderItem, error) {
	merged := make([]OrderItemRequest, 0, len(reqItems))
	index := make(map[string]int, len(reqItems))
	for _, item := range reqItems {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidInput)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	ids := make([]string, len(merged))
	for i, item := range merged {
		ids[i] = item.ProductID
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	items := make([]models.OrderItem, 0, len(merged))
	for _, item := range merged {
		product, ok := productMap[item.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: product %s is not available", models.ErrInvalidInput, item.ProductID)
		}
		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return items, nil
}

// calculateTotal calculates the total amount for an order
func calculateTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func formatOrderNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// GetOrder returns an order the caller may see
func (s *OrderService) GetOrder(ctx context.Context, id string, p *models.Principal) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, fmt.Errorf("%w: order %s", models.ErrForbidden, id)
	}
	return order, nil
}

// GetOrderStatus returns the status summary of an order the caller may see
func (s *OrderService) GetOrderStatus(ctx context.Context, id string, p *models.Principal) (*OrderStatusView, error) {
	order, err := s.GetOrder(ctx, id, p)
	if err != nil {
		return nil, err
	}
	return &OrderStatusView{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		FailureReason: order.FailureReason,
		PaidAt:        order.PaidAt,
		UpdatedAt:     order.UpdatedAt,
	}, nil
}

// ListMyOrders returns the caller's orders, newest first
func (s *OrderService) ListMyOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListOrders(ctx, models.OrderFilter{UserID: userID})
}

// ListOrders returns all orders for admins
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if filter.OrderStatus != "" && !filter.OrderStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", models.ErrInvalidInput, filter.OrderStatus)
	}
	return s.orders.ListOrders(ctx, filter)
}

// UpdateStatus moves an order along its fulfilment lifecycle
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.orders.MutateOrder(ctx, id, func(o *models.Order) error {
		return o.TransitionTo(status, s.now())
	})
	if err != nil {
		return nil, err
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("status", string(status)))

	notifyOrderChange(ctx, s.notifier, s.logger, order)
	return order, nil
}

// DashboardStats returns the admin overview figures
func (s *OrderService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	return s.orders.GetDashboardStats(ctx, s.opts.LowStockThreshold)
}

// notifyOrderChange tells the owner and the admins that an order changed
func notifyOrderChange(ctx context.Context, notifier Notifier, logger *zap.Logger, order *models.Order) {
	if order.UserID != nil {
		notify(ctx, notifier, logger,
			models.OrderNotification(models.EventTypeOrderStatusUpdate, models.UserRoom(*order.UserID), order))
	}
	notify(ctx, notifier, logger,
		models.OrderNotification(models.EventTypeOrderStatusUpdate, models.RoomAdmins, order))
	notify(ctx, notifier, logger, models.AnalyticsNotification())
}
