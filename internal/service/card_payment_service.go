package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// minChargeMinor is the smallest amount the processor accepts, in minor units
const minChargeMinor = 50

// CardPaymentOptions configures the hosted card flow
type CardPaymentOptions struct {
	PublishableKey string
	Currency       string
}

// CardPaymentService creates card payment intents and applies the
// processor's signed webhook events, which are the only source of truth
// for card payments
type CardPaymentService struct {
	orders   OrderRepository
	events   EventRepository
	gateway  PaymentGateway
	cache    ProductCache
	notifier Notifier
	opts     CardPaymentOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewCardPaymentService creates a new card payment service
func NewCardPaymentService(
	orders OrderRepository,
	events EventRepository,
	gateway PaymentGateway,
	cache ProductCache,
	notifier Notifier,
	opts CardPaymentOptions,
) *CardPaymentService {
	if cache == nil {
		cache = nopCache{}
	}
	return &CardPaymentService{
		orders:   orders,
		events:   events,
		gateway:  gateway,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CardPaymentStatus is the card payment state of an order
type CardPaymentStatus struct {
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	OrderStatus   models.OrderStatus   `json:"order_status"`
	Amount        decimal.Decimal      `json:"amount"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
}

// PublishableKey returns the key the browser needs to confirm a card payment
func (s *CardPaymentService) PublishableKey() string {
	return s.opts.PublishableKey
}

// amountMinor converts a decimal amount to minor currency units
func amountMinor(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// intentIdempotencyKey is stable for an order so retried intent creation
// never produces a second charge
func intentIdempotencyKey(order *models.Order) string {
	raw := fmt.Sprintf("%s-%d-%s", order.ID, order.CreatedAt.UnixNano(), order.TotalAmount.StringFixed(2))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreatePaymentIntent starts a card charge for the stored order total
func (s *CardPaymentService) CreatePaymentIntent(ctx context.Context, orderID string, p *models.Principal) (*models.PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "CardPaymentService.CreatePaymentIntent")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
	}
	if order.PaymentMethod != models.PaymentMethodCard {
		return nil, fmt.Errorf("%w: order is not a card order", models.ErrInvalidInput)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: order already paid", models.ErrInvalidState)
	}
	if order.OrderStatus == models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order is cancelled", models.ErrInvalidState)
	}
	if order.PaymentIntentID != nil {
		return nil, fmt.Errorf("%w: payment already initiated for this order", models.ErrConflict)
	}

	amount := amountMinor(order.TotalAmount)
	if amount < minChargeMinor {
		return nil, fmt.Errorf("%w: order total is below the minimum card charge", models.ErrInvalidInput)
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, models.PaymentIntentRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		AmountMinor:    amount,
		Currency:       s.opts.Currency,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.Email,
		IdempotencyKey: intentIdempotencyKey(order),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	_, err = s.orders.MutateOrder(ctx, order.ID, func(o *models.Order) error {
		if o.PaymentIntentID != nil {
			if *o.PaymentIntentID == intent.ID {
				return nil
			}
			return fmt.Errorf("%w: payment already initiated for this order", models.ErrConflict)
		}
		if err := o.MarkAwaitingConfirmation(); err != nil {
			return err
		}
		o.PaymentIntentID = &intent.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount_minor", amount))

	return intent, nil
}

// Status returns the card payment state of an order the caller may see
func (s *CardPaymentService) Status(ctx context.Context, orderID string, p *models.Principal) (*CardPaymentStatus, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
	}

	return &CardPaymentStatus{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		Amount:        order.TotalAmount,
		PaidAt:        order.PaidAt,
		FailureReason: order.FailureReason,
	}, nil
}

// isBusinessError reports errors that retrying the delivery would not fix
func isBusinessError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidState) ||
		errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrInsufficientStock)
}

// HandleWebhook verifies and applies a processor event. A bad signature
// returns models.ErrInvalidSignature before anything is read or written.
// Business failures are logged and swallowed so the processor stops
// retrying; infrastructure failures are returned so it retries.
func (s *CardPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "CardPaymentService.HandleWebhook")
	defer span.End()

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		util.RecordError(span, err)
		return fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}

	processed, err := s.events.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
		s.logger.Info("Event already processed, skipping", zap.String("event_id", event.ID))
		return nil
	}

	switch event.Type {
	case models.WebhookPaymentSucceeded:
		err = s.applySucceeded(ctx, event)
	case models.WebhookPaymentFailed:
		err = s.applyFailed(ctx, event, false)
	case models.WebhookPaymentCanceled:
		err = s.applyFailed(ctx, event, true)
	default:
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		s.logger.Debug("Unhandled webhook event type", zap.String("type", event.Type))
		return nil
	}

	outcome := "applied"
	if err != nil {
		if !isBusinessError(err) {
			util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
			util.RecordError(span, err)
			return err
		}
		outcome = "rejected"
		s.logger.Warn("Webhook event not applied",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err))
	}

	if err := s.events.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		s.logger.Error("Failed to mark event processed", zap.String("event_id", event.ID), zap.Error(err))
	}
	util.WebhookEventsTotal.WithLabelValues(event.Type, outcome).Inc()
	return nil
}

// findOrder locates the order of an event by intent id, falling back to
// the order id the intent carries in its metadata
func (s *CardPaymentService) findOrder(ctx context.Context, event *models.WebhookEvent) (*models.Order, error) {
	order, err := s.orders.GetOrderByPaymentIntentID(ctx, event.PaymentIntentID)
	if err == nil || !errors.Is(err, models.ErrNotFound) || event.OrderID == "" {
		return order, err
	}

	order, err = s.orders.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentIntentID != nil && *order.PaymentIntentID != event.PaymentIntentID {
		return nil, fmt.Errorf("%w: order %s is linked to another payment intent", models.ErrInvalidState, order.ID)
	}
	return order, nil
}

func (s *CardPaymentService) applySucceeded(ctx context.Context, event *models.WebhookEvent) error {
	order, err := s.findOrder(ctx, event)
	if err != nil {
		return err
	}

	start := time.Now()
	confirmed, applied, err := s.orders.ConfirmPayment(ctx, order.ID, models.ConfirmPayment{
		PaymentIntentID: event.PaymentIntentID,
		PaidAt:          s.now(),
	})
	util.PaymentConfirmLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, models.ErrInsufficientStock) {
		s.recordShortage(ctx, order.ID, err)
		return err
	}
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("Order already paid, ignoring duplicate confirmation", zap.String("order_id", order.ID))
		return nil
	}

	util.PaymentsConfirmedTotal.WithLabelValues(string(confirmed.PaymentMethod)).Inc()
	s.cache.InvalidateProducts(ctx, models.ItemProductIDs(confirmed.Items)...)
	s.logger.Info("Card payment confirmed",
		zap.String("order_id", confirmed.ID),
		zap.String("payment_intent_id", event.PaymentIntentID))

	if confirmed.UserID != nil {
		notify(ctx, s.notifier, s.logger,
			models.OrderNotification(models.EventTypePaymentApproved, models.UserRoom(*confirmed.UserID), confirmed))
	}
	notifyOrderChange(ctx, s.notifier, s.logger, confirmed)
	return nil
}

// recordShortage flags a charged order whose stock ran out; an admin
// decides between restocking and refunding
func (s *CardPaymentService) recordShortage(ctx context.Context, orderID string, cause error) {
	util.StockShortagesTotal.Inc()
	s.logger.Error("Card payment succeeded but stock is insufficient",
		zap.String("order_id", orderID), zap.Error(cause))

	order, err := s.orders.MutateOrder(ctx, orderID, func(o *models.Order) error {
		reason := models.InsufficientStockReason
		o.FailureReason = &reason
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to flag stock shortage", zap.String("order_id", orderID), zap.Error(err))
		return
	}

	n := models.OrderNotification(models.EventTypeOrderStatusUpdate, models.RoomAdmins, order)
	n.Reason = models.InsufficientStockReason
	n.Message = fmt.Sprintf("Order %s was paid by card but stock is insufficient", order.OrderNumber)
	notify(ctx, s.notifier, s.logger, n)
}

func (s *CardPaymentService) applyFailed(ctx context.Context, event *models.WebhookEvent, canceled bool) error {
	order, err := s.findOrder(ctx, event)
	if err != nil {
		return err
	}

	reason := event.FailureMessage
	if reason == "" {
		reason = "card payment failed"
		if canceled {
			reason = "card payment canceled"
		}
	}

	var changed bool
	updated, err := s.orders.MutateOrder(ctx, order.ID, func(o *models.Order) error {
		changed = false
		if o.PaymentStatus == models.PaymentStatusPaid || o.PaymentStatus == models.PaymentStatusRefunded {
			return nil
		}
		if o.PaymentStatus != models.PaymentStatusFailed {
			if err := o.MarkPaymentFailed(reason, nil, s.now()); err != nil {
				return err
			}
		}
		if canceled && o.OrderStatus.CanTransitionTo(models.OrderStatusCancelled) {
			if err := o.TransitionTo(models.OrderStatusCancelled, s.now()); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("Ignoring failure event for settled order", zap.String("order_id", order.ID))
		return nil
	}

	util.PaymentsRejectedTotal.WithLabelValues(string(updated.PaymentMethod)).Inc()
	if updated.UserID != nil {
		n := models.OrderNotification(models.EventTypePaymentRejected, models.UserRoom(*updated.UserID), updated)
		n.Reason = reason
		notify(ctx, s.notifier, s.logger, n)
	}
	notifyOrderChange(ctx, s.notifier, s.logger, updated)
	return nil
}
