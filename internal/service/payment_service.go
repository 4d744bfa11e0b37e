package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"medstore/internal/models"
	"medstore/internal/util"

	"go.uber.org/zap"
)

var bankTransferInstructions = []string{
	"1. Transfer the exact order amount to the account above",
	"2. Take a screenshot of the payment confirmation",
	"3. Upload the screenshot on the order page",
	"4. Our team will verify and confirm your order within 24 hours",
	"5. You can also confirm your order via WhatsApp for faster processing",
}

// PaymentOptions configures the manual payment flow
type PaymentOptions struct {
	Bank           models.BankDetails
	WhatsAppNumber string
}

// PaymentService handles cash-on-delivery and bank transfer payments that
// an admin confirms by hand
type PaymentService struct {
	orders   OrderRepository
	cache    ProductCache
	notifier Notifier
	opts     PaymentOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new manual payment service
func NewPaymentService(orders OrderRepository, cache ProductCache, notifier Notifier, opts PaymentOptions) *PaymentService {
	if cache == nil {
		cache = nopCache{}
	}
	if len(opts.Bank.Instructions) == 0 {
		opts.Bank.Instructions = bankTransferInstructions
	}
	return &PaymentService{
		orders:   orders,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// ProofUpload describes a stored payment proof file
type ProofUpload struct {
	Filename      string
	URL           string
	TransactionID string
}

// ProofDetails is the payment evidence of an order
type ProofDetails struct {
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	ProofURL        *string              `json:"proof_url,omitempty"`
	TransactionID   *string              `json:"transaction_id,omitempty"`
	ProofUploadedAt *time.Time           `json:"proof_uploaded_at,omitempty"`
	Verified        bool                 `json:"verified"`
	VerifiedAt      *time.Time           `json:"verified_at,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	FailureReason   *string              `json:"failure_reason,omitempty"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
}

// WhatsAppLink is a pre-filled chat link confirming an order
type WhatsAppLink struct {
	Link    string `json:"whatsapp_link"`
	Number  string `json:"whatsapp_number"`
	Message string `json:"message"`
}

// BankDetails returns the account customers transfer to
func (s *PaymentService) BankDetails() models.BankDetails {
	return s.opts.Bank
}

// UploadProof attaches a bank transfer proof and queues the order for review.
// It also returns the filename of the proof this one replaced, if any, so the
// caller can discard the old file.
func (s *PaymentService) UploadProof(ctx context.Context, orderID string, p *models.Principal, proof ProofUpload) (*models.Order, string, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.UploadProof")
	defer span.End()

	var replaced string
	order, err := s.orders.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if !p.CanAccessOrder(o) {
			return fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
		}
		if o.PaymentMethod != models.PaymentMethodBankTransfer {
			return fmt.Errorf("%w: payment proof is only accepted for bank transfers", models.ErrInvalidInput)
		}
		if err := o.MarkAwaitingConfirmation(); err != nil {
			return err
		}

		if o.ProofFilename != nil && *o.ProofFilename != proof.Filename {
			replaced = *o.ProofFilename
		}
		now := s.now()
		o.ProofFilename = &proof.Filename
		o.ProofURL = &proof.URL
		o.ProofUploadedAt = &now
		if proof.TransactionID != "" {
			txID := proof.TransactionID
			o.TransactionID = &txID
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	util.PaymentProofsUploadedTotal.Inc()
	s.logger.Info("Payment proof uploaded",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	n := models.OrderNotification(models.EventTypeOrderStatusUpdate, models.RoomAdmins, order)
	n.Message = fmt.Sprintf("Payment proof uploaded for order %s", order.OrderNumber)
	notify(ctx, s.notifier, s.logger, n)

	return order, replaced, nil
}

// GetProof returns the payment evidence of an order
func (s *PaymentService) GetProof(ctx context.Context, orderID string, p *models.Principal) (*ProofDetails, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
	}

	return &ProofDetails{
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		ProofURL:        order.ProofURL,
		TransactionID:   order.TransactionID,
		ProofUploadedAt: order.ProofUploadedAt,
		Verified:        order.PaymentStatus == models.PaymentStatusPaid && order.VerifiedBy != nil,
		VerifiedAt:      order.VerifiedAt,
		Notes:           order.PaymentNotes,
		FailureReason:   order.FailureReason,
		PaidAt:          order.PaidAt,
	}, nil
}

// VerifyPayment records an admin decision on a cash or bank transfer payment.
// Approval decrements stock and marks the order paid in one unit; rejection
// leaves the order open for a new proof.
func (s *PaymentService) VerifyPayment(ctx context.Context, orderID string, admin *models.Principal, approved bool, notes string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	current, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.PaymentMethod == models.PaymentMethodCard {
		return nil, fmt.Errorf("%w: card payments are confirmed by the payment provider", models.ErrInvalidInput)
	}
	if current.PaymentStatus == models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: order already paid", models.ErrInvalidState)
	}

	var order *models.Order
	if approved {
		order, err = s.approve(ctx, current, admin, notes)
	} else {
		order, err = s.reject(ctx, current, admin, notes)
	}
	util.RecordError(span, err)
	return order, err
}

func (s *PaymentService) approve(ctx context.Context, current *models.Order, admin *models.Principal, notes string) (*models.Order, error) {
	if notes == "" {
		notes = "Payment verified and stock deducted."
	}
	adminID := admin.ID

	start := time.Now()
	order, applied, err := s.orders.ConfirmPayment(ctx, current.ID, models.ConfirmPayment{
		VerifiedBy: &adminID,
		Notes:      notes,
		PaidAt:     s.now(),
	})
	util.PaymentConfirmLatency.Observe(time.Since(start).Seconds())
	if errors.Is(err, models.ErrInsufficientStock) {
		util.StockShortagesTotal.Inc()
		s.logger.Warn("Payment approval refused for insufficient stock",
			zap.String("order_id", current.ID), zap.Error(err))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: order already paid", models.ErrInvalidState)
	}

	util.PaymentsConfirmedTotal.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.cache.InvalidateProducts(ctx, models.ItemProductIDs(order.Items)...)
	s.logger.Info("Payment approved",
		zap.String("order_id", order.ID),
		zap.String("admin_id", admin.ID))

	s.notifyDecision(ctx, models.EventTypePaymentApproved, order, "")
	return order, nil
}

func (s *PaymentService) reject(ctx context.Context, current *models.Order, admin *models.Principal, notes string) (*models.Order, error) {
	reason := notes
	if reason == "" {
		reason = "Payment proof rejected."
	}
	adminID := admin.ID

	order, err := s.orders.MutateOrder(ctx, current.ID, func(o *models.Order) error {
		if err := o.MarkPaymentFailed(reason, &adminID, s.now()); err != nil {
			return err
		}
		o.PaymentNotes = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PaymentsRejectedTotal.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.logger.Info("Payment rejected",
		zap.String("order_id", order.ID),
		zap.String("admin_id", admin.ID))

	s.notifyDecision(ctx, models.EventTypePaymentRejected, order, reason)
	return order, nil
}

// Refund marks a paid order refunded. Stock is not returned automatically.
func (s *PaymentService) Refund(ctx context.Context, orderID, notes string) (*models.Order, error) {
	order, err := s.orders.MutateOrder(ctx, orderID, func(o *models.Order) error {
		return o.MarkRefunded(notes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment refunded", zap.String("order_id", order.ID))
	notifyOrderChange(ctx, s.notifier, s.logger, order)
	return order, nil
}

// WhatsAppLink builds a chat link carrying the order summary
func (s *PaymentService) WhatsAppLink(ctx context.Context, orderID string, p *models.Principal) (*WhatsAppLink, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
	}

	message := whatsAppMessage(order)
	encoded := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return &WhatsAppLink{
		Link:    fmt.Sprintf("https://wa.me/%s?text=%s", s.opts.WhatsAppNumber, encoded),
		Number:  s.opts.WhatsAppNumber,
		Message: message,
	}, nil
}

func whatsAppMessage(order *models.Order) string {
	var b strings.Builder
	b.WriteString("*New Order Confirmation*\n\n")
	fmt.Fprintf(&b, "Order Number: %s\n", order.OrderNumber)
	fmt.Fprintf(&b, "Customer: %s\n", order.CustomerName)
	fmt.Fprintf(&b, "Phone: %s\n", order.Phone)
	fmt.Fprintf(&b, "Email: %s\n\n", order.Email)
	fmt.Fprintf(&b, "*Delivery Address:*\n%s, %s\n\n", order.Address, order.City)
	b.WriteString("*Order Items:*\n")
	for i, item := range order.Items {
		fmt.Fprintf(&b, "%d. %s x %d = Rs. %s\n", i+1, item.ProductName, item.Quantity, item.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "\n*Total Amount: Rs. %s*\n", order.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "Payment Method: %s\n\n", paymentMethodLabel(order.PaymentMethod))

	if order.PaymentMethod == models.PaymentMethodBankTransfer {
		b.WriteString("I have transferred the payment. ")
		if order.TransactionID != nil {
			fmt.Fprintf(&b, "Transaction ID: %s\n", *order.TransactionID)
		}
	}
	b.WriteString("Please confirm my order.")
	return b.String()
}

func paymentMethodLabel(m models.PaymentMethod) string {
	switch m {
	case models.PaymentMethodCOD:
		return "Cash on Delivery"
	case models.PaymentMethodBankTransfer:
		return "Bank Transfer"
	case models.PaymentMethodCard:
		return "Card"
	}
	return string(m)
}

// ConfirmWhatsApp records that the customer confirmed the order over WhatsApp
func (s *PaymentService) ConfirmWhatsApp(ctx context.Context, orderID string, p *models.Principal) (*models.Order, error) {
	return s.orders.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if !p.CanAccessOrder(o) {
			return fmt.Errorf("%w: order %s", models.ErrForbidden, orderID)
		}
		now := s.now()
		o.WhatsappConfirmed = true
		o.WhatsappConfirmedAt = &now
		return nil
	})
}

func (s *PaymentService) notifyDecision(ctx context.Context, eventType string, order *models.Order, reason string) {
	if order.UserID != nil {
		n := models.OrderNotification(eventType, models.UserRoom(*order.UserID), order)
		n.Reason = reason
		notify(ctx, s.notifier, s.logger, n)
	}
	notifyOrderChange(ctx, s.notifier, s.logger, order)
}
