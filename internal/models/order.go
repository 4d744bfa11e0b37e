package models

import (
	"fmt"
	"time"
)

// InsufficientStockReason is recorded on card orders charged while stock ran out
const InsufficientStockReason = "insufficient stock"

// MarkPaid applies a confirmed payment to the order. Stock is not touched
// here; callers decrement it in the same unit of work.
func (o *Order) MarkPaid(p ConfirmPayment) error {
	if o.OrderStatus == OrderStatusCancelled {
		return fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, o.OrderNumber)
	}
	if !o.PaymentStatus.CanTransitionTo(PaymentStatusPaid) {
		return fmt.Errorf("%w: payment is %s", ErrInvalidState, o.PaymentStatus)
	}

	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	o.PaymentStatus = PaymentStatusPaid
	o.PaidAt = &paidAt
	o.FailureReason = nil
	if p.VerifiedBy != nil {
		o.VerifiedBy = p.VerifiedBy
		o.VerifiedAt = &paidAt
	}
	if p.Notes != "" {
		notes := p.Notes
		o.PaymentNotes = &notes
	}
	if p.PaymentIntentID != "" {
		id := p.PaymentIntentID
		o.PaymentIntentID = &id
	}
	if o.OrderStatus == OrderStatusPending {
		o.OrderStatus = OrderStatusProcessing
	}
	return nil
}

// MarkPaymentFailed records a rejected or failed payment
func (o *Order) MarkPaymentFailed(reason string, verifiedBy *string, at time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(PaymentStatusFailed) {
		return fmt.Errorf("%w: payment is %s", ErrInvalidState, o.PaymentStatus)
	}
	o.PaymentStatus = PaymentStatusFailed
	if reason != "" {
		o.FailureReason = &reason
	}
	if verifiedBy != nil {
		o.VerifiedBy = verifiedBy
		o.VerifiedAt = &at
	}
	return nil
}

// MarkAwaitingConfirmation moves the payment to PAYMENT_PENDING
func (o *Order) MarkAwaitingConfirmation() error {
	if !o.PaymentStatus.CanTransitionTo(PaymentStatusPendingReview) {
		return fmt.Errorf("%w: payment is %s", ErrInvalidState, o.PaymentStatus)
	}
	o.PaymentStatus = PaymentStatusPendingReview
	o.FailureReason = nil
	return nil
}

// MarkRefunded reverses a paid order
func (o *Order) MarkRefunded(notes string) error {
	if !o.PaymentStatus.CanTransitionTo(PaymentStatusRefunded) {
		return fmt.Errorf("%w: only paid orders can be refunded", ErrInvalidState)
	}
	o.PaymentStatus = PaymentStatusRefunded
	if notes != "" {
		o.PaymentNotes = &notes
	}
	return nil
}

// TransitionTo changes the fulfilment status
func (o *Order) TransitionTo(next OrderStatus, at time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, next)
	}
	if !o.OrderStatus.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidState, o.OrderStatus, next)
	}
	o.OrderStatus = next
	if next == OrderStatusDelivered {
		o.DeliveredAt = &at
	}
	return nil
}

// OrderFilter narrows order listings. Zero values match everything.
type OrderFilter struct {
	UserID        string
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}
