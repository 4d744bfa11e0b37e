package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPaidStampsAuditFields(t *testing.T) {
	admin := "admin-1"
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := &Order{
		OrderNumber:   "AAZ-2026-000001",
		PaymentStatus: PaymentStatusPendingReview,
		OrderStatus:   OrderStatusPending,
	}

	err := order.MarkPaid(ConfirmPayment{VerifiedBy: &admin, Notes: "cash received", PaidAt: paidAt})
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, OrderStatusProcessing, order.OrderStatus)
	assert.Equal(t, paidAt, *order.PaidAt)
	assert.Equal(t, paidAt, *order.VerifiedAt)
	assert.Equal(t, "admin-1", *order.VerifiedBy)
	assert.Equal(t, "cash received", *order.PaymentNotes)
}

func TestMarkPaidRejectsPaidAndCancelled(t *testing.T) {
	paid := &Order{PaymentStatus: PaymentStatusPaid, OrderStatus: OrderStatusProcessing}
	assert.ErrorIs(t, paid.MarkPaid(ConfirmPayment{}), ErrInvalidState)

	cancelled := &Order{PaymentStatus: PaymentStatusFailed, OrderStatus: OrderStatusCancelled}
	assert.ErrorIs(t, cancelled.MarkPaid(ConfirmPayment{}), ErrInvalidState)
}

func TestMarkPaidKeepsLaterFulfilmentStatus(t *testing.T) {
	order := &Order{PaymentStatus: PaymentStatusPending, OrderStatus: OrderStatusShipped}
	require.NoError(t, order.MarkPaid(ConfirmPayment{PaymentIntentID: "pi_1"}))

	assert.Equal(t, OrderStatusShipped, order.OrderStatus)
	assert.Equal(t, "pi_1", *order.PaymentIntentID)
	assert.Nil(t, order.VerifiedBy)
}

func TestFailedPaymentCanBeResubmitted(t *testing.T) {
	order := &Order{PaymentStatus: PaymentStatusPendingReview, OrderStatus: OrderStatusPending}

	require.NoError(t, order.MarkPaymentFailed("blurry screenshot", nil, time.Now()))
	assert.Equal(t, PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, OrderStatusPending, order.OrderStatus)
	assert.Equal(t, "blurry screenshot", *order.FailureReason)

	require.NoError(t, order.MarkAwaitingConfirmation())
	assert.Equal(t, PaymentStatusPendingReview, order.PaymentStatus)
	assert.Nil(t, order.FailureReason)
}

func TestRefundOnlyFromPaid(t *testing.T) {
	order := &Order{PaymentStatus: PaymentStatusPending}
	assert.ErrorIs(t, order.MarkRefunded(""), ErrInvalidState)

	order.PaymentStatus = PaymentStatusPaid
	require.NoError(t, order.MarkRefunded("returned"))
	assert.Equal(t, PaymentStatusRefunded, order.PaymentStatus)
}

func TestTransitionToDeliveredStampsTime(t *testing.T) {
	at := time.Now()
	order := &Order{OrderStatus: OrderStatusShipped}

	require.NoError(t, order.TransitionTo(OrderStatusDelivered, at))
	assert.Equal(t, at, *order.DeliveredAt)

	assert.ErrorIs(t, order.TransitionTo(OrderStatusPending, at), ErrInvalidState)
	assert.ErrorIs(t, order.TransitionTo("Processing", at), ErrInvalidInput)
}

func TestOwnedBy(t *testing.T) {
	owner := "user-1"
	order := &Order{UserID: &owner}

	assert.True(t, order.OwnedBy("user-1"))
	assert.False(t, order.OwnedBy("user-2"))
	assert.False(t, (&Order{}).OwnedBy(""))
}

func TestCanAccessOrder(t *testing.T) {
	owner := "user-1"
	owned := &Order{UserID: &owner}
	guest := &Order{}

	admin := &Principal{ID: "admin-1", IsAdmin: true}
	customer := &Principal{ID: "user-1"}
	stranger := &Principal{ID: "user-2"}

	assert.True(t, admin.CanAccessOrder(owned))
	assert.True(t, customer.CanAccessOrder(owned))
	assert.False(t, stranger.CanAccessOrder(owned))

	var anonymous *Principal
	assert.False(t, anonymous.CanAccessOrder(owned))
	assert.True(t, anonymous.CanAccessOrder(guest))
	assert.True(t, stranger.CanAccessOrder(guest))

	assert.Equal(t, RoomAdmins, admin.Room())
	assert.Equal(t, "user-user-1", customer.Room())
}
