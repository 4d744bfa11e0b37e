package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to realtime clients
const (
	EventTypeNewOrder          = "newOrder"
	EventTypeOrderStatusUpdate = "orderStatusUpdate"
	EventTypePaymentApproved   = "paymentApproved"
	EventTypePaymentRejected   = "paymentRejected"
	EventTypeAnalyticsUpdate   = "analyticsUpdate"
)

// RoomAdmins receives back-office events
const RoomAdmins = "admins"

// UserRoom is the room a signed-in customer joins
func UserRoom(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// Notification is an advisory UI refresh event. An empty Room means
// every connected client.
type Notification struct {
	BaseEvent
	Room          string        `json:"room,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	OrderNumber   string        `json:"order_number,omitempty"`
	OrderStatus   OrderStatus   `json:"order_status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Message       string        `json:"message,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// OrderNotification builds an order-scoped notification for a room
func OrderNotification(eventType, room string, order *Order) *Notification {
	return &Notification{
		BaseEvent:     NewBaseEvent(eventType),
		Room:          room,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
	}
}

// AnalyticsNotification asks dashboards to refresh their figures
func AnalyticsNotification() *Notification {
	return &Notification{
		BaseEvent: NewBaseEvent(EventTypeAnalyticsUpdate),
		Room:      RoomAdmins,
	}
}
