package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notifier receives notifications decoded from the bus
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// EventPublisher puts notifications on the bus so every instance can
// deliver them to its own websocket clients
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Notify publishes n keyed by room, so a room's events stay ordered
func (ep *EventPublisher) Notify(ctx context.Context, n *models.Notification) error {
	key := n.Room
	if key == "" {
		key = "broadcast"
	}
	return ep.producer.PublishEvent(ctx, key, n)
}

// EventHandler decodes bus messages and hands them to a local notifier
type EventHandler struct {
	local  Notifier
	logger *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(local Notifier) *EventHandler {
	return &EventHandler{local: local, logger: util.GetLogger()}
}

// HandleMessage routes a message to the local notifier. Malformed
// messages are dropped so they are not redelivered forever.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		eh.logger.Warn("Dropping malformed notification",
			zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	if n.EventType == "" {
		eh.logger.Warn("Dropping notification without type", zap.String("event_id", n.EventID))
		return nil
	}

	eh.logger.Debug("Handling notification",
		zap.String("type", n.EventType),
		zap.String("id", n.EventID),
		zap.String("room", n.Room))

	if err := eh.local.Notify(ctx, &n); err != nil {
		return fmt.Errorf("failed to deliver notification %s: %w", n.EventID, err)
	}
	return nil
}
