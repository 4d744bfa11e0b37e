package worker

import (
	"context"
	"errors"

	"medstore/internal/broker"
	"medstore/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker relays notifications published by any instance to the
// websocket clients connected to this one
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
	done         chan struct{}
}

// NewNotificationWorker creates a worker delivering to local
func NewNotificationWorker(consumer *broker.Consumer, local broker.Notifier) *NotificationWorker {
	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(local),
		logger:       util.GetLogger(),
		done:         make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or the consumer is closed
func (w *NotificationWorker) Start(ctx context.Context) error {
	defer close(w.done)
	w.logger.Info("Starting notification worker")

	err := w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop closes the consumer and waits for Start to return
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping notification worker")
	err := w.consumer.Close()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
