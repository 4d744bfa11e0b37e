package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// MetadataOrderID is the intent metadata key carrying our order id
const MetadataOrderID = "order_id"

// ErrNotConfigured is returned when no processor credentials are set
var ErrNotConfigured = errors.New("card payments are not configured")

// StripeGateway creates payment intents and verifies webhook deliveries
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway. An empty secret key leaves card
// payments disabled.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	g := &StripeGateway{
		webhookSecret: webhookSecret,
		logger:        util.GetLogger(),
	}
	if secretKey != "" {
		g.api = client.New(secretKey, nil)
	}
	return g
}

// Enabled reports whether intents can be created
func (g *StripeGateway) Enabled() bool {
	return g.api != nil
}

// CreatePaymentIntent asks the processor for a card charge
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "StripeGateway.CreatePaymentIntent")
	defer span.End()

	if g.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("Order %s", req.OrderNumber)),
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)
	params.AddMetadata("customer_name", req.CustomerName)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("Failed to create payment intent",
			zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, fmt.Errorf("stripe: %w", err)
	}

	return &models.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ParseWebhook checks the Stripe-Signature header and extracts the payment
// intent the event is about
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, err
	}

	out := &models.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	switch out.Type {
	case models.WebhookPaymentSucceeded, models.WebhookPaymentFailed, models.WebhookPaymentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		out.OrderID = pi.Metadata[MetadataOrderID]
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}
