package models

import "time"

// Provider webhook event types handled by the card flow
const (
	WebhookPaymentSucceeded = "payment_intent.succeeded"
	WebhookPaymentFailed    = "payment_intent.payment_failed"
	WebhookPaymentCanceled  = "payment_intent.canceled"
)

// PaymentIntentRequest asks the provider for a card charge
type PaymentIntentRequest struct {
	OrderID        string
	OrderNumber    string
	AmountMinor    int64
	Currency       string
	CustomerName   string
	CustomerEmail  string
	IdempotencyKey string
}

// PaymentIntent is the provider-side charge handle
type PaymentIntent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}

// WebhookEvent is a verified provider callback
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	OrderID         string
	FailureMessage  string
}

// ConfirmPayment carries the audit data stamped on a confirmed order
type ConfirmPayment struct {
	VerifiedBy      *string
	Notes           string
	PaymentIntentID string
	PaidAt          time.Time
}

// BankDetails are shown to bank-transfer customers
type BankDetails struct {
	BankName      string   `json:"bank_name"`
	AccountTitle  string   `json:"account_title"`
	AccountNumber string   `json:"account_number"`
	IBAN          string   `json:"iban"`
	BranchCode    string   `json:"branch_code"`
	SwiftCode     string   `json:"swift_code"`
	Instructions  []string `json:"instructions"`
}
