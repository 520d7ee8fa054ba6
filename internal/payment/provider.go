// Package payment talks to the external payment provider: checkout sessions and signed webhooks.
package payment

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned for webhook payloads that fail signature verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventType is a provider webhook event type.
type EventType string

const (
	EventCheckoutCompleted      EventType = "checkout.session.completed"
	EventAsyncPaymentSucceeded  EventType = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed     EventType = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired EventType = "checkout.session.expired"
)

// Session payment statuses as reported by the provider.
const (
	SessionPaid              = "paid"
	SessionUnpaid            = "unpaid"
	SessionNoPaymentRequired = "no_payment_required"
)

// Session lifecycle statuses as reported by the provider.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)

// CheckoutRequest describes a one-item checkout for an accepted offer.
type CheckoutRequest struct {
	Amount            float64
	Currency          string
	ProductName       string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
	IdempotencyKey    string
}

// CheckoutSession is what the buyer is redirected to.
type CheckoutSession struct {
	SessionRef  string
	RedirectURL string
}

// SessionStatus is the provider's authoritative view of a checkout session.
type SessionStatus struct {
	SessionRef        string `json:"session_ref"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	PaymentIntentRef  string `json:"payment_intent_ref,omitempty"`
	ClientReferenceID string `json:"client_reference_id,omitempty"`
}

// IsPaid reports whether the provider has collected the money.
func (s *SessionStatus) IsPaid() bool {
	return s.PaymentStatus == SessionPaid || s.PaymentStatus == SessionNoPaymentRequired
}

// Event is a verified webhook delivery about a checkout session.
type Event struct {
	ID                string
	Type              EventType
	SessionRef        string
	PaymentIntentRef  string
	ClientReferenceID string
	PaymentStatus     string
}

// Provider is the payment provider contract.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionRef string) (*SessionStatus, error)
	// ParseWebhook verifies the signature header against the raw payload before decoding it.
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}
