package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookVerifier checks Stripe-style "t=...,v1=..." HMAC-SHA256 signatures with a shared secret.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

// Parse verifies payload and decodes checkout session events.
// Events about other objects come back with only ID and Type set.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (*Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	event := &Event{ID: evt.ID, Type: EventType(evt.Type)}
	if !strings.HasPrefix(string(evt.Type), "checkout.session.") || evt.Data == nil {
		return event, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session in event %s: %w", evt.ID, err)
	}
	event.SessionRef = session.ID
	event.ClientReferenceID = session.ClientReferenceID
	event.PaymentStatus = string(session.PaymentStatus)
	if session.PaymentIntent != nil {
		event.PaymentIntentRef = session.PaymentIntent.ID
	}
	return event, nil
}
