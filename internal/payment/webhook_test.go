package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "client_reference_id": "0123456789",
      "payment_intent": "pi_test_1",
      "payment_status": "paid",
      "status": "complete"
    }
  }
}`

func sign(payload string, at time.Time) (string, []byte) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: at,
	})
	return signed.Header, signed.Payload
}

func TestWebhookVerifier_CompletedEvent(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	header, payload := sign(completedEvent, time.Now())

	event, err := v.Parse(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, "cs_test_1", event.SessionRef)
	assert.Equal(t, "pi_test_1", event.PaymentIntentRef)
	assert.Equal(t, "0123456789", event.ClientReferenceID)
	assert.Equal(t, SessionPaid, event.PaymentStatus)
}

func TestWebhookVerifier_TamperedPayload(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	header, payload := sign(completedEvent, time.Now())
	tampered := []byte(string(payload[:len(payload)-1]) + " }")

	_, err := v.Parse(tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.ErrorIs(t, err, webhook.ErrNoValidSignature)
}

func TestWebhookVerifier_WrongSecret(t *testing.T) {
	v := NewWebhookVerifier("whsec_other", 5*time.Minute)
	header, payload := sign(completedEvent, time.Now())

	_, err := v.Parse(payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookVerifier_MissingHeader(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	_, payload := sign(completedEvent, time.Now())

	for _, header := range []string{"", "   "} {
		_, err := v.Parse(payload, header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
		assert.Contains(t, err.Error(), "missing signature header")
	}
}

func TestWebhookVerifier_ExpiredTimestamp(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	header, payload := sign(completedEvent, time.Now().Add(-10*time.Minute))

	_, err := v.Parse(payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.ErrorIs(t, err, webhook.ErrTooOld)
}

func TestWebhookVerifier_SecretNotConfigured(t *testing.T) {
	v := NewWebhookVerifier("", 0)
	header, payload := sign(completedEvent, time.Now())

	_, err := v.Parse(payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, webhook.DefaultTolerance, v.tolerance)
}

func TestWebhookVerifier_NonCheckoutEvent(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	header, payload := sign(`{
  "id": "evt_2",
  "object": "event",
  "type": "invoice.paid",
  "data": {"object": {"id": "in_1", "object": "invoice", "client_reference_id": "ignored"}}
}`, time.Now())

	event, err := v.Parse(payload, header)
	require.NoError(t, err)
	assert.Equal(t, &Event{ID: "evt_2", Type: "invoice.paid"}, event)
}

func TestWebhookVerifier_UndecodableSession(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, 5*time.Minute)
	header, payload := sign(`{
  "id": "evt_3",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_test_3", "payment_intent": 42}}
}`, time.Now())

	_, err := v.Parse(payload, header)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidSignature), "a signed but malformed event is not a signature failure")
}
