package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/negotiation"
)

// ErrSessionNotFound is returned by MockProvider for unknown or expired sessions.
var ErrSessionNotFound = errors.New("checkout session not found")

const mockSessionTTL = 24 * time.Hour

// MockProvider keeps checkout sessions in Redis (MOCK_SERVICES=true) so end-to-end tests can
// complete them through the service API. Webhooks are still signature checked.
type MockProvider struct {
	client   *redis.Client
	verifier *WebhookVerifier
}

func NewMockProvider(client *redis.Client, cfg *config.Config) *MockProvider {
	return &MockProvider{
		client:   client,
		verifier: NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance),
	}
}

type mockSession struct {
	SessionStatus
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   string            `json:"created_at"`
}

func mockSessionKey(sessionRef string) string {
	return "mockcheckout:" + sessionRef
}

func (p *MockProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ref := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	session := mockSession{
		SessionStatus: SessionStatus{
			SessionRef:        ref,
			Status:            SessionOpen,
			PaymentStatus:     SessionUnpaid,
			ClientReferenceID: req.ClientReferenceID,
		},
		AmountCents: negotiation.Cents(req.Amount),
		Currency:    req.Currency,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.save(ctx, &session); err != nil {
		return nil, err
	}
	log.Printf("Mock checkout session %s stored for offer %s", ref, req.ClientReferenceID)
	return &CheckoutSession{
		SessionRef:  ref,
		RedirectURL: strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", ref),
	}, nil
}

func (p *MockProvider) RetrieveSession(ctx context.Context, sessionRef string) (*SessionStatus, error) {
	session, err := p.load(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	return &session.SessionStatus, nil
}

func (p *MockProvider) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return p.verifier.Parse(payload, signatureHeader)
}

// CompleteSession marks a stored session paid, as if the buyer finished checkout.
func (p *MockProvider) CompleteSession(ctx context.Context, sessionRef string) (*SessionStatus, error) {
	session, err := p.load(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	session.Status = SessionComplete
	session.PaymentStatus = SessionPaid
	if session.PaymentIntentRef == "" {
		session.PaymentIntentRef = "pi_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if err := p.save(ctx, session); err != nil {
		return nil, err
	}
	return &session.SessionStatus, nil
}

// GetSession returns the raw stored session for the service API.
func (p *MockProvider) GetSession(ctx context.Context, sessionRef string) (map[string]interface{}, error) {
	raw, err := p.client.Get(ctx, mockSessionKey(sessionRef)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionRef)
		}
		return nil, fmt.Errorf("failed to read mock session %s: %w", sessionRef, err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse mock session %s: %w", sessionRef, err)
	}
	return data, nil
}

func (p *MockProvider) save(ctx context.Context, session *mockSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal mock session: %w", err)
	}
	if err := p.client.Set(ctx, mockSessionKey(session.SessionRef), data, mockSessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store mock session %s: %w", session.SessionRef, err)
	}
	return nil
}

func (p *MockProvider) load(ctx context.Context, sessionRef string) (*mockSession, error) {
	raw, err := p.client.Get(ctx, mockSessionKey(sessionRef)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionRef)
		}
		return nil, fmt.Errorf("failed to read mock session %s: %w", sessionRef, err)
	}
	var session mockSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to parse mock session %s: %w", sessionRef, err)
	}
	return &session, nil
}
