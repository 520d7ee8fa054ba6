package payment

import (
	"context"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/negotiation"
)

// StripeProvider creates and reads Stripe Checkout sessions.
type StripeProvider struct {
	api      *client.API
	verifier *WebhookVerifier
}

func NewStripeProvider(cfg *config.Config) Provider {
	api := &client.API{}
	api.Init(cfg.StripeSecretKey, nil)
	return &StripeProvider{
		api:      api,
		verifier: NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance),
	}
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(negotiation.Cents(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create checkout session for %s: %w", req.ClientReferenceID, err)
	}
	log.Printf("Stripe checkout session %s created for offer %s", session.ID, req.ClientReferenceID)
	return &CheckoutSession{SessionRef: session.ID, RedirectURL: session.URL}, nil
}

func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionRef string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.Get(sessionRef, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to retrieve checkout session %s: %w", sessionRef, err)
	}
	status := &SessionStatus{
		SessionRef:        session.ID,
		Status:            string(session.Status),
		PaymentStatus:     string(session.PaymentStatus),
		ClientReferenceID: session.ClientReferenceID,
	}
	if session.PaymentIntent != nil {
		status.PaymentIntentRef = session.PaymentIntent.ID
	}
	return status, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return p.verifier.Parse(payload, signatureHeader)
}
