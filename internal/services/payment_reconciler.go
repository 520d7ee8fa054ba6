package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/payment"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

const (
	staleCheckoutBatchSize = 100
	// soldNoticeLease is how long a claimed wishlist hand-off blocks other deliveries from retrying it.
	soldNoticeLease = 2 * time.Minute
)

// SoldListingNotifier hands off the wishlist fan-out for a sold listing. It may be called again
// for the same listing when an earlier hand-off failed, so implementations must be idempotent.
type SoldListingNotifier interface {
	ListingSold(ctx context.Context, listingID utils.SixID) error
}

// CheckoutResult is returned to the buyer starting a payment.
type CheckoutResult struct {
	SessionRef  string        `json:"sessionId"`
	RedirectURL string        `json:"url"`
	Offer       *models.Offer `json:"offer"`
}

// ReconcileResult describes what a reconciliation changed.
// Offer is nil when no offer matched. Conflict marks a payment for an offer whose listing
// was already sold through a different offer.
type ReconcileResult struct {
	Offer       *models.Offer
	Applied     bool
	ListingSold bool
	Conflict    bool
}

// VerifyResult is the synchronous payment check shown on the success page.
type VerifyResult struct {
	Paid          bool          `json:"paid"`
	SessionRef    string        `json:"sessionId"`
	PaymentStatus string        `json:"paymentStatus"`
	Offer         *models.Offer `json:"offer"`
}

// IPaymentReconciler moves accepted offers through checkout to paid and the listing to sold.
type IPaymentReconciler interface {
	InitiateCheckout(ctx context.Context, callerID string, offerID utils.SixID) (*CheckoutResult, error)
	ReconcileCompletion(ctx context.Context, sessionRef, paymentIntentRef, clientReferenceID string) (*ReconcileResult, error)
	ReconcileFailure(ctx context.Context, sessionRef string) (*ReconcileResult, error)
	ReconcileExpiry(ctx context.Context, sessionRef string) (*ReconcileResult, error)
	Verify(ctx context.Context, callerID, sessionRef string) (*VerifyResult, error)
	// HandleWebhook verifies and applies a provider event. Only signature (ErrBadRequest) and
	// store (ErrInternal) failures are returned.
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	SweepStaleCheckouts(ctx context.Context) (int, error)
}

type paymentReconciler struct {
	offers   mongodb.OfferRepository
	listings mongodb.ListingRepository
	provider payment.Provider
	notifier SoldListingNotifier
	cfg      *config.Config
	now      func() time.Time
}

func NewPaymentReconciler(offers mongodb.OfferRepository, listings mongodb.ListingRepository, provider payment.Provider, notifier SoldListingNotifier, cfg *config.Config) IPaymentReconciler {
	return &paymentReconciler{
		offers:   offers,
		listings: listings,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		now:      utcNow,
	}
}

func (r *paymentReconciler) InitiateCheckout(ctx context.Context, callerID string, offerID utils.SixID) (*CheckoutResult, error) {
	if callerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	offer, err := r.offers.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "offer not found")
		}
		return nil, internalError(err, "failed to load offer")
	}
	if offer.BuyerID != callerID {
		return nil, newError(ErrForbidden, "only the buyer can pay for this offer")
	}
	if offer.PaymentStatus == models.PaymentStatusPaid {
		return nil, newError(ErrAlreadyPaid, "offer is already paid")
	}
	if offer.Status != negotiation.StatusAccepted {
		return nil, newError(ErrInvalidTransition, "offer must be accepted before checkout (status %s)", offer.Status)
	}
	listing, err := r.listings.FindByID(ctx, offer.ListingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "listing not found")
		}
		return nil, internalError(err, "failed to load listing")
	}
	if listing.IsSold() {
		return nil, newError(ErrInvalidTransition, "listing is already sold")
	}
	holder, err := findAcceptedHolder(ctx, r.offers, offer.ListingID, offer.ID)
	if err != nil {
		return nil, err
	}
	if holder != nil {
		return nil, newError(ErrInvalidTransition, "another accepted offer on this listing is being paid")
	}

	req := payment.CheckoutRequest{
		Amount:            offer.Amount,
		Currency:          r.cfg.PaymentCurrency,
		ProductName:       listing.Title,
		SuccessURL:        r.cfg.AppBaseURL + "/payments/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         r.cfg.AppBaseURL + "/payments/cancel?offer_id=" + url.QueryEscape(offer.ID.String()),
		ClientReferenceID: offer.ID.String(),
		Metadata: map[string]string{
			"offerId":   offer.ID.String(),
			"listingId": offer.ListingID.String(),
			"buyerId":   offer.BuyerID,
			"sellerId":  offer.SellerID,
		},
		IdempotencyKey: uuid.NewString(),
	}
	session, err := r.provider.CreateCheckout(ctx, req)
	if err != nil {
		return nil, internalError(err, "failed to create checkout session")
	}

	updated, ok, err := r.offers.RecordCheckout(ctx, offer.ID, session.SessionRef, r.now())
	if err != nil {
		return nil, internalError(err, "failed to record checkout session")
	}
	if !ok {
		current, err := r.offers.FindByID(ctx, offer.ID)
		if err != nil {
			return nil, internalError(err, "failed to reload offer")
		}
		if current.PaymentStatus == models.PaymentStatusPaid {
			return nil, newError(ErrAlreadyPaid, "offer is already paid")
		}
		return nil, newError(ErrInvalidTransition, "offer cannot be checked out (status %s)", current.Status)
	}
	log.Printf("PaymentReconciler: checkout session %s started for offer %s", session.SessionRef, offer.ID.String())
	return &CheckoutResult{SessionRef: session.SessionRef, RedirectURL: session.RedirectURL, Offer: updated}, nil
}

// applyPaidTransition is the only path that marks an offer paid and its listing sold.
// MarkPaid is conditional on payment_status != paid, so concurrent callers apply it once.
// When the offer is already paid the listing step still runs, which repairs a sale interrupted
// between the two writes. MarkSold is conditional too and leaves the wishlist hand-off claimed by
// the caller that sold; later deliveries retry the hand-off until SoldNotified is recorded.
func (r *paymentReconciler) applyPaidTransition(ctx context.Context, offerID utils.SixID, sessionRef, paymentIntentRef string) (*ReconcileResult, error) {
	now := r.now()
	offer, applied, err := r.offers.MarkPaid(ctx, offerID, sessionRef, paymentIntentRef, now)
	if err != nil {
		return nil, internalError(err, "failed to mark offer paid")
	}
	if !applied {
		offer, err = r.offers.FindByID(ctx, offerID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return &ReconcileResult{}, nil
			}
			return nil, internalError(err, "failed to reload offer")
		}
		if offer.PaymentStatus != models.PaymentStatusPaid {
			log.Printf("PaymentReconciler: offer %s is not payable (status %s, payment %s), ignoring", offerID.String(), offer.Status, offer.PaymentStatus)
			return &ReconcileResult{Offer: offer}, nil
		}
	} else {
		log.Printf("PaymentReconciler: offer %s paid (session %s, intent %s)", offerID.String(), sessionRef, paymentIntentRef)
	}

	sold, err := r.listings.MarkSold(ctx, offer.ListingID, offer.ID, now)
	if err != nil {
		return nil, internalError(err, "failed to mark listing sold")
	}
	if sold {
		log.Printf("PaymentReconciler: listing %s sold via offer %s", offer.ListingID.String(), offer.ID.String())
	} else {
		listing, err := r.listings.FindByID(ctx, offer.ListingID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				log.Printf("PaymentReconciler: ANOMALY offer %s paid but listing %s no longer exists", offer.ID.String(), offer.ListingID.String())
				return &ReconcileResult{Offer: offer, Applied: applied, Conflict: true}, nil
			}
			return nil, internalError(err, "failed to reload listing")
		}
		if !listing.SoldVia(offer.ID) {
			soldVia := "an unrecorded offer"
			if listing.SoldOfferID != nil {
				soldVia = "offer " + listing.SoldOfferID.String()
			}
			log.Printf("PaymentReconciler: ANOMALY offer %s paid but listing %s was sold via %s, payment needs a refund", offer.ID.String(), offer.ListingID.String(), soldVia)
			return &ReconcileResult{Offer: offer, Applied: applied, Conflict: true}, nil
		}
		if listing.SoldNotified {
			return &ReconcileResult{Offer: offer, Applied: applied}, nil
		}
		// A failed or abandoned hand-off is retried by whichever delivery claims it first.
		claimed, err := r.listings.ClaimSoldNotice(ctx, offer.ListingID, now, now.Add(-soldNoticeLease))
		if err != nil {
			return nil, internalError(err, "failed to claim wishlist hand-off")
		}
		if !claimed {
			return &ReconcileResult{Offer: offer, Applied: applied}, nil
		}
		log.Printf("PaymentReconciler: retrying wishlist hand-off for listing %s", offer.ListingID.String())
	}

	if err := r.notifier.ListingSold(ctx, offer.ListingID); err != nil {
		if releaseErr := r.listings.ReleaseSoldNotice(ctx, offer.ListingID); releaseErr != nil {
			log.Printf("PaymentReconciler: failed to release wishlist hand-off for listing %s: %v", offer.ListingID.String(), releaseErr)
		}
		return nil, internalError(err, "failed to notify wishlists for sold listing")
	}
	if err := r.listings.MarkSoldNotified(ctx, offer.ListingID); err != nil {
		return nil, internalError(err, "failed to record wishlist hand-off")
	}
	return &ReconcileResult{Offer: offer, Applied: applied, ListingSold: sold}, nil
}

// findForSession looks the offer up by session, then by the client reference (the offer id)
// for sessions the offer no longer points at. Returns nil when neither matches.
func (r *paymentReconciler) findForSession(ctx context.Context, sessionRef, clientReferenceID string) (*models.Offer, error) {
	if sessionRef != "" {
		offer, err := r.offers.FindBySessionRef(ctx, sessionRef)
		if err == nil {
			return offer, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, internalError(err, "failed to look up offer by session")
		}
	}
	if clientReferenceID == "" {
		return nil, nil
	}
	offerID, err := utils.ParseSixID(clientReferenceID)
	if err != nil {
		log.Printf("PaymentReconciler: ignoring malformed client reference %q: %v", clientReferenceID, err)
		return nil, nil
	}
	offer, err := r.offers.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, internalError(err, "failed to look up offer by client reference")
	}
	return offer, nil
}

func (r *paymentReconciler) ReconcileCompletion(ctx context.Context, sessionRef, paymentIntentRef, clientReferenceID string) (*ReconcileResult, error) {
	offer, err := r.findForSession(ctx, sessionRef, clientReferenceID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		log.Printf("PaymentReconciler: no offer for completed session %s (client reference %q), ignoring", sessionRef, clientReferenceID)
		return &ReconcileResult{}, nil
	}
	return r.applyPaidTransition(ctx, offer.ID, sessionRef, paymentIntentRef)
}

func (r *paymentReconciler) setPaymentStatus(ctx context.Context, sessionRef string, status models.PaymentStatus) (*ReconcileResult, error) {
	from := []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}
	offer, ok, err := r.offers.SetPaymentStatus(ctx, sessionRef, from, status, r.now())
	if err != nil {
		return nil, internalError(err, "failed to set payment status")
	}
	if !ok {
		log.Printf("PaymentReconciler: session %s not pending, %s ignored", sessionRef, status)
		return &ReconcileResult{}, nil
	}
	log.Printf("PaymentReconciler: offer %s payment %s (session %s)", offer.ID.String(), status, sessionRef)
	return &ReconcileResult{Offer: offer, Applied: true}, nil
}

// ReconcileFailure marks a pending or processing checkout failed. The offer stays accepted.
func (r *paymentReconciler) ReconcileFailure(ctx context.Context, sessionRef string) (*ReconcileResult, error) {
	return r.setPaymentStatus(ctx, sessionRef, models.PaymentStatusFailed)
}

// ReconcileExpiry marks a pending or processing checkout cancelled.
func (r *paymentReconciler) ReconcileExpiry(ctx context.Context, sessionRef string) (*ReconcileResult, error) {
	return r.setPaymentStatus(ctx, sessionRef, models.PaymentStatusCancelled)
}

// Verify asks the provider for the session status and applies a payment the webhook has not delivered yet.
func (r *paymentReconciler) Verify(ctx context.Context, callerID, sessionRef string) (*VerifyResult, error) {
	if callerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	if sessionRef == "" {
		return nil, newError(ErrBadRequest, "session_id is required")
	}

	offer, err := r.findForSession(ctx, sessionRef, "")
	if err != nil {
		return nil, err
	}
	if offer != nil {
		if _, ok := offer.RoleOf(callerID); !ok {
			return nil, newError(ErrForbidden, "you are not a party to this offer")
		}
	}

	status, err := r.provider.RetrieveSession(ctx, sessionRef)
	if err != nil {
		return nil, internalError(err, "failed to retrieve payment session")
	}

	if offer == nil {
		offer, err = r.findForSession(ctx, "", status.ClientReferenceID)
		if err != nil {
			return nil, err
		}
		if offer == nil {
			return nil, newError(ErrNotFound, "no offer for this checkout session")
		}
		if _, ok := offer.RoleOf(callerID); !ok {
			return nil, newError(ErrForbidden, "you are not a party to this offer")
		}
	}

	if status.IsPaid() {
		res, err := r.applyPaidTransition(ctx, offer.ID, sessionRef, status.PaymentIntentRef)
		if err != nil {
			return nil, err
		}
		if res.Offer != nil {
			offer = res.Offer
		}
	}

	return &VerifyResult{
		Paid:          offer.PaymentStatus == models.PaymentStatusPaid,
		SessionRef:    sessionRef,
		PaymentStatus: status.PaymentStatus,
		Offer:         offer,
	}, nil
}

func (r *paymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := r.provider.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			log.Printf("PaymentReconciler: rejected webhook: %v", err)
			return &Error{Kind: ErrBadRequest, Message: "invalid signature", Err: err}
		}
		log.Printf("PaymentReconciler: undecodable webhook payload: %v", err)
		return nil
	}

	var res *ReconcileResult
	switch event.Type {
	case payment.EventCheckoutCompleted:
		if event.PaymentStatus == payment.SessionUnpaid {
			log.Printf("PaymentReconciler: session %s completed unpaid, awaiting async payment", event.SessionRef)
			return nil
		}
		res, err = r.ReconcileCompletion(ctx, event.SessionRef, event.PaymentIntentRef, event.ClientReferenceID)
	case payment.EventAsyncPaymentSucceeded:
		res, err = r.ReconcileCompletion(ctx, event.SessionRef, event.PaymentIntentRef, event.ClientReferenceID)
	case payment.EventAsyncPaymentFailed:
		res, err = r.ReconcileFailure(ctx, event.SessionRef)
	case payment.EventCheckoutSessionExpired:
		res, err = r.ReconcileExpiry(ctx, event.SessionRef)
	default:
		log.Printf("PaymentReconciler: unhandled webhook event type %s (%s)", event.Type, event.ID)
		return nil
	}
	if err != nil {
		log.Printf("PaymentReconciler: failed to process webhook event %s (%s): %v", event.ID, event.Type, err)
		if errors.Is(err, ErrInternal) {
			return err
		}
		return nil
	}
	if res.Applied {
		log.Printf("PaymentReconciler: webhook event %s (%s) applied", event.ID, event.Type)
	}
	return nil
}

// SweepStaleCheckouts checks with the provider every checkout left processing longer than
// StaleCheckoutAge, for webhooks that never arrived.
func (r *paymentReconciler) SweepStaleCheckouts(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.StaleCheckoutAge)
	offers, err := r.offers.ListStaleCheckouts(ctx, cutoff, staleCheckoutBatchSize)
	if err != nil {
		return 0, internalError(err, "failed to list stale checkouts")
	}

	reconciled := 0
	var failures []error
	for i := range offers {
		offer := &offers[i]
		if offer.CheckoutSessionRef == "" {
			continue
		}
		status, err := r.provider.RetrieveSession(ctx, offer.CheckoutSessionRef)
		if err != nil {
			failures = append(failures, fmt.Errorf("offer %s: %w", offer.ID.String(), err))
			continue
		}
		var res *ReconcileResult
		switch {
		case status.IsPaid():
			res, err = r.applyPaidTransition(ctx, offer.ID, offer.CheckoutSessionRef, status.PaymentIntentRef)
		case status.Status == payment.SessionExpired:
			res, err = r.ReconcileExpiry(ctx, offer.CheckoutSessionRef)
		default:
			continue
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("offer %s: %w", offer.ID.String(), err))
			continue
		}
		if res.Applied {
			reconciled++
		}
	}
	if len(failures) > 0 {
		return reconciled, fmt.Errorf("stale checkout sweep had %d failure(s): %w", len(failures), errors.Join(failures...))
	}
	return reconciled, nil
}
