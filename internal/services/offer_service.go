package services

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

// IOfferService runs offer negotiation between a buyer and the seller of a listing.
type IOfferService interface {
	CreateOffer(ctx context.Context, buyerID string, listingID utils.SixID, amount float64) (*models.Offer, error)
	RespondToOffer(ctx context.Context, callerID string, offerID utils.SixID, action negotiation.Action, amount *float64) (*models.Offer, error)
	GetOffer(ctx context.Context, callerID string, offerID utils.SixID) (*models.Offer, error)
	ListOffers(ctx context.Context, callerID string, role negotiation.Role, listingID *utils.SixID) ([]models.Offer, error)
	// DeclineCompeting declines every other live offer on the listing without notifying anyone.
	DeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) (int64, error)
}

// CompetingOfferRetrier schedules DeclineCompeting again when it failed inline.
type CompetingOfferRetrier interface {
	RetryDeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) error
}

type offerService struct {
	offers     mongodb.OfferRepository
	listings   mongodb.ListingRepository
	dispatcher INotificationDispatcher
	retrier    CompetingOfferRetrier
	now        func() time.Time
}

// NewOfferService creates the offer service. retrier may be nil, in which case a failed
// competing-offer cleanup is only logged and repaired by the next acceptance.
func NewOfferService(offers mongodb.OfferRepository, listings mongodb.ListingRepository, dispatcher INotificationDispatcher, retrier CompetingOfferRetrier) IOfferService {
	return &offerService{
		offers:     offers,
		listings:   listings,
		dispatcher: dispatcher,
		retrier:    retrier,
		now:        utcNow,
	}
}

func (s *offerService) loadListing(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "listing not found")
		}
		return nil, internalError(err, "failed to load listing")
	}
	return listing, nil
}

func (s *offerService) loadOffer(ctx context.Context, offerID utils.SixID) (*models.Offer, error) {
	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "offer not found")
		}
		return nil, internalError(err, "failed to load offer")
	}
	return offer, nil
}

// findAcceptedHolder returns an accepted offer other than exceptID that still claims the listing:
// its payment is pending, processing or paid. Returns nil when there is none.
func findAcceptedHolder(ctx context.Context, offers mongodb.OfferRepository, listingID, exceptID utils.SixID) (*models.Offer, error) {
	accepted, err := offers.FindAccepted(ctx, listingID)
	if err != nil {
		return nil, internalError(err, "failed to check accepted offers")
	}
	for i := range accepted {
		if accepted[i].ID != exceptID {
			return &accepted[i], nil
		}
	}
	return nil, nil
}

// CreateOffer opens a negotiation on listingID at amount.
func (s *offerService) CreateOffer(ctx context.Context, buyerID string, listingID utils.SixID, amount float64) (*models.Offer, error) {
	if buyerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == buyerID {
		return nil, newError(ErrInvalidTransition, "sellers cannot send offers to themselves")
	}
	if listing.IsSold() {
		return nil, newError(ErrInvalidTransition, "listing is already sold")
	}
	holder, err := findAcceptedHolder(ctx, s.offers, listingID, utils.SixID{})
	if err != nil {
		return nil, err
	}
	if holder != nil {
		return nil, newError(ErrInvalidTransition, "listing has an accepted offer awaiting payment")
	}
	if err := negotiation.ValidateAmount(listing.Price, amount); err != nil {
		return nil, asDomainError(err)
	}

	_, err = s.offers.FindLive(ctx, listingID, buyerID)
	switch {
	case err == nil:
		return nil, newError(ErrInvalidTransition, "you already have an open offer on this listing")
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, internalError(err, "failed to check existing offers")
	}

	next, err := negotiation.Transition(negotiation.State{}, negotiation.RoleBuyer, negotiation.ActionOffer)
	if err != nil {
		return nil, asDomainError(err)
	}

	now := s.now()
	offer := &models.Offer{
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      listing.SellerID,
		Amount:        amount,
		Status:        next.Status,
		PaymentStatus: models.PaymentStatusPending,
		LastActionBy:  next.LastActionBy,
		Live:          true,
		History: []models.HistoryEntry{
			{Actor: negotiation.RoleBuyer, Action: negotiation.ActionOffer, Amount: amount, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.offers.Insert(ctx, offer); err != nil {
		if errors.Is(err, mongodb.ErrDuplicate) {
			return nil, newError(ErrInvalidTransition, "you already have an open offer on this listing")
		}
		return nil, internalError(err, "failed to create offer")
	}
	log.Printf("OfferService: offer %s created on listing %s by %s at %s", offer.ID.String(), listingID.String(), buyerID, negotiation.FormatAmount(amount))

	s.dispatcher.OfferCreated(ctx, offer, listing)
	return offer, nil
}

// RespondToOffer applies a counter, accept or decline by callerID.
// A concurrent write re-runs the whole decision against the fresh offer.
func (s *offerService) RespondToOffer(ctx context.Context, callerID string, offerID utils.SixID, action negotiation.Action, amount *float64) (*models.Offer, error) {
	if callerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}

	var (
		offer   *models.Offer
		listing *models.Listing
		actor   negotiation.Role
		changed bool
	)
	err := db.WithRetries(func() error {
		var err error
		offer, listing, actor, changed, err = s.respondOnce(ctx, callerID, offerID, action, amount)
		return err
	}, db.DefaultMaxRetries, func(err error) bool {
		return errors.Is(err, mongodb.ErrVersionConflict)
	})
	if err != nil {
		if errors.Is(err, mongodb.ErrVersionConflict) {
			return nil, newError(ErrInvalidTransition, "offer changed concurrently, please reload and try again")
		}
		return nil, err
	}
	if !changed {
		return offer, nil
	}
	log.Printf("OfferService: offer %s %s by %s (status %s, amount %s)", offer.ID.String(), action, actor, offer.Status, negotiation.FormatAmount(offer.Amount))

	s.dispatcher.OfferResponded(ctx, offer, listing, actor, action)

	if action == negotiation.ActionAccept {
		if _, err := s.DeclineCompeting(ctx, offer.ListingID, offer.ID); err != nil {
			log.Printf("OfferService: failed to decline competing offers on listing %s: %v", offer.ListingID.String(), err)
			if s.retrier != nil {
				if retryErr := s.retrier.RetryDeclineCompeting(ctx, offer.ListingID, offer.ID); retryErr != nil {
					log.Printf("OfferService: failed to schedule competing offer cleanup for listing %s: %v", offer.ListingID.String(), retryErr)
				}
			}
		}
	}
	return offer, nil
}

// respondOnce reports changed=false for an idempotent repeat of accept or decline.
func (s *offerService) respondOnce(ctx context.Context, callerID string, offerID utils.SixID, action negotiation.Action, amount *float64) (*models.Offer, *models.Listing, negotiation.Role, bool, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, nil, "", false, err
	}
	actor, ok := offer.RoleOf(callerID)
	if !ok {
		return nil, nil, "", false, newError(ErrForbidden, "you are not a party to this offer")
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return nil, nil, "", false, err
	}

	newAmount := offer.Amount
	if action == negotiation.ActionCounter {
		if amount == nil {
			return nil, nil, "", false, newError(ErrBadRequest, "amount is required for a counter offer")
		}
		if err := negotiation.ValidateAmount(listing.Price, *amount); err != nil {
			return nil, nil, "", false, asDomainError(err)
		}
		newAmount = *amount
	}

	next, err := negotiation.Transition(offer.State(), actor, action)
	if err != nil {
		if errors.Is(err, negotiation.ErrNoop) {
			return offer, listing, actor, false, nil
		}
		return nil, nil, "", false, asDomainError(err)
	}
	if action == negotiation.ActionAccept {
		if listing.IsSold() {
			return nil, nil, "", false, newError(ErrInvalidTransition, "listing is already sold")
		}
		holder, err := findAcceptedHolder(ctx, s.offers, offer.ListingID, offer.ID)
		if err != nil {
			return nil, nil, "", false, err
		}
		if holder != nil {
			return nil, nil, "", false, newError(ErrInvalidTransition, "another offer on this listing has already been accepted")
		}
	}

	now := s.now()
	offer.Status = next.Status
	offer.LastActionBy = next.LastActionBy
	offer.Amount = newAmount
	offer.Live = next.Status.IsLive()
	if next.Status == negotiation.StatusAccepted {
		offer.PaymentStatus = models.PaymentStatusPending
	}
	offer.History = append(offer.History, models.HistoryEntry{
		Actor:     actor,
		Action:    action,
		Amount:    newAmount,
		Timestamp: now,
	})
	offer.UpdatedAt = now

	if err := s.offers.Update(ctx, offer); err != nil {
		if errors.Is(err, mongodb.ErrVersionConflict) {
			return nil, nil, "", false, err
		}
		return nil, nil, "", false, internalError(err, "failed to update offer")
	}
	return offer, listing, actor, true, nil
}

func (s *offerService) GetOffer(ctx context.Context, callerID string, offerID utils.SixID) (*models.Offer, error) {
	if callerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if _, ok := offer.RoleOf(callerID); !ok {
		return nil, newError(ErrForbidden, "you are not a party to this offer")
	}
	return offer, nil
}

// ListOffers lists the caller's offers as buyer (default) or seller, newest activity first.
func (s *offerService) ListOffers(ctx context.Context, callerID string, role negotiation.Role, listingID *utils.SixID) ([]models.Offer, error) {
	if callerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	filter := mongodb.OfferFilter{ListingID: listingID}
	switch role {
	case negotiation.RoleSeller:
		filter.SellerID = callerID
	case negotiation.RoleBuyer, "":
		filter.BuyerID = callerID
	default:
		return nil, newError(ErrBadRequest, "role must be buyer or seller")
	}
	offers, err := s.offers.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list offers")
	}
	return offers, nil
}

func (s *offerService) DeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) (int64, error) {
	n, err := s.offers.DeclineLiveExcept(ctx, listingID, acceptedOfferID, s.now())
	if err != nil {
		return 0, internalError(err, "failed to decline competing offers")
	}
	if n > 0 {
		log.Printf("OfferService: declined %d competing offer(s) on listing %s", n, listingID.String())
	}
	return n, nil
}
