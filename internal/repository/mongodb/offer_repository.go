package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/utils"
)

// OfferFilter selects offers for listing. Exactly one of BuyerID or SellerID is normally set.
type OfferFilter struct {
	BuyerID   string
	SellerID  string
	ListingID *utils.SixID
}

// OfferRepository stores offers. Lookups return mongo.ErrNoDocuments when nothing matches.
// The conditional payment writes return (nil, false, nil) when their precondition does not hold.
type OfferRepository interface {
	// Insert returns ErrDuplicate when the buyer already has a live offer on the listing.
	Insert(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Offer, error)
	FindLive(ctx context.Context, listingID utils.SixID, buyerID string) (*models.Offer, error)
	FindBySessionRef(ctx context.Context, sessionRef string) (*models.Offer, error)
	List(ctx context.Context, filter OfferFilter) ([]models.Offer, error)
	// FindAccepted lists the listing's accepted offers whose payment is not failed or cancelled.
	FindAccepted(ctx context.Context, listingID utils.SixID) ([]models.Offer, error)
	// Update replaces the offer if its stored version still equals offer.Version, then bumps offer.Version.
	Update(ctx context.Context, offer *models.Offer) error
	// DeclineLiveExcept declines every live offer on the listing except one, in a single write.
	DeclineLiveExcept(ctx context.Context, listingID, exceptID utils.SixID, at time.Time) (int64, error)
	// RecordCheckout stores the session and moves an accepted, unpaid offer to processing.
	RecordCheckout(ctx context.Context, id utils.SixID, sessionRef string, at time.Time) (*models.Offer, bool, error)
	// MarkPaid moves an accepted offer to paid unless it already is.
	MarkPaid(ctx context.Context, id utils.SixID, sessionRef, paymentIntentRef string, at time.Time) (*models.Offer, bool, error)
	// SetPaymentStatus moves the offer holding sessionRef to status when it is currently in one of from.
	SetPaymentStatus(ctx context.Context, sessionRef string, from []models.PaymentStatus, status models.PaymentStatus, at time.Time) (*models.Offer, bool, error)
	ListStaleCheckouts(ctx context.Context, startedBefore time.Time, limit int64) ([]models.Offer, error)
}

type offerRepository struct {
	coll *mongo.Collection
}

func NewOfferRepository(database *mongo.Database) OfferRepository {
	return &offerRepository{coll: database.Collection(db.OffersCollection)}
}

var liveStatuses = []negotiation.Status{negotiation.StatusPending, negotiation.StatusCountered}

// holdingPayments are the payment states in which an accepted offer still claims its listing.
var holdingPayments = []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusPaid}

func (r *offerRepository) Insert(ctx context.Context, offer *models.Offer) error {
	err := db.InsertOne(ctx, r.coll, offer)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return fmt.Errorf("%w: live offer for listing %s by %s", ErrDuplicate, offer.ListingID.String(), offer.BuyerID)
		}
		return fmt.Errorf("failed to insert offer on listing %s: %w", offer.ListingID.String(), err)
	}
	return nil
}

func (r *offerRepository) findOne(ctx context.Context, filter bson.M, what string) (*models.Offer, error) {
	var offer models.Offer
	if err := r.coll.FindOne(ctx, filter).Decode(&offer); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding offer by %s: %w", what, err)
	}
	return &offer, nil
}

func (r *offerRepository) FindByID(ctx context.Context, id utils.SixID) (*models.Offer, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "id "+id.String())
}

func (r *offerRepository) FindLive(ctx context.Context, listingID utils.SixID, buyerID string) (*models.Offer, error) {
	filter := bson.M{"listing_id": listingID, "buyer_id": buyerID, "status": bson.M{"$in": liveStatuses}}
	return r.findOne(ctx, filter, "listing "+listingID.String())
}

func (r *offerRepository) FindBySessionRef(ctx context.Context, sessionRef string) (*models.Offer, error) {
	return r.findOne(ctx, bson.M{"checkout_session_ref": sessionRef}, "session "+sessionRef)
}

func (r *offerRepository) List(ctx context.Context, filter OfferFilter) ([]models.Offer, error) {
	query := bson.M{}
	if filter.BuyerID != "" {
		query["buyer_id"] = filter.BuyerID
	}
	if filter.SellerID != "" {
		query["seller_id"] = filter.SellerID
	}
	if filter.ListingID != nil {
		query["listing_id"] = *filter.ListingID
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing offers: %w", err)
	}
	offers := []models.Offer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("error decoding offers: %w", err)
	}
	return offers, nil
}

func (r *offerRepository) FindAccepted(ctx context.Context, listingID utils.SixID) ([]models.Offer, error) {
	filter := bson.M{
		"listing_id":     listingID,
		"status":         negotiation.StatusAccepted,
		"payment_status": bson.M{"$in": holdingPayments},
	}
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding accepted offers on listing %s: %w", listingID.String(), err)
	}
	offers := []models.Offer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("error decoding accepted offers on listing %s: %w", listingID.String(), err)
	}
	return offers, nil
}

func (r *offerRepository) Update(ctx context.Context, offer *models.Offer) error {
	expected := offer.Version
	next := *offer
	next.Version = expected + 1

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": offer.ID, "version": expected}, &next)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return fmt.Errorf("%w: live offer for listing %s by %s", ErrDuplicate, offer.ListingID.String(), offer.BuyerID)
		}
		return fmt.Errorf("failed to update offer %s: %w", offer.ID.String(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: offer %s at version %d", ErrVersionConflict, offer.ID.String(), expected)
	}
	offer.Version = next.Version
	return nil
}

func (r *offerRepository) DeclineLiveExcept(ctx context.Context, listingID, exceptID utils.SixID, at time.Time) (int64, error) {
	filter := bson.M{
		"listing_id": listingID,
		"_id":        bson.M{"$ne": exceptID},
		"status":     bson.M{"$in": liveStatuses},
	}
	// Pipeline update so each declined offer records the amount it was declined at.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":         negotiation.StatusDeclined,
			"last_action_by": negotiation.RoleSeller,
			"live":           false,
			"updated_at":     at,
			"version":        bson.M{"$add": bson.A{"$version", 1}},
			"history": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$history", bson.A{}}},
				bson.A{bson.M{
					"actor":     negotiation.RoleSeller,
					"action":    negotiation.ActionDecline,
					"amount":    "$amount",
					"timestamp": at,
				}},
			}},
		}}},
	}

	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to decline competing offers on listing %s: %w", listingID.String(), err)
	}
	return res.ModifiedCount, nil
}

// conditionalUpdate runs FindOneAndUpdate and maps "no match" to (nil, false, nil).
func (r *offerRepository) conditionalUpdate(ctx context.Context, filter, set bson.M, what string) (*models.Offer, bool, error) {
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var offer models.Offer
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to %s: %w", what, err)
	}
	return &offer, true, nil
}

func (r *offerRepository) RecordCheckout(ctx context.Context, id utils.SixID, sessionRef string, at time.Time) (*models.Offer, bool, error) {
	filter := bson.M{
		"_id":            id,
		"status":         negotiation.StatusAccepted,
		"payment_status": bson.M{"$ne": models.PaymentStatusPaid},
	}
	set := bson.M{
		"checkout_session_ref": sessionRef,
		"payment_status":       models.PaymentStatusProcessing,
		"checkout_started_at":  at,
		"updated_at":           at,
	}
	return r.conditionalUpdate(ctx, filter, set, "record checkout for offer "+id.String())
}

func (r *offerRepository) MarkPaid(ctx context.Context, id utils.SixID, sessionRef, paymentIntentRef string, at time.Time) (*models.Offer, bool, error) {
	filter := bson.M{
		"_id":            id,
		"status":         negotiation.StatusAccepted,
		"payment_status": bson.M{"$ne": models.PaymentStatusPaid},
	}
	set := bson.M{
		"payment_status": models.PaymentStatusPaid,
		"paid_at":        at,
		"updated_at":     at,
	}
	if sessionRef != "" {
		set["checkout_session_ref"] = sessionRef
	}
	if paymentIntentRef != "" {
		set["payment_intent_ref"] = paymentIntentRef
	}
	return r.conditionalUpdate(ctx, filter, set, "mark offer "+id.String()+" paid")
}

func (r *offerRepository) SetPaymentStatus(ctx context.Context, sessionRef string, from []models.PaymentStatus, status models.PaymentStatus, at time.Time) (*models.Offer, bool, error) {
	filter := bson.M{
		"checkout_session_ref": sessionRef,
		"payment_status":       bson.M{"$in": from},
	}
	set := bson.M{"payment_status": status, "updated_at": at}
	return r.conditionalUpdate(ctx, filter, set, "set payment status "+string(status)+" for session "+sessionRef)
}

func (r *offerRepository) ListStaleCheckouts(ctx context.Context, startedBefore time.Time, limit int64) ([]models.Offer, error) {
	filter := bson.M{
		"payment_status":      models.PaymentStatusProcessing,
		"checkout_started_at": bson.M{"$lt": startedBefore},
	}
	opts := options.Find().SetSort(bson.D{{Key: "checkout_started_at", Value: 1}}).SetLimit(limit)
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing stale checkouts: %w", err)
	}
	offers := []models.Offer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("error decoding stale checkouts: %w", err)
	}
	return offers, nil
}
