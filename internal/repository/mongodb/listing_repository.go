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
	"greendrake/haggle/internal/utils"
)

// ListingUpdate holds the seller-editable fields. Nil fields are left unchanged.
type ListingUpdate struct {
	Title       *string
	Description *string
	Price       *float64
	Images      []string
}

// ListingRepository stores listings. FindByID returns mongo.ErrNoDocuments for unknown ids.
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error)
	// Update applies the edit only while the listing is active; (nil, false, nil) otherwise.
	Update(ctx context.Context, id utils.SixID, update ListingUpdate, at time.Time) (*models.Listing, bool, error)
	// Delete removes an active listing and reports whether it did.
	Delete(ctx context.Context, id utils.SixID) (bool, error)
	// MarkSold flips an active listing to sold via offerID and reports whether this call did it.
	// The caller that sold also holds the claim on the wishlist hand-off.
	MarkSold(ctx context.Context, id, offerID utils.SixID, at time.Time) (bool, error)
	// ClaimSoldNotice claims a pending wishlist hand-off that is unclaimed or was claimed before staleBefore.
	ClaimSoldNotice(ctx context.Context, id utils.SixID, at, staleBefore time.Time) (bool, error)
	// ReleaseSoldNotice drops the claim after a failed hand-off.
	ReleaseSoldNotice(ctx context.Context, id utils.SixID) error
	// MarkSoldNotified records that the sale's wishlist fan-out was handed off.
	MarkSoldNotified(ctx context.Context, id utils.SixID) error
}

type listingRepository struct {
	coll *mongo.Collection
}

func NewListingRepository(database *mongo.Database) ListingRepository {
	return &listingRepository{coll: database.Collection(db.ListingsCollection)}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if err := db.InsertOne(ctx, r.coll, listing); err != nil {
		return fmt.Errorf("failed to insert listing for seller %s: %w", listing.SellerID, err)
	}
	return nil
}

func (r *listingRepository) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing %s: %w", id.String(), err)
	}
	return &listing, nil
}

func (r *listingRepository) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"seller_id": sellerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing listings for seller %s: %w", sellerID, err)
	}
	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding listings for seller %s: %w", sellerID, err)
	}
	return listings, nil
}

func (r *listingRepository) Update(ctx context.Context, id utils.SixID, update ListingUpdate, at time.Time) (*models.Listing, bool, error) {
	set := bson.M{"updated_at": at}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Price != nil {
		set["price"] = *update.Price
	}
	if update.Images != nil {
		set["images"] = update.Images
	}
	filter := bson.M{"_id": id, "status": models.ListingStatusActive}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var listing models.Listing
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to update listing %s: %w", id.String(), err)
	}
	return &listing, true, nil
}

func (r *listingRepository) Delete(ctx context.Context, id utils.SixID) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "status": models.ListingStatusActive})
	if err != nil {
		return false, fmt.Errorf("failed to delete listing %s: %w", id.String(), err)
	}
	return res.DeletedCount == 1, nil
}

func (r *listingRepository) MarkSold(ctx context.Context, id, offerID utils.SixID, at time.Time) (bool, error) {
	filter := bson.M{"_id": id, "status": models.ListingStatusActive}
	update := bson.M{"$set": bson.M{
		"status":                 models.ListingStatusSold,
		"sold_offer_id":          offerID,
		"sold_notified":          false,
		"sold_notice_claimed_at": at,
		"sold_at":                at,
		"updated_at":             at,
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark listing %s sold: %w", id.String(), err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *listingRepository) ClaimSoldNotice(ctx context.Context, id utils.SixID, at, staleBefore time.Time) (bool, error) {
	filter := bson.M{
		"_id":           id,
		"status":        models.ListingStatusSold,
		"sold_notified": bson.M{"$ne": true},
		"$or": bson.A{
			bson.M{"sold_notice_claimed_at": nil},
			bson.M{"sold_notice_claimed_at": bson.M{"$lt": staleBefore}},
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"sold_notice_claimed_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to claim sold notice for listing %s: %w", id.String(), err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *listingRepository) ReleaseSoldNotice(ctx context.Context, id utils.SixID) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{"sold_notice_claimed_at": ""}})
	if err != nil {
		return fmt.Errorf("failed to release sold notice for listing %s: %w", id.String(), err)
	}
	return nil
}

func (r *listingRepository) MarkSoldNotified(ctx context.Context, id utils.SixID) error {
	update := bson.M{
		"$set":   bson.M{"sold_notified": true},
		"$unset": bson.M{"sold_notice_claimed_at": ""},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark listing %s sold notified: %w", id.String(), err)
	}
	return nil
}
