package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/utils"
)

// WishlistRepository stores (user, listing) wishlist entries.
type WishlistRepository interface {
	Upsert(ctx context.Context, userID string, listingID utils.SixID, at time.Time) (*models.WishlistEntry, error)
	Delete(ctx context.Context, userID string, listingID utils.SixID) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.WishlistEntry, error)
	ListByListing(ctx context.Context, listingID utils.SixID) ([]models.WishlistEntry, error)
	DeleteByListing(ctx context.Context, listingID utils.SixID) (int64, error)
}

type wishlistRepository struct {
	coll *mongo.Collection
}

func NewWishlistRepository(database *mongo.Database) WishlistRepository {
	return &wishlistRepository{coll: database.Collection(db.WishlistsCollection)}
}

func (r *wishlistRepository) Upsert(ctx context.Context, userID string, listingID utils.SixID, at time.Time) (*models.WishlistEntry, error) {
	filter := bson.M{"user_id": userID, "listing_id": listingID}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":        utils.NewSixID(),
		"user_id":    userID,
		"listing_id": listingID,
		"created_at": at,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var entry models.WishlistEntry
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if err != nil && db.IsMongoDuplicateKeyError(err) {
		// Concurrent upsert of the same pair: the other writer's entry is the one we want.
		err = r.coll.FindOne(ctx, filter).Decode(&entry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add listing %s to wishlist of %s: %w", listingID.String(), userID, err)
	}
	return &entry, nil
}

func (r *wishlistRepository) Delete(ctx context.Context, userID string, listingID utils.SixID) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"user_id": userID, "listing_id": listingID})
	if err != nil {
		return false, fmt.Errorf("failed to remove listing %s from wishlist of %s: %w", listingID.String(), userID, err)
	}
	return res.DeletedCount == 1, nil
}

func (r *wishlistRepository) list(ctx context.Context, filter bson.M) ([]models.WishlistEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	entries := []models.WishlistEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *wishlistRepository) ListByUser(ctx context.Context, userID string) ([]models.WishlistEntry, error) {
	entries, err := r.list(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("error listing wishlist of %s: %w", userID, err)
	}
	return entries, nil
}

func (r *wishlistRepository) ListByListing(ctx context.Context, listingID utils.SixID) ([]models.WishlistEntry, error) {
	entries, err := r.list(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return nil, fmt.Errorf("error listing wishlist entries for listing %s: %w", listingID.String(), err)
	}
	return entries, nil
}

func (r *wishlistRepository) DeleteByListing(ctx context.Context, listingID utils.SixID) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return 0, fmt.Errorf("failed to clear wishlist entries for listing %s: %w", listingID.String(), err)
	}
	return res.DeletedCount, nil
}
