package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	ListingsCollection      = "listings"
	OffersCollection        = "offers"
	MessagesCollection      = "messages"
	NotificationsCollection = "notifications"
	WishlistsCollection     = "wishlists"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	fmt.Println("Successfully connected to MongoDB!")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the indexes the repositories rely on. It is safe to call on every start.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		OffersCollection: {
			// At most one live offer per (listing, buyer).
			{
				Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
				Options: options.Index().
					SetName("one_live_offer_per_buyer").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"live": true}),
			},
			{Keys: bson.D{{Key: "checkout_session_ref", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "checkout_started_at", Value: 1}}},
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		ListingsCollection: {
			{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		MessagesCollection: {
			{Keys: bson.D{{Key: "offer_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		NotificationsCollection: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "dedupe_key", Value: 1}},
				Options: options.Index().SetName("dedupe_key_unique").SetUnique(true).SetSparse(true),
			},
		},
		WishlistsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "listing_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "listing_id", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
