package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/models"
)

// MessageRepository stores conversation messages. Messages are never edited, only marked read.
type MessageRepository interface {
	Insert(ctx context.Context, message *models.Message) error
	// ListInvolving returns up to limit messages sent or received by userID, newest first.
	ListInvolving(ctx context.Context, userID string, limit int64) ([]models.Message, error)
	// ListThread returns the messages exchanged between two users, oldest first.
	ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error)
	// MarkThreadRead marks everything otherUserID sent to userID as read.
	MarkThreadRead(ctx context.Context, userID, otherUserID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(database *mongo.Database) MessageRepository {
	return &messageRepository{coll: database.Collection(db.MessagesCollection)}
}

func (r *messageRepository) Insert(ctx context.Context, message *models.Message) error {
	if err := db.InsertOne(ctx, r.coll, message); err != nil {
		return fmt.Errorf("failed to insert message to %s: %w", message.ReceiverID, err)
	}
	return nil
}

func (r *messageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) ListInvolving(ctx context.Context, userID string, limit int64) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"receiver_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	return r.find(ctx, filter, opts)
}

func (r *messageRepository) ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID, "receiver_id": otherUserID},
		bson.M{"sender_id": otherUserID, "receiver_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *messageRepository) MarkThreadRead(ctx context.Context, userID, otherUserID string) (int64, error) {
	filter := bson.M{"sender_id": otherUserID, "receiver_id": userID, "read": false}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages from %s to %s read: %w", otherUserID, userID, err)
	}
	return res.ModifiedCount, nil
}
