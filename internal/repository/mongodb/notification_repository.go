package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/utils"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	// Insert returns ErrDuplicate when a notification with the same dedupe key already exists.
	Insert(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int64) ([]models.Notification, error)
	// MarkRead updates the recipient's notifications; nil ids means all of them.
	MarkRead(ctx context.Context, recipientID string, ids []utils.SixID, read bool) (int64, error)
}

type notificationRepository struct {
	coll *mongo.Collection
}

func NewNotificationRepository(database *mongo.Database) NotificationRepository {
	return &notificationRepository{coll: database.Collection(db.NotificationsCollection)}
}

func (r *notificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	err := db.InsertOne(ctx, r.coll, notification)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return fmt.Errorf("%w: notification %s", ErrDuplicate, notification.DedupeKey)
		}
		return fmt.Errorf("failed to insert %s notification for %s: %w", notification.Type, notification.RecipientID, err)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, limit int64) ([]models.Notification, error) {
	filter := bson.M{"recipient_id": recipientID}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications for %s: %w", recipientID, err)
	}
	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("error decoding notifications for %s: %w", recipientID, err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID string, ids []utils.SixID, read bool) (int64, error) {
	filter := bson.M{"recipient_id": recipientID}
	if ids != nil {
		filter["_id"] = bson.M{"$in": ids}
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": read}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications for %s: %w", recipientID, err)
	}
	return res.ModifiedCount, nil
}
