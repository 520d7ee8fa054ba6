package models

import (
	"time"
)

// NotificationType is the kind of in-app notification.
type NotificationType string

const (
	NotificationTypeMessage       NotificationType = "message"
	NotificationTypeOffer         NotificationType = "offer"
	NotificationTypeOfferResponse NotificationType = "offer_response"
	NotificationTypeListingSold   NotificationType = "listing_sold"
)

// Notification is addressed to one recipient. Only Read ever changes after creation.
type Notification struct {
	Base        `bson:",inline"`
	RecipientID string                 `bson:"recipient_id" json:"recipient_id"`
	ActorID     string                 `bson:"actor_id" json:"actor_id"`
	Type        NotificationType       `bson:"type" json:"type"`
	Data        map[string]interface{} `bson:"data" json:"data"`
	Read        bool                   `bson:"read" json:"read"`
	DedupeKey   string                 `bson:"dedupe_key,omitempty" json:"-"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
}
