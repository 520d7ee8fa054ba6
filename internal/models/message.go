package models

import (
	"time"

	"greendrake/haggle/internal/utils"
)

// Message types: free text between users, or audit messages that mirror offer transitions.
const (
	MessageTypeText  = "text"
	MessageTypeOffer = "offer"
)

// Message is an append-only conversation entry between two users about a listing.
type Message struct {
	Base       `bson:",inline"`
	SenderID   string       `bson:"sender_id" json:"sender_id"`
	ReceiverID string       `bson:"receiver_id" json:"receiver_id"`
	ListingID  *utils.SixID `bson:"listing_id,omitempty" json:"listing_id,omitempty"`
	OfferID    *utils.SixID `bson:"offer_id,omitempty" json:"offer_id,omitempty"`
	Type       string       `bson:"type" json:"type"`
	Content    string       `bson:"content" json:"content"`
	Read       bool         `bson:"read" json:"read"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
}
