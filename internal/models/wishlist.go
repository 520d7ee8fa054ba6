package models

import (
	"time"

	"greendrake/haggle/internal/utils"
)

// WishlistEntry marks a listing a user wants to hear about. Unique per (user, listing).
type WishlistEntry struct {
	Base      `bson:",inline"`
	UserID    string      `bson:"user_id" json:"user_id"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
