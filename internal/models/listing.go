package models

import (
	"time"

	"greendrake/haggle/internal/utils"
)

// ListingStatus is the sale state of a listing.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusSold   ListingStatus = "sold"
)

// Listing is an item offered for sale by a seller.
// Status moves from active to sold exactly once, when a payment for an accepted offer is confirmed.
// SoldOfferID names that offer. SoldNotified is set once the wishlist fan-out for the sale was
// handed off; SoldNoticeClaimedAt marks a hand-off in flight.
type Listing struct {
	Base                `bson:",inline"`
	SellerID            string        `bson:"seller_id" json:"seller_id"`
	Title               string        `bson:"title" json:"title"`
	Description         string        `bson:"description" json:"description"`
	Price               float64       `bson:"price" json:"price"`
	Images              []string      `bson:"images" json:"images"`
	Status              ListingStatus `bson:"status" json:"status"`
	SoldAt              *time.Time    `bson:"sold_at,omitempty" json:"sold_at,omitempty"`
	SoldOfferID         *utils.SixID  `bson:"sold_offer_id,omitempty" json:"sold_offer_id,omitempty"`
	SoldNotified        bool          `bson:"sold_notified" json:"-"`
	SoldNoticeClaimedAt *time.Time    `bson:"sold_notice_claimed_at,omitempty" json:"-"`
	CreatedAt           time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `bson:"updated_at" json:"updated_at"`
}

// SoldVia reports whether the listing was sold through offerID.
func (l *Listing) SoldVia(offerID utils.SixID) bool {
	return l.SoldOfferID != nil && *l.SoldOfferID == offerID
}

// IsSold reports whether the listing can no longer receive offers.
func (l *Listing) IsSold() bool {
	return l.Status == ListingStatusSold
}
