package models

import (
	"time"

	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/utils"
)

// PaymentStatus tracks the checkout of an accepted offer.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// HistoryEntry records one negotiation step. Amount is the amount in effect after the step.
type HistoryEntry struct {
	Actor     negotiation.Role   `bson:"actor" json:"actor"`
	Action    negotiation.Action `bson:"action" json:"action"`
	Amount    float64            `bson:"amount" json:"amount"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Offer is one negotiation thread between a buyer and the seller of a listing.
type Offer struct {
	Base               `bson:",inline"`
	ListingID          utils.SixID        `bson:"listing_id" json:"listing_id"`
	BuyerID            string             `bson:"buyer_id" json:"buyer_id"`
	SellerID           string             `bson:"seller_id" json:"seller_id"`
	Amount             float64            `bson:"amount" json:"amount"`
	Status             negotiation.Status `bson:"status" json:"status"`
	PaymentStatus      PaymentStatus      `bson:"payment_status" json:"payment_status"`
	LastActionBy       negotiation.Role   `bson:"last_action_by" json:"last_action_by"`
	History            []HistoryEntry     `bson:"history" json:"history"`
	Live               bool               `bson:"live" json:"-"`    // pending or countered; backs the one-live-offer index
	Version            int64              `bson:"version" json:"-"` // optimistic concurrency token
	CheckoutSessionRef string             `bson:"checkout_session_ref,omitempty" json:"checkout_session_ref,omitempty"`
	PaymentIntentRef   string             `bson:"payment_intent_ref,omitempty" json:"payment_intent_ref,omitempty"`
	CheckoutStartedAt  *time.Time         `bson:"checkout_started_at,omitempty" json:"checkout_started_at,omitempty"`
	PaidAt             *time.Time         `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// State returns the negotiation state of the offer.
func (o *Offer) State() negotiation.State {
	return negotiation.State{Status: o.Status, LastActionBy: o.LastActionBy}
}

// RoleOf returns the role userID plays in the offer, or false if they are not a party.
func (o *Offer) RoleOf(userID string) (negotiation.Role, bool) {
	switch userID {
	case o.SellerID:
		return negotiation.RoleSeller, true
	case o.BuyerID:
		return negotiation.RoleBuyer, true
	}
	return "", false
}

// Counterparty returns the user on the other side of role.
func (o *Offer) Counterparty(role negotiation.Role) string {
	if role == negotiation.RoleSeller {
		return o.BuyerID
	}
	return o.SellerID
}
