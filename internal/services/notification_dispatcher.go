package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/notify"
	"greendrake/haggle/internal/repository/mongodb"
)

// INotificationDispatcher records the audit message and notification for an offer transition.
// It never fails the caller: errors are logged.
type INotificationDispatcher interface {
	OfferCreated(ctx context.Context, offer *models.Offer, listing *models.Listing)
	OfferResponded(ctx context.Context, offer *models.Offer, listing *models.Listing, actor negotiation.Role, action negotiation.Action)
}

type notificationDispatcher struct {
	messages      mongodb.MessageRepository
	notifications mongodb.NotificationRepository
	publisher     notify.Publisher
	now           func() time.Time
}

func NewNotificationDispatcher(messages mongodb.MessageRepository, notifications mongodb.NotificationRepository, publisher notify.Publisher) INotificationDispatcher {
	return &notificationDispatcher{
		messages:      messages,
		notifications: notifications,
		publisher:     publisher,
		now:           utcNow,
	}
}

func (d *notificationDispatcher) OfferCreated(ctx context.Context, offer *models.Offer, listing *models.Listing) {
	content := fmt.Sprintf("sent an offer of %s on %s", negotiation.FormatAmount(offer.Amount), listing.Title)
	d.dispatch(ctx, offer, offer.BuyerID, offer.SellerID, models.NotificationTypeOffer, content)
}

func (d *notificationDispatcher) OfferResponded(ctx context.Context, offer *models.Offer, listing *models.Listing, actor negotiation.Role, action negotiation.Action) {
	content := responseContent(offer, listing, actor, action)
	d.dispatch(ctx, offer, offer.Counterparty(actor.Other()), offer.Counterparty(actor), models.NotificationTypeOfferResponse, content)
}

func responseContent(offer *models.Offer, listing *models.Listing, actor negotiation.Role, action negotiation.Action) string {
	who := "Buyer"
	if actor == negotiation.RoleSeller {
		who = "Seller"
	}
	amount := negotiation.FormatAmount(offer.Amount)
	switch action {
	case negotiation.ActionCounter:
		return fmt.Sprintf("%s countered with %s on %s", who, amount, listing.Title)
	case negotiation.ActionAccept:
		if actor == negotiation.RoleSeller {
			return fmt.Sprintf("Seller accepted the offer of %s on %s. Please complete payment.", amount, listing.Title)
		}
		return fmt.Sprintf("Buyer accepted the offer of %s on %s. Awaiting payment.", amount, listing.Title)
	case negotiation.ActionDecline:
		return fmt.Sprintf("%s declined the offer for %s", who, listing.Title)
	}
	return fmt.Sprintf("%s updated the offer on %s", who, listing.Title)
}

func (d *notificationDispatcher) dispatch(ctx context.Context, offer *models.Offer, senderID, recipientID string, notificationType models.NotificationType, content string) {
	now := d.now()
	offerID, listingID := offer.ID, offer.ListingID

	message := &models.Message{
		SenderID:   senderID,
		ReceiverID: recipientID,
		ListingID:  &listingID,
		OfferID:    &offerID,
		Type:       models.MessageTypeOffer,
		Content:    content,
		CreatedAt:  now,
	}
	if err := d.messages.Insert(ctx, message); err != nil {
		log.Printf("NotificationDispatcher: failed to store message for offer %s: %v", offer.ID.String(), err)
	}

	notification := &models.Notification{
		RecipientID: recipientID,
		ActorID:     senderID,
		Type:        notificationType,
		Data: map[string]interface{}{
			"offerId":     offer.ID.String(),
			"listingId":   offer.ListingID.String(),
			"otherUserId": senderID,
			"status":      string(offer.Status),
			"amount":      offer.Amount,
			"message":     content,
		},
		CreatedAt: now,
	}
	if err := d.notifications.Insert(ctx, notification); err != nil {
		log.Printf("NotificationDispatcher: failed to store %s notification for offer %s: %v", notificationType, offer.ID.String(), err)
		return
	}
	if err := d.publisher.Publish(ctx, notification); err != nil {
		log.Printf("NotificationDispatcher: failed to publish notification %s: %v", notification.ID.String(), err)
	}
}
