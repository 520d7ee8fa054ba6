package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/notify"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

// IWishlistService manages wishlists and tells wishlisting users when a listing sells.
type IWishlistService interface {
	Add(ctx context.Context, userID string, listingID utils.SixID) (*models.WishlistEntry, error)
	Remove(ctx context.Context, userID string, listingID utils.SixID) error
	List(ctx context.Context, userID string) ([]models.WishlistEntry, error)
	// NotifyListingSold is safe to retry: notifications are deduplicated per (listing, user)
	// and entries are only cleared once every notification is stored.
	NotifyListingSold(ctx context.Context, listingID utils.SixID) (int, error)
}

type wishlistService struct {
	wishlists     mongodb.WishlistRepository
	listings      mongodb.ListingRepository
	notifications mongodb.NotificationRepository
	publisher     notify.Publisher
	now           func() time.Time
}

func NewWishlistService(wishlists mongodb.WishlistRepository, listings mongodb.ListingRepository, notifications mongodb.NotificationRepository, publisher notify.Publisher) IWishlistService {
	return &wishlistService{
		wishlists:     wishlists,
		listings:      listings,
		notifications: notifications,
		publisher:     publisher,
		now:           utcNow,
	}
}

// ListingSoldDedupeKey identifies the single listing_sold notification a user gets for a listing.
func ListingSoldDedupeKey(listingID utils.SixID, userID string) string {
	return fmt.Sprintf("listing_sold:%s:%s", listingID.String(), userID)
}

func (s *wishlistService) Add(ctx context.Context, userID string, listingID utils.SixID) (*models.WishlistEntry, error) {
	if userID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "listing not found")
		}
		return nil, internalError(err, "failed to load listing")
	}
	if listing.IsSold() {
		return nil, newError(ErrInvalidTransition, "listing is already sold")
	}
	entry, err := s.wishlists.Upsert(ctx, userID, listingID, s.now())
	if err != nil {
		return nil, internalError(err, "failed to add to wishlist")
	}
	return entry, nil
}

func (s *wishlistService) Remove(ctx context.Context, userID string, listingID utils.SixID) error {
	if userID == "" {
		return newError(ErrUnauthorized, "authentication required")
	}
	removed, err := s.wishlists.Delete(ctx, userID, listingID)
	if err != nil {
		return internalError(err, "failed to remove from wishlist")
	}
	if !removed {
		return newError(ErrNotFound, "listing is not in your wishlist")
	}
	return nil
}

func (s *wishlistService) List(ctx context.Context, userID string) ([]models.WishlistEntry, error) {
	if userID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	entries, err := s.wishlists.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to list wishlist")
	}
	return entries, nil
}

func (s *wishlistService) NotifyListingSold(ctx context.Context, listingID utils.SixID) (int, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("WishlistService: listing %s not found, nothing to notify", listingID.String())
			return 0, nil
		}
		return 0, internalError(err, "failed to load listing")
	}
	entries, err := s.wishlists.ListByListing(ctx, listingID)
	if err != nil {
		return 0, internalError(err, "failed to load wishlist entries")
	}

	sent := 0
	for _, entry := range entries {
		if entry.UserID == listing.SellerID {
			continue
		}
		notification := &models.Notification{
			RecipientID: entry.UserID,
			ActorID:     listing.SellerID,
			Type:        models.NotificationTypeListingSold,
			Data: map[string]interface{}{
				"listingId": listingID.String(),
				"title":     listing.Title,
			},
			DedupeKey: ListingSoldDedupeKey(listingID, entry.UserID),
			CreatedAt: s.now(),
		}
		if err := s.notifications.Insert(ctx, notification); err != nil {
			if errors.Is(err, mongodb.ErrDuplicate) {
				continue
			}
			return sent, internalError(err, "failed to store listing_sold notification")
		}
		sent++
		if err := s.publisher.Publish(ctx, notification); err != nil {
			log.Printf("WishlistService: failed to publish notification %s: %v", notification.ID.String(), err)
		}
	}

	removed, err := s.wishlists.DeleteByListing(ctx, listingID)
	if err != nil {
		return sent, internalError(err, "failed to clear wishlist entries")
	}
	log.Printf("WishlistService: listing %s sold, notified %d user(s), cleared %d wishlist entries", listingID.String(), sent, removed)
	return sent, nil
}

// InlineSoldListingNotifier runs the wishlist fan-out in the calling goroutine.
// Used when the fan-out must finish before returning, as in tests and single-shot tooling.
type InlineSoldListingNotifier struct {
	Wishlists IWishlistService
}

func (n *InlineSoldListingNotifier) ListingSold(ctx context.Context, listingID utils.SixID) error {
	_, err := n.Wishlists.NotifyListingSold(ctx, listingID)
	return err
}
