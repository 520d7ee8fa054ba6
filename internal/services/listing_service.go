package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, sellerID, title, description string, price float64, images []string) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error)
	UpdateListing(ctx context.Context, sellerID string, listingID utils.SixID, edit ListingEdit) (*models.Listing, error)
	DeleteListing(ctx context.Context, sellerID string, listingID utils.SixID) error
}

// ListingEdit carries the fields a seller may change. Nil fields are kept.
type ListingEdit struct {
	Title       *string
	Description *string
	Price       *float64
	Images      []string
}

// listingService implements IListingService.
type listingService struct {
	listings  mongodb.ListingRepository
	offers    mongodb.OfferRepository
	wishlists mongodb.WishlistRepository
	now       func() time.Time
}

// NewListingService creates a new ListingService.
func NewListingService(listings mongodb.ListingRepository, offers mongodb.OfferRepository, wishlists mongodb.WishlistRepository) IListingService {
	return &listingService{listings: listings, offers: offers, wishlists: wishlists, now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// CreateListing creates an active listing owned by sellerID.
func (s *listingService) CreateListing(ctx context.Context, sellerID, title, description string, price float64, images []string) (*models.Listing, error) {
	if sellerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, newError(ErrBadRequest, "title is required")
	}
	if price <= 0 {
		return nil, newError(ErrBadRequest, "price must be positive")
	}
	if images == nil {
		images = []string{}
	}

	now := s.now()
	listing := &models.Listing{
		SellerID:    sellerID,
		Title:       title,
		Description: description,
		Price:       price,
		Images:      images,
		Status:      models.ListingStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, internalError(err, "failed to create listing")
	}
	return listing, nil
}

// FindListingByID returns the listing or an ErrNotFound error.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newError(ErrNotFound, "listing not found")
		}
		return nil, internalError(err, "failed to load listing")
	}
	return listing, nil
}

func (s *listingService) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	listings, err := s.listings.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, internalError(err, "failed to list listings")
	}
	return listings, nil
}

// ownedListing loads the listing and checks that sellerID owns it and it is still for sale.
func (s *listingService) ownedListing(ctx context.Context, sellerID string, listingID utils.SixID, verb string) (*models.Listing, error) {
	if sellerID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	listing, err := s.FindListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, newError(ErrForbidden, "only the seller can %s this listing", verb)
	}
	if listing.IsSold() {
		return nil, newError(ErrInvalidTransition, "sold listings cannot be %sd", verb)
	}
	return listing, nil
}

// UpdateListing edits an active listing. Offers already made keep their amounts; later
// counters are checked against the new price.
func (s *listingService) UpdateListing(ctx context.Context, sellerID string, listingID utils.SixID, edit ListingEdit) (*models.Listing, error) {
	if _, err := s.ownedListing(ctx, sellerID, listingID, "update"); err != nil {
		return nil, err
	}

	update := mongodb.ListingUpdate{Description: edit.Description, Price: edit.Price, Images: edit.Images}
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			return nil, newError(ErrBadRequest, "title is required")
		}
		update.Title = &title
	}
	if edit.Price != nil && *edit.Price <= 0 {
		return nil, newError(ErrBadRequest, "price must be positive")
	}

	listing, ok, err := s.listings.Update(ctx, listingID, update, s.now())
	if err != nil {
		return nil, internalError(err, "failed to update listing")
	}
	if !ok {
		// Sold or deleted since it was loaded.
		return nil, newError(ErrInvalidTransition, "listing is no longer for sale")
	}
	log.Printf("ListingService: listing %s updated by %s", listingID.String(), sellerID)
	return listing, nil
}

// DeleteListing removes an active listing that no accepted offer is waiting to pay for.
// Its live offers are declined and its wishlist entries dropped.
func (s *listingService) DeleteListing(ctx context.Context, sellerID string, listingID utils.SixID) error {
	if _, err := s.ownedListing(ctx, sellerID, listingID, "delete"); err != nil {
		return err
	}
	holder, err := findAcceptedHolder(ctx, s.offers, listingID, utils.SixID{})
	if err != nil {
		return err
	}
	if holder != nil {
		return newError(ErrInvalidTransition, "listing has an accepted offer awaiting payment")
	}

	deleted, err := s.listings.Delete(ctx, listingID)
	if err != nil {
		return internalError(err, "failed to delete listing")
	}
	if !deleted {
		return newError(ErrInvalidTransition, "listing is no longer for sale")
	}
	log.Printf("ListingService: listing %s deleted by %s", listingID.String(), sellerID)

	now := s.now()
	if n, err := s.offers.DeclineLiveExcept(ctx, listingID, utils.SixID{}, now); err != nil {
		log.Printf("ListingService: failed to decline offers on deleted listing %s: %v", listingID.String(), err)
	} else if n > 0 {
		log.Printf("ListingService: declined %d offer(s) on deleted listing %s", n, listingID.String())
	}
	if _, err := s.wishlists.DeleteByListing(ctx, listingID); err != nil {
		log.Printf("ListingService: failed to drop wishlist entries for deleted listing %s: %v", listingID.String(), err)
	}
	return nil
}
