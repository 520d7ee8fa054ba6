package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/utils"
)

func strPtr(v string) *string { return &v }

func TestUpdateListing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	listing := f.listing("seller", 100)

	updated, err := f.listingSvc.UpdateListing(ctx, "seller", listing.ID, ListingEdit{
		Title:  strPtr("  Carbon road bike "),
		Price:  amountPtr(120),
		Images: []string{"front.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Carbon road bike", updated.Title)
	assert.Equal(t, 120.0, updated.Price)
	assert.Equal(t, []string{"front.jpg"}, updated.Images)

	stored := f.listings.get(listing.ID)
	assert.Equal(t, 120.0, stored.Price)
	assert.Equal(t, "", stored.Description, "fields left out are kept")
}

func TestUpdateListing_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	listing := f.listing("seller", 100)

	_, err := f.listingSvc.UpdateListing(ctx, "", listing.ID, ListingEdit{Price: amountPtr(90)})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.listingSvc.UpdateListing(ctx, "stranger", listing.ID, ListingEdit{Price: amountPtr(90)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.listingSvc.UpdateListing(ctx, "seller", utils.NewSixID(), ListingEdit{Price: amountPtr(90)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.listingSvc.UpdateListing(ctx, "seller", listing.ID, ListingEdit{Price: amountPtr(0)})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.listingSvc.UpdateListing(ctx, "seller", listing.ID, ListingEdit{Title: strPtr("   ")})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, _ = f.listings.MarkSold(ctx, listing.ID, utils.NewSixID(), utcNow())
	_, err = f.listingSvc.UpdateListing(ctx, "seller", listing.ID, ListingEdit{Price: amountPtr(90)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "sold listings cannot be updated")
	assert.Equal(t, 100.0, f.listings.get(listing.ID).Price)
}

func TestDeleteListing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	listing := f.listing("seller", 100)
	offer, err := f.offerSvc.CreateOffer(ctx, "buyer", listing.ID, 85)
	require.NoError(t, err)
	_, _ = f.wishlists.Upsert(ctx, "fan", listing.ID, utcNow())

	require.NoError(t, f.listingSvc.DeleteListing(ctx, "seller", listing.ID))

	assert.Nil(t, f.listings.get(listing.ID))
	declined := f.offers.get(offer.ID)
	assert.Equal(t, negotiation.StatusDeclined, declined.Status)
	assert.False(t, declined.Live)
	assert.Empty(t, f.wishlists.entries)

	err = f.listingSvc.DeleteListing(ctx, "seller", listing.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteListing_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	listing, _ := acceptedOffer(t, f, 100, 85)

	assert.ErrorIs(t, f.listingSvc.DeleteListing(ctx, "", listing.ID), ErrUnauthorized)
	assert.ErrorIs(t, f.listingSvc.DeleteListing(ctx, "buyer", listing.ID), ErrForbidden)

	err := f.listingSvc.DeleteListing(ctx, "seller", listing.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "listing has an accepted offer awaiting payment")

	sold := f.listing("seller", 50)
	_, _ = f.listings.MarkSold(ctx, sold.ID, utils.NewSixID(), utcNow())
	err = f.listingSvc.DeleteListing(ctx, "seller", sold.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotNil(t, f.listings.get(sold.ID))
	assert.Equal(t, models.ListingStatusSold, f.listings.get(sold.ID).Status)
	f.retrier.AssertNotCalled(t, "RetryDeclineCompeting", mock.Anything, mock.Anything, mock.Anything)
}
