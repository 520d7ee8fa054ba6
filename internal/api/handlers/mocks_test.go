package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, sellerID, title, description string, price float64, images []string) (*models.Listing, error) {
	args := m.Called(ctx, sellerID, title, description, price, images)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) UpdateListing(ctx context.Context, sellerID string, listingID utils.SixID, edit services.ListingEdit) (*models.Listing, error) {
	args := m.Called(ctx, sellerID, listingID, edit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) DeleteListing(ctx context.Context, sellerID string, listingID utils.SixID) error {
	args := m.Called(ctx, sellerID, listingID)
	return args.Error(0)
}

// MockOfferService
type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) CreateOffer(ctx context.Context, buyerID string, listingID utils.SixID, amount float64) (*models.Offer, error) {
	args := m.Called(ctx, buyerID, listingID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) RespondToOffer(ctx context.Context, callerID string, offerID utils.SixID, action negotiation.Action, amount *float64) (*models.Offer, error) {
	args := m.Called(ctx, callerID, offerID, action, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) GetOffer(ctx context.Context, callerID string, offerID utils.SixID) (*models.Offer, error) {
	args := m.Called(ctx, callerID, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) ListOffers(ctx context.Context, callerID string, role negotiation.Role, listingID *utils.SixID) ([]models.Offer, error) {
	args := m.Called(ctx, callerID, role, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Offer), args.Error(1)
}

func (m *MockOfferService) DeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) (int64, error) {
	args := m.Called(ctx, listingID, acceptedOfferID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPaymentReconciler
type MockPaymentReconciler struct {
	mock.Mock
}

func (m *MockPaymentReconciler) InitiateCheckout(ctx context.Context, callerID string, offerID utils.SixID) (*services.CheckoutResult, error) {
	args := m.Called(ctx, callerID, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CheckoutResult), args.Error(1)
}

func (m *MockPaymentReconciler) ReconcileCompletion(ctx context.Context, sessionRef, paymentIntentRef, clientReferenceID string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, sessionRef, paymentIntentRef, clientReferenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReconcileResult), args.Error(1)
}

func (m *MockPaymentReconciler) ReconcileFailure(ctx context.Context, sessionRef string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, sessionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReconcileResult), args.Error(1)
}

func (m *MockPaymentReconciler) ReconcileExpiry(ctx context.Context, sessionRef string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, sessionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReconcileResult), args.Error(1)
}

func (m *MockPaymentReconciler) Verify(ctx context.Context, callerID, sessionRef string) (*services.VerifyResult, error) {
	args := m.Called(ctx, callerID, sessionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VerifyResult), args.Error(1)
}

func (m *MockPaymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	args := m.Called(ctx, payload, signatureHeader)
	return args.Error(0)
}

func (m *MockPaymentReconciler) SweepStaleCheckouts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockWishlistService
type MockWishlistService struct {
	mock.Mock
}

func (m *MockWishlistService) Add(ctx context.Context, userID string, listingID utils.SixID) (*models.WishlistEntry, error) {
	args := m.Called(ctx, userID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WishlistEntry), args.Error(1)
}

func (m *MockWishlistService) Remove(ctx context.Context, userID string, listingID utils.SixID) error {
	args := m.Called(ctx, userID, listingID)
	return args.Error(0)
}

func (m *MockWishlistService) List(ctx context.Context, userID string) ([]models.WishlistEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WishlistEntry), args.Error(1)
}

func (m *MockWishlistService) NotifyListingSold(ctx context.Context, listingID utils.SixID) (int, error) {
	args := m.Called(ctx, listingID)
	return args.Int(0), args.Error(1)
}

// MockNotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, userID string, ids []utils.SixID, read bool) (int64, error) {
	args := m.Called(ctx, userID, ids, read)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) Send(ctx context.Context, senderID, receiverID string, listingID *utils.SixID, content string) (*models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, listingID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) ListConversations(ctx context.Context, userID string) ([]services.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.Conversation), args.Error(1)
}

func (m *MockMessageService) ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, otherUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
