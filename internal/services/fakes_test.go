package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/payment"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

// In-memory repositories with the same conditional semantics as the Mongo ones.

type fakeOfferRepo struct {
	mu     sync.Mutex
	offers map[utils.SixID]models.Offer

	// beforeUpdate runs inside Update before the version check; tests use it to simulate a concurrent writer.
	beforeUpdate  func(id utils.SixID)
	declineErr    error
	declineCalls  int
	markPaidCalls int
}

func newFakeOfferRepo() *fakeOfferRepo {
	return &fakeOfferRepo{offers: map[utils.SixID]models.Offer{}}
}

func cloneOffer(o models.Offer) *models.Offer {
	o.History = append([]models.HistoryEntry(nil), o.History...)
	return &o
}

func (r *fakeOfferRepo) Insert(ctx context.Context, offer *models.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offer.Live {
		for _, o := range r.offers {
			if o.Live && o.ListingID == offer.ListingID && o.BuyerID == offer.BuyerID {
				return fmt.Errorf("%w: live offer", mongodb.ErrDuplicate)
			}
		}
	}
	offer.GenIDIfEmpty()
	r.offers[offer.ID] = *cloneOffer(*offer)
	return nil
}

func (r *fakeOfferRepo) FindByID(ctx context.Context, id utils.SixID) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return cloneOffer(o), nil
}

func (r *fakeOfferRepo) FindLive(ctx context.Context, listingID utils.SixID, buyerID string) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers {
		if o.Live && o.ListingID == listingID && o.BuyerID == buyerID {
			return cloneOffer(o), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeOfferRepo) FindBySessionRef(ctx context.Context, sessionRef string) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers {
		if o.CheckoutSessionRef == sessionRef {
			return cloneOffer(o), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeOfferRepo) List(ctx context.Context, filter mongodb.OfferFilter) ([]models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Offer{}
	for _, o := range r.offers {
		if filter.BuyerID != "" && o.BuyerID != filter.BuyerID {
			continue
		}
		if filter.SellerID != "" && o.SellerID != filter.SellerID {
			continue
		}
		if filter.ListingID != nil && o.ListingID != *filter.ListingID {
			continue
		}
		out = append(out, *cloneOffer(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeOfferRepo) FindAccepted(ctx context.Context, listingID utils.SixID) ([]models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Offer{}
	for _, o := range r.offers {
		if o.ListingID != listingID || o.Status != negotiation.StatusAccepted {
			continue
		}
		if o.PaymentStatus == models.PaymentStatusFailed || o.PaymentStatus == models.PaymentStatusCancelled {
			continue
		}
		out = append(out, *cloneOffer(o))
	}
	return out, nil
}

func (r *fakeOfferRepo) Update(ctx context.Context, offer *models.Offer) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate(offer.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.offers[offer.ID]
	if !ok || stored.Version != offer.Version {
		return fmt.Errorf("%w: offer %s", mongodb.ErrVersionConflict, offer.ID.String())
	}
	offer.Version++
	r.offers[offer.ID] = *cloneOffer(*offer)
	return nil
}

func (r *fakeOfferRepo) DeclineLiveExcept(ctx context.Context, listingID, exceptID utils.SixID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declineCalls++
	if r.declineErr != nil {
		return 0, r.declineErr
	}
	var n int64
	for id, o := range r.offers {
		if id == exceptID || o.ListingID != listingID || !o.Status.IsLive() {
			continue
		}
		o.Status = negotiation.StatusDeclined
		o.LastActionBy = negotiation.RoleSeller
		o.Live = false
		o.Version++
		o.UpdatedAt = at
		o.History = append(o.History, models.HistoryEntry{Actor: negotiation.RoleSeller, Action: negotiation.ActionDecline, Amount: o.Amount, Timestamp: at})
		r.offers[id] = o
		n++
	}
	return n, nil
}

func (r *fakeOfferRepo) RecordCheckout(ctx context.Context, id utils.SixID, sessionRef string, at time.Time) (*models.Offer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	if !ok || o.Status != negotiation.StatusAccepted || o.PaymentStatus == models.PaymentStatusPaid {
		return nil, false, nil
	}
	o.CheckoutSessionRef = sessionRef
	o.PaymentStatus = models.PaymentStatusProcessing
	o.CheckoutStartedAt = &at
	o.UpdatedAt = at
	o.Version++
	r.offers[id] = o
	return cloneOffer(o), true, nil
}

func (r *fakeOfferRepo) MarkPaid(ctx context.Context, id utils.SixID, sessionRef, paymentIntentRef string, at time.Time) (*models.Offer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markPaidCalls++
	o, ok := r.offers[id]
	if !ok || o.Status != negotiation.StatusAccepted || o.PaymentStatus == models.PaymentStatusPaid {
		return nil, false, nil
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.PaidAt = &at
	o.UpdatedAt = at
	if sessionRef != "" {
		o.CheckoutSessionRef = sessionRef
	}
	if paymentIntentRef != "" {
		o.PaymentIntentRef = paymentIntentRef
	}
	o.Version++
	r.offers[id] = o
	return cloneOffer(o), true, nil
}

func (r *fakeOfferRepo) SetPaymentStatus(ctx context.Context, sessionRef string, from []models.PaymentStatus, status models.PaymentStatus, at time.Time) (*models.Offer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range r.offers {
		if o.CheckoutSessionRef != sessionRef {
			continue
		}
		for _, f := range from {
			if o.PaymentStatus == f {
				o.PaymentStatus = status
				o.UpdatedAt = at
				o.Version++
				r.offers[id] = o
				return cloneOffer(o), true, nil
			}
		}
	}
	return nil, false, nil
}

func (r *fakeOfferRepo) ListStaleCheckouts(ctx context.Context, startedBefore time.Time, limit int64) ([]models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Offer{}
	for _, o := range r.offers {
		if o.PaymentStatus == models.PaymentStatusProcessing && o.CheckoutStartedAt != nil && o.CheckoutStartedAt.Before(startedBefore) {
			out = append(out, *cloneOffer(o))
		}
	}
	return out, nil
}

// put stores an offer as is, bypassing the live check.
func (r *fakeOfferRepo) put(o *models.Offer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.GenIDIfEmpty()
	r.offers[o.ID] = *cloneOffer(*o)
}

func (r *fakeOfferRepo) get(id utils.SixID) models.Offer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *cloneOffer(r.offers[id])
}

type fakeListingRepo struct {
	mu            sync.Mutex
	listings      map[utils.SixID]models.Listing
	soldCalls     int
	notifiedCalls int
	markErr       error
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{listings: map[utils.SixID]models.Listing{}}
}

func (r *fakeListingRepo) Create(ctx context.Context, listing *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing.GenIDIfEmpty()
	r.listings[listing.ID] = *listing
	return nil
}

func (r *fakeListingRepo) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &l, nil
}

func (r *fakeListingRepo) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Listing{}
	for _, l := range r.listings {
		if l.SellerID == sellerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeListingRepo) Update(ctx context.Context, id utils.SixID, update mongodb.ListingUpdate, at time.Time) (*models.Listing, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Status != models.ListingStatusActive {
		return nil, false, nil
	}
	if update.Title != nil {
		l.Title = *update.Title
	}
	if update.Description != nil {
		l.Description = *update.Description
	}
	if update.Price != nil {
		l.Price = *update.Price
	}
	if update.Images != nil {
		l.Images = update.Images
	}
	l.UpdatedAt = at
	r.listings[id] = l
	return &l, true, nil
}

func (r *fakeListingRepo) Delete(ctx context.Context, id utils.SixID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Status != models.ListingStatusActive {
		return false, nil
	}
	delete(r.listings, id)
	return true, nil
}

func (r *fakeListingRepo) MarkSold(ctx context.Context, id, offerID utils.SixID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	l, ok := r.listings[id]
	if !ok || l.Status != models.ListingStatusActive {
		return false, nil
	}
	l.Status = models.ListingStatusSold
	l.SoldOfferID = &offerID
	l.SoldNotified = false
	l.SoldNoticeClaimedAt = &at
	l.SoldAt = &at
	r.listings[id] = l
	r.soldCalls++
	return true, nil
}

func (r *fakeListingRepo) ClaimSoldNotice(ctx context.Context, id utils.SixID, at, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Status != models.ListingStatusSold || l.SoldNotified {
		return false, nil
	}
	if l.SoldNoticeClaimedAt != nil && !l.SoldNoticeClaimedAt.Before(staleBefore) {
		return false, nil
	}
	l.SoldNoticeClaimedAt = &at
	r.listings[id] = l
	return true, nil
}

func (r *fakeListingRepo) ReleaseSoldNotice(ctx context.Context, id utils.SixID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listings[id]; ok {
		l.SoldNoticeClaimedAt = nil
		r.listings[id] = l
	}
	return nil
}

func (r *fakeListingRepo) MarkSoldNotified(ctx context.Context, id utils.SixID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil
	}
	l.SoldNotified = true
	l.SoldNoticeClaimedAt = nil
	r.listings[id] = l
	r.notifiedCalls++
	return nil
}

// get returns a copy of the stored listing, or nil.
func (r *fakeListingRepo) get(id utils.SixID) *models.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil
	}
	return &l
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []models.Message
	err      error
}

func (r *fakeMessageRepo) Insert(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	message.GenIDIfEmpty()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *fakeMessageRepo) ListInvolving(ctx context.Context, userID string, limit int64) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Message{}
	for i := len(r.messages) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		m := r.messages[i]
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Message{}
	for _, m := range r.messages {
		if (m.SenderID == userID && m.ReceiverID == otherUserID) || (m.SenderID == otherUserID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkThreadRead(ctx context.Context, userID, otherUserID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.SenderID == otherUserID && m.ReceiverID == userID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []models.Notification
	err           error
	// failAfter makes Insert fail once this many notifications are stored; 0 disables it.
	failAfter int
}

func (r *fakeNotificationRepo) Insert(ctx context.Context, notification *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.failAfter > 0 && len(r.notifications) >= r.failAfter {
		return errors.New("store unavailable")
	}
	if notification.DedupeKey != "" {
		for _, n := range r.notifications {
			if n.DedupeKey == notification.DedupeKey {
				return fmt.Errorf("%w: notification %s", mongodb.ErrDuplicate, notification.DedupeKey)
			}
		}
	}
	notification.GenIDIfEmpty()
	r.notifications = append(r.notifications, *notification)
	return nil
}

func (r *fakeNotificationRepo) List(ctx context.Context, recipientID string, unreadOnly bool, limit int64) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Notification{}
	for i := len(r.notifications) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		n := r.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, recipientID string, ids []utils.SixID, read bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[utils.SixID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var changed int64
	for i := range r.notifications {
		n := &r.notifications[i]
		if n.RecipientID != recipientID || n.Read == read {
			continue
		}
		if ids != nil && !want[n.ID] {
			continue
		}
		n.Read = read
		changed++
	}
	return changed, nil
}

func (r *fakeNotificationRepo) byType(t models.NotificationType) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Notification{}
	for _, n := range r.notifications {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fakeWishlistRepo struct {
	mu      sync.Mutex
	entries []models.WishlistEntry
}

func (r *fakeWishlistRepo) Upsert(ctx context.Context, userID string, listingID utils.SixID, at time.Time) (*models.WishlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID && e.ListingID == listingID {
			return &e, nil
		}
	}
	e := models.WishlistEntry{UserID: userID, ListingID: listingID, CreatedAt: at}
	e.GenID()
	r.entries = append(r.entries, e)
	return &e, nil
}

func (r *fakeWishlistRepo) Delete(ctx context.Context, userID string, listingID utils.SixID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.UserID == userID && e.ListingID == listingID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeWishlistRepo) filter(keep func(models.WishlistEntry) bool) []models.WishlistEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.WishlistEntry{}
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeWishlistRepo) ListByUser(ctx context.Context, userID string) ([]models.WishlistEntry, error) {
	return r.filter(func(e models.WishlistEntry) bool { return e.UserID == userID }), nil
}

func (r *fakeWishlistRepo) ListByListing(ctx context.Context, listingID utils.SixID) ([]models.WishlistEntry, error) {
	return r.filter(func(e models.WishlistEntry) bool { return e.ListingID == listingID }), nil
}

func (r *fakeWishlistRepo) DeleteByListing(ctx context.Context, listingID utils.SixID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.ListingID == listingID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

// Mocks

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*payment.CheckoutSession)
	return session, args.Error(1)
}

func (m *MockProvider) RetrieveSession(ctx context.Context, sessionRef string) (*payment.SessionStatus, error) {
	args := m.Called(ctx, sessionRef)
	status, _ := args.Get(0).(*payment.SessionStatus)
	return status, args.Error(1)
}

func (m *MockProvider) ParseWebhook(payload []byte, signatureHeader string) (*payment.Event, error) {
	args := m.Called(payload, signatureHeader)
	event, _ := args.Get(0).(*payment.Event)
	return event, args.Error(1)
}

type MockSoldNotifier struct {
	mock.Mock
}

func (m *MockSoldNotifier) ListingSold(ctx context.Context, listingID utils.SixID) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

type MockRetrier struct {
	mock.Mock
}

func (m *MockRetrier) RetryDeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) error {
	args := m.Called(ctx, listingID, acceptedOfferID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// fixture wires every service against the fakes.
type fixture struct {
	offers        *fakeOfferRepo
	listings      *fakeListingRepo
	messages      *fakeMessageRepo
	notifications *fakeNotificationRepo
	wishlists     *fakeWishlistRepo
	publisher     *MockPublisher
	provider      *MockProvider
	retrier       *MockRetrier

	offerSvc    IOfferService
	wishlistSvc IWishlistService
	listingSvc  IListingService
	messageSvc  IMessageService
}

func newFixture() *fixture {
	f := &fixture{
		offers:        newFakeOfferRepo(),
		listings:      newFakeListingRepo(),
		messages:      &fakeMessageRepo{},
		notifications: &fakeNotificationRepo{},
		wishlists:     &fakeWishlistRepo{},
		publisher:     &MockPublisher{},
		provider:      &MockProvider{},
		retrier:       &MockRetrier{},
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	dispatcher := NewNotificationDispatcher(f.messages, f.notifications, f.publisher)
	f.offerSvc = NewOfferService(f.offers, f.listings, dispatcher, f.retrier)
	f.wishlistSvc = NewWishlistService(f.wishlists, f.listings, f.notifications, f.publisher)
	f.listingSvc = NewListingService(f.listings, f.offers, f.wishlists)
	f.messageSvc = NewMessageService(f.messages, f.listings, f.notifications, f.publisher)
	return f
}

func (f *fixture) listing(sellerID string, price float64) *models.Listing {
	l := &models.Listing{SellerID: sellerID, Title: "Road bike", Price: price, Status: models.ListingStatusActive}
	_ = f.listings.Create(context.Background(), l)
	return l
}
