package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/models"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*models.Event
	states []*models.ListingState
	err    error
	delay  func(*models.Event) time.Duration
}

func (f *fakeBroadcaster) PublishListingEvent(_ context.Context, _ string, ev *models.Event) error {
	if f.delay != nil {
		time.Sleep(f.delay(ev))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeBroadcaster) MirrorState(_ context.Context, state *models.ListingState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return true, f.err
}

func (f *fakeBroadcaster) eventTypes() []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventType
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *BiddingService
	store *store.Store
	bcast *fakeBroadcaster
	clock *testClock
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	st, err := store.Open("", append(opts, store.WithInMemory())...)
	require.NoError(t, err)

	f := &fixture{
		store: st,
		bcast: &fakeBroadcaster{},
		clock: &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewBiddingService(st, WithBroadcaster(f.bcast), WithClock(f.clock.Now))
	t.Cleanup(func() {
		f.svc.Wait()
		_ = st.Close()
	})
	return f
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func (f *fixture) auction(t *testing.T, seller string, base int64) *models.Listing {
	t.Helper()
	l, err := f.svc.CreateListing(context.Background(), seller, &models.NewListingRequest{
		Name:      "Heirloom tomatoes",
		Kind:      models.ListingKindAuction,
		BasePrice: dec(base),
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) fixed(t *testing.T, seller string, price, stock int64) *models.Listing {
	t.Helper()
	l, err := f.svc.CreateListing(context.Background(), seller, &models.NewListingRequest{
		Name:      "Potatoes",
		Kind:      models.ListingKindFixed,
		BasePrice: dec(price),
		Stock:     stock,
		UnitSize:  "1kg",
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) listing(t *testing.T, id string) *models.Listing {
	t.Helper()
	l, err := f.store.GetListing(id)
	require.NoError(t, err)
	return l
}

func (f *fixture) bid(t *testing.T, listingID, bidder string, amount int64) *models.Bid {
	t.Helper()
	res, err := f.svc.PlaceBid(context.Background(), listingID, bidder, dec(amount))
	require.NoError(t, err)
	return res.Bid
}

// requirePriceInvariant checks that the cached price is the max of the base
// price and the active bids.
func requirePriceInvariant(t require.TestingT, st *store.Store, listingID string) {
	l, err := st.GetListing(listingID)
	require.NoError(t, err)
	bids, err := st.BidsForListing(listingID)
	require.NoError(t, err)

	want := l.BasePrice
	for _, b := range bids {
		if b.Amount.GreaterThan(want) {
			want = b.Amount
		}
	}
	require.True(t, l.CurrentPrice.Equal(want), "cached %s, ledger %s", l.CurrentPrice, want)
}
