package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/shared/models"
)

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t)

	testCases := []struct {
		name string
		req  models.NewListingRequest
	}{
		{"missing name", models.NewListingRequest{Kind: models.ListingKindFixed, BasePrice: dec(1)}},
		{"unknown kind", models.NewListingRequest{Name: "Kale", Kind: "BARTER", BasePrice: dec(1)}},
		{"zero price", models.NewListingRequest{Name: "Kale", Kind: models.ListingKindFixed, BasePrice: decimal.Zero}},
		{"huge exponent price", models.NewListingRequest{Name: "Kale", Kind: models.ListingKindAuction, BasePrice: decimal.New(1, 40000000)}},
		{"too many decimals", models.NewListingRequest{Name: "Kale", Kind: models.ListingKindFixed, BasePrice: decimal.New(1, -20)}},
		{"negative stock", models.NewListingRequest{Name: "Kale", Kind: models.ListingKindFixed, BasePrice: dec(1), Stock: -1}},
		{"negative duration", models.NewListingRequest{Name: "Kale", Kind: models.ListingKindAuction, BasePrice: dec(1), DurationHours: -2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.svc.CreateListing(context.Background(), "seller", &req)
			assert.ErrorIs(t, err, ErrInvalidListing)
		})
	}
}

func TestCreateListingDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.CreateListing(ctx, "seller", &models.NewListingRequest{
		Name:          "  Carrots ",
		Kind:          models.ListingKindAuction,
		BasePrice:     decimal.RequireFromString("12.50"),
		DurationHours: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Carrots", l.Name)
	assert.Equal(t, models.ListingStatusOpen, l.Status)
	assert.True(t, l.CurrentPrice.Equal(l.BasePrice))
	assert.EqualValues(t, 1, l.Stock)
	require.NotNil(t, l.BiddingEndsAt)
	assert.True(t, f.clock.Now().Add(90*time.Minute).Equal(*l.BiddingEndsAt))

	state, err := f.svc.CurrentState(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, state.ListingID)
	assert.EqualValues(t, 1, state.Version)

	_, err = f.svc.CurrentState(ctx, "missing")
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestCloseListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.auction(t, "seller", 10)

	_, err := f.svc.CloseListing(ctx, l.ID, "someone")
	assert.ErrorIs(t, err, ErrNotOwner)

	closed, err := f.svc.CloseListing(ctx, l.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusClosed, closed.Status)

	_, err = f.svc.CloseListing(ctx, l.ID, "seller")
	assert.ErrorIs(t, err, ErrListingNotOpen)
}

func TestListListingsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.auction(t, "seller", 10)
	f.fixed(t, "seller", 5, 3)
	_, err := f.svc.CloseListing(ctx, a.ID, "seller")
	require.NoError(t, err)

	all, err := f.svc.ListListings(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.svc.ListListings(ctx, models.ListingStatusOpen, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ListingKindFixed, open[0].Kind)

	auctions, err := f.svc.ListListings(ctx, "", models.ListingKindAuction)
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, a.ID, auctions[0].ID)
}

func TestCartOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixed := f.fixed(t, "seller", 4, 5)
	auction := f.auction(t, "seller", 10)

	_, err := f.svc.AddToCart(ctx, "buyer", fixed.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.AddToCart(ctx, "buyer", auction.ID, 1)
	assert.ErrorIs(t, err, ErrNotFixedPrice)
	_, err = f.svc.AddToCart(ctx, "buyer", "missing", 1)
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = f.svc.AddToCart(ctx, "buyer", fixed.ID, 3)
	require.NoError(t, err)
	cart, err := f.svc.AddToCart(ctx, "buyer", fixed.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, cart.Quantity(fixed.ID))
	assert.Len(t, cart.Lines, 1)

	_, err = f.svc.AddToCart(ctx, "buyer", fixed.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	cart, err = f.svc.RemoveFromCart(ctx, "buyer", fixed.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	cart, err = f.svc.RemoveFromCart(ctx, "buyer", fixed.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	_, err = f.svc.Checkout(ctx, "buyer")
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.auction(t, "seller", 100)
	f.bid(t, l.ID, "alice", 140)

	repaired, err := f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)

	// simulate a cached price that drifted from the ledger
	drifted := f.listing(t, l.ID)
	drifted.CurrentPrice = dec(999)
	b := f.store.NewBatch()
	b.PutListing(drifted, drifted.Version)
	require.NoError(t, b.Commit())
	b.Close()

	repaired, err = f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.True(t, f.listing(t, l.ID).CurrentPrice.Equal(dec(140)))
	requirePriceInvariant(t, f.store, l.ID)

	ok, err := f.svc.ReconcileListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifyIsDurable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.Notify(ctx, "bob", "Welcome to the market", models.NotificationSystem)
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	got, err := f.svc.Notifications(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Welcome to the market", got[0].Message)
	assert.Equal(t, models.NotificationSystem, got[0].Category)
}
