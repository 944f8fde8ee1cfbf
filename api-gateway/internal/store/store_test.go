package store

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/shared/models"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open("", append(opts, WithInMemory())...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newListing(id string) *models.Listing {
	now := time.Now().UTC()
	return &models.Listing{
		ID:           id,
		SellerID:     "seller-1",
		Name:         "Tomatoes",
		Kind:         models.ListingKindAuction,
		BasePrice:    decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(100),
		Stock:        1,
		Status:       models.ListingStatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func commit(t *testing.T, s *Store, stage func(b *Batch)) error {
	t.Helper()
	b := s.NewBatch()
	defer b.Close()
	stage(b)
	return b.Commit()
}

func TestListingVersioning(t *testing.T) {
	s := openTestStore(t)

	l := newListing("l-1")
	require.NoError(t, commit(t, s, func(b *Batch) { b.PutListing(l, 0) }))

	got, err := s.GetListing("l-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(100)))

	// creating it again must fail: the stored version is no longer zero
	err = commit(t, s, func(b *Batch) { b.PutListing(newListing("l-1"), 0) })
	assert.ErrorIs(t, err, ErrVersionConflict)

	next := got.Clone()
	next.CurrentPrice = decimal.NewFromInt(120)
	require.NoError(t, commit(t, s, func(b *Batch) { b.PutListing(next, got.Version) }))

	// a writer that read version 1 loses
	stale := got.Clone()
	stale.CurrentPrice = decimal.NewFromInt(130)
	err = commit(t, s, func(b *Batch) { b.PutListing(stale, got.Version) })
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err = s.GetListing("l-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(120)))
}

func TestGetListingNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetListing("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBidLedger(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	bids := []*models.Bid{
		{ID: "b-1", ListingID: "l-1", BidderID: "alice", Amount: decimal.NewFromInt(110), Timestamp: base},
		{ID: "b-2", ListingID: "l-1", BidderID: "bob", Amount: decimal.NewFromInt(130), Timestamp: base.Add(time.Second)},
		{ID: "b-3", ListingID: "l-1", BidderID: "alice", Amount: decimal.NewFromInt(150), Timestamp: base.Add(2 * time.Second)},
		{ID: "b-4", ListingID: "l-10", BidderID: "alice", Amount: decimal.NewFromInt(999), Timestamp: base},
	}
	require.NoError(t, commit(t, s, func(b *Batch) {
		for _, bid := range bids {
			b.PutBid(bid)
		}
	}))

	listed, err := s.BidsForListing("l-1")
	require.NoError(t, err)
	require.Len(t, listed, 3, "bids of l-10 must not leak into l-1")
	assert.Equal(t, "b-1", listed[0].ID)

	best, err := s.HighestBid("l-1")
	require.NoError(t, err)
	assert.Equal(t, "b-3", best.ID)

	got, err := s.GetBid("b-2")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.BidderID)

	mine, err := s.BidsByBidder("alice")
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	require.NoError(t, commit(t, s, func(b *Batch) { b.DeleteBid(bids[2]) }))

	best, err = s.HighestBid("l-1")
	require.NoError(t, err)
	assert.Equal(t, "b-2", best.ID)

	_, err = s.GetBid("b-3")
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := s.HighestBid("l-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestOrdersIndexedForBothParties(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	first := &models.Order{ID: "o-1", ListingID: "l-1", BuyerID: "bob", SellerID: "sam", Quantity: 1, Status: models.OrderStatusPending, CreatedAt: now}
	second := &models.Order{ID: "o-2", ListingID: "l-2", BuyerID: "bob", SellerID: "sue", Quantity: 2, Status: models.OrderStatusPending, CreatedAt: now.Add(time.Minute)}
	require.NoError(t, commit(t, s, func(b *Batch) {
		b.PutOrder(first)
		b.PutOrder(second)
	}))

	bobs, err := s.OrdersForUser("bob")
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, "o-2", bobs[0].ID)

	sams, err := s.OrdersForUser("sam")
	require.NoError(t, err)
	require.Len(t, sams, 1)
	assert.Equal(t, "o-1", sams[0].ID)
}

func TestNotificationsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	require.NoError(t, commit(t, s, func(b *Batch) {
		for i := 0; i < 5; i++ {
			b.PutNotification(&models.Notification{
				UserID:    "sam",
				Message:   string(rune('a' + i)),
				Category:  models.NotificationBid,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
		}
		b.PutNotification(&models.Notification{UserID: "other", Message: "x"})
	}))

	got, err := s.Notifications("sam", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].Message)
	assert.Equal(t, "c", got[2].Message)

	all, err := s.Notifications("sam", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestCartRoundTrip(t *testing.T) {
	s := openTestStore(t)

	empty, err := s.GetCart("bob")
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)

	require.NoError(t, commit(t, s, func(b *Batch) {
		b.PutCart(&models.Cart{BuyerID: "bob", Lines: []models.CartLine{{ListingID: "l-1", Quantity: 2}}})
	}))
	c, err := s.GetCart("bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.Quantity("l-1"))

	require.NoError(t, commit(t, s, func(b *Batch) { b.DeleteCart("bob") }))
	c, err = s.GetCart("bob")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestCommitHookFailureAppliesNothing(t *testing.T) {
	fail := false
	s := openTestStore(t, WithCommitHook(func() error {
		if fail {
			return errors.New("disk on fire")
		}
		return nil
	}))

	l := newListing("l-1")
	require.NoError(t, commit(t, s, func(b *Batch) { b.PutListing(l, 0) }))

	fail = true
	next := l.Clone()
	next.CurrentPrice = decimal.NewFromInt(200)
	err := commit(t, s, func(b *Batch) {
		b.PutListing(next, 1)
		b.PutBid(&models.Bid{ID: "b-1", ListingID: "l-1", BidderID: "alice", Amount: decimal.NewFromInt(200)})
		b.AppendEvent(&models.Event{Type: models.EventBidUpdate, ListingID: "l-1"})
	})
	require.Error(t, err)

	got, err := s.GetListing("l-1")
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(100)))
	best, err := s.HighestBid("l-1")
	require.NoError(t, err)
	assert.Nil(t, best)
	n, err := s.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxLifecycle(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-time.Hour).UTC()

	require.NoError(t, commit(t, s, func(b *Batch) {
		for i := 0; i < 3; i++ {
			b.AppendEvent(&models.Event{Type: models.EventBidUpdate, ListingID: "l-1", OccurredAt: old})
		}
	}))

	var seqs []uint64
	require.NoError(t, s.ScanPending(0, func(rec *OutboxRecord) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, seqs)

	var limited int
	require.NoError(t, s.ScanPending(2, func(*OutboxRecord) error {
		limited++
		return nil
	}))
	assert.Equal(t, 2, limited)

	require.NoError(t, s.ScanPending(0, func(rec *OutboxRecord) error {
		return s.UpdateOutbox(rec, OutboxAcked)
	}))
	n, err := s.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	pruned, err := s.PruneAcked(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, pruned, "newest record is kept")

	last, err := s.lastOutboxSeq()
	require.NoError(t, err)
	assert.EqualValues(t, 3, last)
}

func TestOutboxStateString(t *testing.T) {
	assert.Equal(t, "NEW", OutboxNew.String())
	assert.Equal(t, "ACKED", OutboxAcked.String())
	assert.Equal(t, "UNKNOWN", OutboxState(42).String())
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("bid0"), prefixUpperBound([]byte("bid/")))
	assert.Equal(t, []byte("b"), prefixUpperBound([]byte{'a', 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff}))
}
