package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/lock"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/metrics"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

// BiddingService is the single write path for listings, bids, orders and
// carts. Every mutation of a listing runs under that listing's lock and is
// committed as one store batch.
type BiddingService struct {
	store       *store.Store
	locks       *lock.Locker
	broadcaster Broadcaster
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	inflight sync.WaitGroup
	queueMu  sync.Mutex
	queues   map[string][]*models.Event
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithBroadcaster sets where committed events are published
func WithBroadcaster(b Broadcaster) Option {
	return func(s *BiddingService) { s.broadcaster = b }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(s *BiddingService) { s.logger = l }
}

// WithMetrics sets the metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// NewBiddingService creates a new bidding service
func NewBiddingService(st *store.Store, opts ...Option) *BiddingService {
	s := &BiddingService{
		store:       st,
		locks:       lock.New(),
		broadcaster: nopBroadcaster{},
		logger:      logging.NewNopLogger(),
		metrics:     metrics.NopMetrics(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BidResult is the outcome of an accepted bid
type BidResult struct {
	Bid           *models.Bid     `json:"bid"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
}

// PlaceBid handles the complete bid placement workflow:
// 1. Validate the amount
// 2. Take the listing's lock and re-read the live price
// 3. Commit price, ledger entry, seller notification and outbox event together
// 4. Publish the bid_update event to the room (non-blocking, best effort)
func (s *BiddingService) PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (*BidResult, error) {
	// Business validation
	if !ValidAmount(amount) {
		s.metrics.Bids.With("result", "invalid").Add(1)
		return nil, ErrInvalidAmount
	}

	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l, err := s.getListing(listingID)
	if err != nil {
		return nil, err
	}
	if l.Kind != models.ListingKindAuction || l.Status != models.ListingStatusOpen {
		s.metrics.Bids.With("result", "not_open").Add(1)
		return nil, ErrListingNotOpen
	}

	// Ties lose: the first bid at a price owns it
	if !amount.GreaterThan(l.CurrentPrice) {
		s.metrics.Bids.With("result", "too_low").Add(1)
		s.logger.Debug("bid_rejected", "listing", listingID, "bidder", bidderID,
			"amount", amount.String(), "current", l.CurrentPrice.String())
		return nil, &BidTooLowError{CurrentPrice: l.CurrentPrice}
	}

	now := s.now().UTC()
	bid := &models.Bid{
		ID:        uuid.New().String(),
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: now,
	}

	next := l.Clone()
	next.CurrentPrice = amount
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(next, l.Version)
	b.PutBid(bid)
	b.PutNotification(&models.Notification{
		UserID:    l.SellerID,
		Message:   fmt.Sprintf("New bid of %s on %s", amount.StringFixed(2), l.Name),
		Category:  models.NotificationBid,
		CreatedAt: now,
	})
	b.AppendEvent(&models.Event{
		Type:       models.EventBidUpdate,
		ListingID:  listingID,
		ActorID:    bidderID,
		Price:      amount,
		Status:     next.Status,
		Listing:    next,
		Bid:        bid,
		OccurredAt: now,
	})

	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.metrics.Bids.With("result", "accepted").Add(1)
	s.logger.Info("bid_accepted", "listing", listingID, "bidder", bidderID,
		"amount", amount.String(), "previous", l.CurrentPrice.String())

	return &BidResult{
		Bid:           bid,
		PreviousPrice: l.CurrentPrice,
		CurrentPrice:  amount,
	}, nil
}

// BidsForListing returns the active bids of a listing, oldest first
func (s *BiddingService) BidsForListing(ctx context.Context, listingID string) ([]*models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.getListing(listingID); err != nil {
		return nil, err
	}
	bids, err := s.store.BidsForListing(listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	return bids, nil
}

// BidsByBidder returns the caller's active bids, newest first
func (s *BiddingService) BidsByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bids, err := s.store.BidsByBidder(bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	return bids, nil
}

func listingLockKey(listingID string) string {
	return "listing:" + listingID
}

func cartLockKey(buyerID string) string {
	return "cart:" + buyerID
}

func (s *BiddingService) lockListing(ctx context.Context, listingID string) (func(), error) {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, listingLockKey(listingID))
	s.metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to lock listing %s: %w", listingID, err)
	}
	return unlock, nil
}

func (s *BiddingService) getListing(listingID string) (*models.Listing, error) {
	l, err := s.store.GetListing(listingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// commit applies the batch and hands its events to the broadcaster.
// Nothing is broadcast for a batch that failed.
func (s *BiddingService) commit(b *store.Batch) error {
	if err := b.Commit(); err != nil {
		s.logger.Error("commit_failed", "err", err)
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.broadcast(b.Events())
	return nil
}
