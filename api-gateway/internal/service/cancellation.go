package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/models"
)

// CancelBid withdraws the requester's bid and recomputes the listing price
// from the remaining ledger. Bids on a listing that is no longer OPEN are
// binding and cannot be withdrawn.
func (s *BiddingService) CancelBid(ctx context.Context, bidID, requesterID string) (*models.ListingState, error) {
	bid, err := s.getBid(bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID != requesterID {
		return nil, ErrNotOwner
	}

	unlock, err := s.lockListing(ctx, bid.ListingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// a concurrent cancel may have won the lock first
	if bid, err = s.getBid(bidID); err != nil {
		return nil, err
	}

	l, err := s.getListing(bid.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Status != models.ListingStatusOpen {
		return nil, ErrListingNotOpen
	}

	bids, err := s.store.BidsForListing(l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	remaining := bids[:0]
	for _, other := range bids {
		if other.ID != bid.ID {
			remaining = append(remaining, other)
		}
	}

	now := s.now().UTC()
	next := l.Clone()
	next.CurrentPrice = priceFromLedger(l.BasePrice, remaining)
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.DeleteBid(bid)
	b.PutListing(next, l.Version)
	b.PutNotification(&models.Notification{
		UserID:    l.SellerID,
		Message:   fmt.Sprintf("A bid of %s on %s was withdrawn", bid.Amount.StringFixed(2), l.Name),
		Category:  models.NotificationInfo,
		CreatedAt: now,
	})
	b.AppendEvent(&models.Event{
		Type:       models.EventBidCancelled,
		ListingID:  l.ID,
		ActorID:    requesterID,
		Price:      next.CurrentPrice,
		Status:     next.Status,
		Listing:    next,
		Bid:        bid,
		OccurredAt: now,
	})

	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.logger.Info("bid_cancelled", "listing", l.ID, "bid", bid.ID,
		"price", next.CurrentPrice.String(), "previous", l.CurrentPrice.String())
	return next.State(), nil
}

func (s *BiddingService) getBid(bidID string) (*models.Bid, error) {
	bid, err := s.store.GetBid(bidID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return bid, nil
}

// priceFromLedger is the highest active bid, or base when there is none
func priceFromLedger(base decimal.Decimal, bids []*models.Bid) decimal.Decimal {
	price := base
	for _, bid := range bids {
		if bid.Amount.GreaterThan(price) {
			price = bid.Amount
		}
	}
	return price
}
