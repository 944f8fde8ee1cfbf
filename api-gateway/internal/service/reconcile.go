package service

import (
	"context"
	"fmt"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// ReconcileListing recomputes a listing's cached price from its bid ledger
// and repairs it when the two disagree. It reports whether a repair was made.
func (s *BiddingService) ReconcileListing(ctx context.Context, listingID string) (bool, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return false, err
	}
	defer unlock()

	l, err := s.getListing(listingID)
	if err != nil {
		return false, err
	}
	bids, err := s.store.BidsForListing(listingID)
	if err != nil {
		return false, fmt.Errorf("failed to get bids: %w", err)
	}

	want := priceFromLedger(l.BasePrice, bids)
	if l.CurrentPrice.Equal(want) {
		return false, nil
	}

	now := s.now().UTC()
	next := l.Clone()
	next.CurrentPrice = want
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(next, l.Version)
	b.AppendEvent(&models.Event{
		Type:       models.EventListingUpdated,
		ListingID:  listingID,
		Price:      want,
		Status:     next.Status,
		Listing:    next,
		OccurredAt: now,
	})
	if err := s.commit(b); err != nil {
		return false, err
	}

	s.metrics.ReconcileRepairs.Add(1)
	s.logger.Error("price_drift_repaired", "listing", listingID,
		"cached", l.CurrentPrice.String(), "ledger", want.String())
	return true, nil
}

// ReconcileAll runs ReconcileListing over every listing and returns the
// number of repairs.
func (s *BiddingService) ReconcileAll(ctx context.Context) (int, error) {
	listings, err := s.store.ListListings(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list listings: %w", err)
	}

	repaired := 0
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		ok, err := s.ReconcileListing(ctx, l.ID)
		if err != nil {
			return repaired, fmt.Errorf("failed to reconcile listing %s: %w", l.ID, err)
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}
