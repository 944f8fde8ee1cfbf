package service

import (
	"context"
	"errors"
	"time"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// SweepExpired settles every OPEN auction whose deadline has passed: the
// highest bid is accepted on the seller's behalf, and auctions nobody bid on
// are closed.
func (s *BiddingService) SweepExpired(ctx context.Context) (accepted, closed int, err error) {
	now := s.now()
	expired, err := s.store.ListListings(func(l *models.Listing) bool {
		return l.Kind == models.ListingKindAuction && l.Status == models.ListingStatusOpen && l.Expired(now)
	})
	if err != nil {
		return 0, 0, err
	}

	for _, l := range expired {
		if err := ctx.Err(); err != nil {
			return accepted, closed, err
		}

		_, err := s.AcceptHighestBid(ctx, l.ID, l.SellerID)
		switch {
		case err == nil:
			accepted++
			s.metrics.SweptAuctions.With("action", "accepted").Add(1)
		case errors.Is(err, ErrNoBidsYet):
			if _, err := s.CloseListing(ctx, l.ID, l.SellerID); err != nil && !errors.Is(err, ErrListingNotOpen) {
				s.logger.Error("sweep_close_failed", "listing", l.ID, "err", err)
				continue
			}
			closed++
			s.metrics.SweptAuctions.With("action", "closed").Add(1)
		case errors.Is(err, ErrListingNotOpen):
			// settled by the seller since the scan
		default:
			s.logger.Error("sweep_accept_failed", "listing", l.ID, "err", err)
		}
	}
	return accepted, closed, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done
func (s *BiddingService) RunSweeper(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		accepted, closed, err := s.SweepExpired(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("sweep_failed", "err", err)
			return
		}
		if accepted+closed > 0 {
			s.logger.Info("sweep_done", "accepted", accepted, "closed", closed)
		}
	})
}

// RunReconciler calls ReconcileAll every interval until ctx is done
func (s *BiddingService) RunReconciler(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		repaired, err := s.ReconcileAll(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("reconcile_failed", "err", err)
			return
		}
		s.logger.Debug("reconcile_done", "repaired", repaired)
	})
}

func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
