package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// CreateListing publishes a new OPEN listing for the seller
func (s *BiddingService) CreateListing(ctx context.Context, sellerID string, req *models.NewListingRequest) (*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateListing(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stock := req.Stock
	if stock == 0 {
		stock = 1
	}
	l := &models.Listing{
		ID:           uuid.New().String(),
		SellerID:     sellerID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		UnitSize:     req.UnitSize,
		Kind:         req.Kind,
		BasePrice:    req.BasePrice,
		CurrentPrice: req.BasePrice,
		Stock:        stock,
		Status:       models.ListingStatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Kind == models.ListingKindAuction && req.DurationHours > 0 {
		endsAt := now.Add(time.Duration(req.DurationHours * float64(time.Hour)))
		l.BiddingEndsAt = &endsAt
	}

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(l, 0)
	b.AppendEvent(&models.Event{
		Type:       models.EventListingUpdated,
		ListingID:  l.ID,
		ActorID:    sellerID,
		Price:      l.CurrentPrice,
		Status:     l.Status,
		Listing:    l,
		OccurredAt: now,
	})
	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.logger.Info("listing_created", "listing", l.ID, "seller", sellerID, "kind", l.Kind)
	return l, nil
}

func validateListing(req *models.NewListingRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidListing)
	case !req.Kind.Valid():
		return fmt.Errorf("%w: kind must be AUCTION or FIXED", ErrInvalidListing)
	case !ValidAmount(req.BasePrice):
		return fmt.Errorf("%w: base price must be a positive amount", ErrInvalidListing)
	case req.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidListing)
	case req.DurationHours < 0:
		return fmt.Errorf("%w: duration cannot be negative", ErrInvalidListing)
	}
	return nil
}

// CloseListing withdraws an OPEN listing
func (s *BiddingService) CloseListing(ctx context.Context, listingID, sellerID string) (*models.Listing, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l, err := s.getListing(listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrNotOwner
	}
	if l.Status != models.ListingStatusOpen {
		return nil, ErrListingNotOpen
	}

	now := s.now().UTC()
	next := l.Clone()
	next.Status = models.ListingStatusClosed
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(next, l.Version)
	b.AppendEvent(&models.Event{
		Type:       models.EventListingUpdated,
		ListingID:  l.ID,
		ActorID:    sellerID,
		Price:      next.CurrentPrice,
		Status:     next.Status,
		Listing:    next,
		OccurredAt: now,
	})
	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.logger.Info("listing_closed", "listing", l.ID)
	return next, nil
}

// GetListing returns a listing
func (s *BiddingService) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.getListing(listingID)
}

// CurrentState returns the display view of a listing
func (s *BiddingService) CurrentState(ctx context.Context, listingID string) (*models.ListingState, error) {
	l, err := s.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return l.State(), nil
}

// ListListings returns listings, filtered by status and kind when those are set
func (s *BiddingService) ListListings(ctx context.Context, status models.ListingStatus, kind models.ListingKind) ([]*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	listings, err := s.store.ListListings(func(l *models.Listing) bool {
		return (status == "" || l.Status == status) && (kind == "" || l.Kind == kind)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}
