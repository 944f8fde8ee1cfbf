package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/models"
)

// AcceptHighestBid sells an auction to its highest bidder. The listing moves
// to SOLD and exactly one Pending order is created for the winner.
func (s *BiddingService) AcceptHighestBid(ctx context.Context, listingID, sellerID string) (*models.Order, error) {
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
	if l.Kind != models.ListingKindAuction || l.Status != models.ListingStatusOpen {
		return nil, ErrListingNotOpen
	}

	best, err := s.store.HighestBid(listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}
	if best == nil {
		return nil, ErrNoBidsYet
	}

	now := s.now().UTC()
	quantity := l.Stock
	if quantity < 1 {
		quantity = 1
	}
	order := &models.Order{
		ID:          uuid.New().String(),
		ListingID:   l.ID,
		ListingKind: l.Kind,
		BuyerID:     best.BidderID,
		SellerID:    l.SellerID,
		Quantity:    quantity,
		FinalPrice:  best.Amount,
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	next := l.Clone()
	next.Status = models.ListingStatusSold
	next.WinnerID = best.BidderID
	next.CurrentPrice = best.Amount
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(next, l.Version)
	b.PutOrder(order)
	b.PutNotification(&models.Notification{
		UserID:    best.BidderID,
		Message:   fmt.Sprintf("You won %s for %s", l.Name, best.Amount.StringFixed(2)),
		Category:  models.NotificationOrder,
		CreatedAt: now,
	})
	b.AppendEvent(&models.Event{
		Type:       models.EventOrderCreated,
		ListingID:  l.ID,
		ActorID:    sellerID,
		Price:      best.Amount,
		Status:     next.Status,
		Listing:    next,
		Bid:        best,
		Order:      order,
		OccurredAt: now,
	})

	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.metrics.Orders.With("kind", string(l.Kind)).Add(1)
	s.logger.Info("auction_sold", "listing", l.ID, "winner", best.BidderID,
		"price", best.Amount.String(), "order", order.ID)
	return order, nil
}

// CancelOrder cancels an order on behalf of its buyer or seller. Fixed-price
// stock is restored and a SOLD listing reopens; auction listings stay SOLD.
func (s *BiddingService) CancelOrder(ctx context.Context, orderID, requesterID string) (*models.Order, error) {
	return s.updateOrder(ctx, orderID, requesterID, models.OrderStatusCancelled, func(o *models.Order) error {
		if o.BuyerID != requesterID && o.SellerID != requesterID {
			return ErrNotOwner
		}
		return nil
	})
}

// AcceptOrder moves a Pending order to Accepted; seller only
func (s *BiddingService) AcceptOrder(ctx context.Context, orderID, sellerID string) (*models.Order, error) {
	return s.updateOrder(ctx, orderID, sellerID, models.OrderStatusAccepted, func(o *models.Order) error {
		if o.SellerID != sellerID {
			return ErrNotOwner
		}
		return nil
	})
}

// AdvanceOrder moves an order forward to status on behalf of its seller or
// an admin.
func (s *BiddingService) AdvanceOrder(ctx context.Context, orderID string, actor models.Identity, status models.OrderStatus) (*models.Order, error) {
	return s.updateOrder(ctx, orderID, actor.UserID, status, func(o *models.Order) error {
		if actor.Role != models.RoleAdmin && o.SellerID != actor.UserID {
			return ErrNotOwner
		}
		return nil
	})
}

// OrdersForUser returns the orders where the user is buyer or seller
func (s *BiddingService) OrdersForUser(ctx context.Context, userID string) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders, err := s.store.OrdersForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	return orders, nil
}

func (s *BiddingService) updateOrder(ctx context.Context, orderID, actorID string, status models.OrderStatus, authorize func(*models.Order) error) (*models.Order, error) {
	o, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(o); err != nil {
		return nil, err
	}

	unlock, err := s.lockListing(ctx, o.ListingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if o, err = s.getOrder(orderID); err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrOrderFinal
	}
	if !o.Status.CanTransition(status) {
		return nil, ErrInvalidTransition
	}

	l, err := s.getListing(o.ListingID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	prev := o.Status
	next := *o
	next.Status = status
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutOrder(&next)

	listing := l
	if status == models.OrderStatusCancelled && o.ListingKind == models.ListingKindFixed {
		listing = l.Clone()
		listing.Stock += o.Quantity
		if listing.Status == models.ListingStatusSold && listing.Stock > 0 {
			listing.Status = models.ListingStatusOpen
		}
		listing.UpdatedAt = now
		b.PutListing(listing, l.Version)
	}

	recipient := o.BuyerID
	if actorID == o.BuyerID {
		recipient = o.SellerID
	}
	b.PutNotification(&models.Notification{
		UserID:    recipient,
		Message:   fmt.Sprintf("Order for %s is now %s", l.Name, status),
		Category:  models.NotificationOrder,
		CreatedAt: now,
	})
	b.AppendEvent(&models.Event{
		Type:       models.EventOrderUpdated,
		ListingID:  l.ID,
		ActorID:    actorID,
		Price:      listing.CurrentPrice,
		Status:     listing.Status,
		Listing:    listing,
		Order:      &next,
		OccurredAt: now,
	})

	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.logger.Info("order_updated", "order", o.ID, "from", prev, "to", status, "actor", actorID)
	return &next, nil
}

func (s *BiddingService) getOrder(orderID string) (*models.Order, error) {
	o, err := s.store.GetOrder(orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}
