package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// GetCart returns the buyer's cart
func (s *BiddingService) GetCart(ctx context.Context, buyerID string) (*models.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCart(buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return c, nil
}

// AddToCart adds quantity units of a fixed-price listing to the buyer's cart.
// The cumulative quantity may not exceed the stock at the time of adding;
// checkout checks stock again.
func (s *BiddingService) AddToCart(ctx context.Context, buyerID, listingID string, quantity int64) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	unlock, err := s.locks.Lock(ctx, cartLockKey(buyerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	l, err := s.getListing(listingID)
	if err != nil {
		return nil, err
	}
	if l.Kind != models.ListingKindFixed {
		return nil, ErrNotFixedPrice
	}
	if l.Status != models.ListingStatusOpen {
		return nil, ErrListingNotOpen
	}

	c, err := s.store.GetCart(buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if c.Quantity(listingID)+quantity > l.Stock {
		return nil, fmt.Errorf("%w: %d available", ErrInsufficientStock, l.Stock)
	}

	found := false
	for i := range c.Lines {
		if c.Lines[i].ListingID == listingID {
			c.Lines[i].Quantity += quantity
			found = true
		}
	}
	if !found {
		c.Lines = append(c.Lines, models.CartLine{ListingID: listingID, Quantity: quantity})
	}
	c.UpdatedAt = s.now().UTC()

	if err := s.saveCart(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveFromCart drops a listing from the buyer's cart. Removing a listing
// that is not in the cart is not an error.
func (s *BiddingService) RemoveFromCart(ctx context.Context, buyerID, listingID string) (*models.Cart, error) {
	unlock, err := s.locks.Lock(ctx, cartLockKey(buyerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	c, err := s.store.GetCart(buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	lines := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ListingID != listingID {
			lines = append(lines, line)
		}
	}
	c.Lines = lines
	c.UpdatedAt = s.now().UTC()

	if err := s.saveCart(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Checkout turns every cart line into an order, one listing at a time.
// Lines that cannot be fulfilled are skipped and reported, never fatal. The
// cart is cleared afterwards, skipped lines included. Each order is committed
// together with the cart minus the lines already processed, so a storage
// fault leaves only unprocessed lines in the cart and a retried checkout
// never orders a line twice.
func (s *BiddingService) Checkout(ctx context.Context, buyerID string) (*models.CheckoutResult, error) {
	unlock, err := s.locks.Lock(ctx, cartLockKey(buyerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	c, err := s.store.GetCart(buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if len(c.Lines) == 0 {
		return nil, ErrCartEmpty
	}

	result := &models.CheckoutResult{}
	for i, line := range c.Lines {
		rest := &models.Cart{BuyerID: buyerID, Lines: c.Lines[i+1:], UpdatedAt: s.now().UTC()}
		lineResult, err := s.checkoutLine(ctx, buyerID, line, rest)
		if err != nil {
			c.Lines = c.Lines[i:]
			c.UpdatedAt = s.now().UTC()
			if saveErr := s.saveCart(c); saveErr != nil {
				s.logger.Error("cart_save_failed", "buyer", buyerID, "err", saveErr)
			}
			return nil, err
		}

		s.metrics.CheckoutLines.With("outcome", lineResult.Outcome).Add(1)
		result.Lines = append(result.Lines, lineResult)
		if lineResult.Order != nil {
			result.Orders = append(result.Orders, lineResult.Order)
		} else {
			s.logger.Info("checkout_line_skipped", "buyer", buyerID, "listing", line.ListingID,
				"outcome", lineResult.Outcome, "requested", line.Quantity)
		}
	}

	b := s.store.NewBatch()
	defer b.Close()
	b.DeleteCart(buyerID)
	if err := s.commit(b); err != nil {
		return nil, err
	}

	return result, nil
}

// checkoutLine orders a single line. rest is what stays in the cart once
// the order commits.
func (s *BiddingService) checkoutLine(ctx context.Context, buyerID string, line models.CartLine, rest *models.Cart) (*models.CheckoutLineResult, error) {
	res := &models.CheckoutLineResult{ListingID: line.ListingID, Quantity: line.Quantity}

	unlock, err := s.lockListing(ctx, line.ListingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Stock is re-read here; whatever the cart saw at add time is stale
	l, err := s.getListing(line.ListingID)
	if errors.Is(err, ErrListingNotFound) {
		res.Outcome = models.LineListingNotFound
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case l.Kind != models.ListingKindFixed:
		res.Outcome = models.LineNotFixedPrice
		return res, nil
	case l.Status != models.ListingStatusOpen:
		res.Outcome = models.LineListingNotOpen
		return res, nil
	case line.Quantity > l.Stock:
		res.Outcome = models.LineInsufficientStock
		res.Available = l.Stock
		return res, nil
	}

	now := s.now().UTC()
	total := l.CurrentPrice.Mul(decimal.NewFromInt(line.Quantity))
	order := &models.Order{
		ID:          uuid.New().String(),
		ListingID:   l.ID,
		ListingKind: l.Kind,
		BuyerID:     buyerID,
		SellerID:    l.SellerID,
		Quantity:    line.Quantity,
		FinalPrice:  total,
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	next := l.Clone()
	next.Stock -= line.Quantity
	if next.Stock == 0 {
		next.Status = models.ListingStatusSold
	}
	next.UpdatedAt = now

	b := s.store.NewBatch()
	defer b.Close()

	b.PutListing(next, l.Version)
	b.PutOrder(order)
	if len(rest.Lines) == 0 {
		b.DeleteCart(buyerID)
	} else {
		b.PutCart(rest)
	}
	b.PutNotification(&models.Notification{
		UserID:    l.SellerID,
		Message:   fmt.Sprintf("New order for %d x %s", line.Quantity, l.Name),
		Category:  models.NotificationOrder,
		CreatedAt: now,
	})
	if next.Status == models.ListingStatusSold {
		b.PutNotification(&models.Notification{
			UserID:    l.SellerID,
			Message:   fmt.Sprintf("Stock ended for %s", l.Name),
			Category:  models.NotificationInfo,
			CreatedAt: now,
		})
	}
	b.AppendEvent(&models.Event{
		Type:       models.EventOrderCreated,
		ListingID:  l.ID,
		ActorID:    buyerID,
		Price:      l.CurrentPrice,
		Status:     next.Status,
		Listing:    next,
		Order:      order,
		OccurredAt: now,
	})

	if err := s.commit(b); err != nil {
		return nil, err
	}

	s.metrics.Orders.With("kind", string(l.Kind)).Add(1)
	res.Outcome = models.LineOrdered
	res.Order = order
	res.Total = total
	return res, nil
}

func (s *BiddingService) saveCart(c *models.Cart) error {
	b := s.store.NewBatch()
	defer b.Close()
	if len(c.Lines) == 0 {
		b.DeleteCart(c.BuyerID)
	} else {
		b.PutCart(c)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
