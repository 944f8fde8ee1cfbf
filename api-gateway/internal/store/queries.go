package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// GetListing returns the stored listing
func (s *Store) GetListing(id string) (*models.Listing, error) {
	var l models.Listing
	if err := s.getJSON(listingKey(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns every listing accepted by keep (all when keep is nil)
func (s *Store) ListListings(keep func(*models.Listing) bool) ([]*models.Listing, error) {
	var out []*models.Listing
	err := s.scanPrefix([]byte(prefixListing), func(key, val []byte) error {
		l := &models.Listing{}
		if err := json.Unmarshal(val, l); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if keep == nil || keep(l) {
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return out, nil
}

// GetBid returns a bid from the ledger
func (s *Store) GetBid(bidID string) (*models.Bid, error) {
	listingID, err := s.getRaw(bidRefKey(bidID))
	if err != nil {
		return nil, err
	}
	var bid models.Bid
	if err := s.getJSON(bidKey(string(listingID), bidID), &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

// BidsForListing returns a listing's active bids, oldest first
func (s *Store) BidsForListing(listingID string) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := s.scanPrefix(bidPrefix(listingID), func(key, val []byte) error {
		bid := &models.Bid{}
		if err := json.Unmarshal(val, bid); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		bids = append(bids, bid)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bids: %w", err)
	}
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Timestamp.Before(bids[j].Timestamp)
	})
	return bids, nil
}

// HighestBid scans the ledger for the listing's highest active bid.
// It returns nil without error when the listing has no bids.
func (s *Store) HighestBid(listingID string) (*models.Bid, error) {
	bids, err := s.BidsForListing(listingID)
	if err != nil {
		return nil, err
	}
	var best *models.Bid
	for _, bid := range bids {
		if best == nil || bid.Amount.GreaterThan(best.Amount) {
			best = bid
		}
	}
	return best, nil
}

// BidsByBidder returns the active bids placed by a user
func (s *Store) BidsByBidder(bidderID string) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := s.scanPrefix(userBidPrefix(bidderID), func(key, val []byte) error {
		var bid models.Bid
		err := s.getJSON(bidKey(string(val), lastSegment(key)), &bid)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		bids = append(bids, &bid)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bids for bidder: %w", err)
	}
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Timestamp.After(bids[j].Timestamp)
	})
	return bids, nil
}

// GetOrder returns the stored order
func (s *Store) GetOrder(id string) (*models.Order, error) {
	var o models.Order
	if err := s.getJSON(orderKey(id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// OrdersForUser returns orders where the user is buyer or seller, newest first
func (s *Store) OrdersForUser(userID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.scanPrefix(userOrderPrefix(userID), func(key, _ []byte) error {
		o, err := s.GetOrder(lastSegment(key))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Notifications returns up to limit notifications for a user, newest first
func (s *Store) Notifications(userID string, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	err := s.scanPrefixReverse(notificationPrefix(userID), func(key, val []byte) (bool, error) {
		n := &models.Notification{}
		if err := json.Unmarshal(val, n); err != nil {
			return false, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		out = append(out, n)
		return limit <= 0 || len(out) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return out, nil
}

// GetCart returns the buyer's cart, empty when none was saved
func (s *Store) GetCart(buyerID string) (*models.Cart, error) {
	c := &models.Cart{BuyerID: buyerID}
	err := s.getJSON(cartKey(buyerID), c)
	if errors.Is(err, ErrNotFound) {
		return &models.Cart{BuyerID: buyerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
