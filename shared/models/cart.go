package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one requested listing in a buyer's cart
type CartLine struct {
	ListingID string `json:"listing_id"`
	Quantity  int64  `json:"quantity"`
}

// Cart holds the fixed-price lines a buyer intends to check out
type Cart struct {
	BuyerID   string     `json:"buyer_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Quantity returns the quantity requested for a listing, or zero
func (c *Cart) Quantity(listingID string) int64 {
	for _, l := range c.Lines {
		if l.ListingID == listingID {
			return l.Quantity
		}
	}
	return 0
}

// CartItemRequest adds a listing to the cart
type CartItemRequest struct {
	ListingID string `json:"listing_id"`
	Quantity  int64  `json:"quantity"`
}

// Checkout line outcomes
const (
	LineOrdered           = "ordered"
	LineInsufficientStock = "insufficient_stock"
	LineListingNotFound   = "listing_not_found"
	LineListingNotOpen    = "listing_not_open"
	LineNotFixedPrice     = "not_fixed_price"
)

// CheckoutLineResult reports what happened to a single cart line
type CheckoutLineResult struct {
	ListingID string          `json:"listing_id"`
	Quantity  int64           `json:"quantity"`
	Outcome   string          `json:"outcome"`
	Available int64           `json:"available,omitempty"`
	Order     *Order          `json:"order,omitempty"`
	Total     decimal.Decimal `json:"total"`
}

// CheckoutResult is the per-line summary of a checkout
type CheckoutResult struct {
	Orders []*Order              `json:"orders"`
	Lines  []*CheckoutLineResult `json:"lines"`
}

// Skipped returns the lines that did not produce an order
func (r *CheckoutResult) Skipped() []*CheckoutLineResult {
	var out []*CheckoutLineResult
	for _, l := range r.Lines {
		if l.Outcome != LineOrdered {
			out = append(out, l)
		}
	}
	return out
}
