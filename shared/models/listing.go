package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingKind distinguishes timed auctions from fixed-price stock
type ListingKind string

// ListingKind constants
const (
	ListingKindAuction ListingKind = "AUCTION"
	ListingKindFixed   ListingKind = "FIXED"
)

// Valid reports whether k is a known listing kind
func (k ListingKind) Valid() bool {
	return k == ListingKindAuction || k == ListingKindFixed
}

// ListingStatus is the commercial state of a listing
type ListingStatus string

// ListingStatus constants
const (
	ListingStatusOpen   ListingStatus = "OPEN"
	ListingStatusSold   ListingStatus = "SOLD"
	ListingStatusClosed ListingStatus = "CLOSED"
)

// Listing represents a sellable produce item, either an auction or fixed-price stock
type Listing struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	UnitSize      string          `json:"unit_size,omitempty"`
	Kind          ListingKind     `json:"kind"`
	BasePrice     decimal.Decimal `json:"base_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Stock         int64           `json:"stock"`
	Status        ListingStatus   `json:"status"`
	BiddingEndsAt *time.Time      `json:"bidding_ends_at,omitempty"`
	WinnerID      string          `json:"winner_id,omitempty"`
	Version       uint64          `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a copy that can be mutated without affecting l
func (l *Listing) Clone() *Listing {
	c := *l
	if l.BiddingEndsAt != nil {
		t := *l.BiddingEndsAt
		c.BiddingEndsAt = &t
	}
	return &c
}

// Expired reports whether the bidding deadline has passed at now
func (l *Listing) Expired(now time.Time) bool {
	return l.BiddingEndsAt != nil && !now.Before(*l.BiddingEndsAt)
}

// ListingState is the read-only display view of a listing
type ListingState struct {
	ListingID    string          `json:"listing_id"`
	Kind         ListingKind     `json:"kind"`
	Status       ListingStatus   `json:"status"`
	BasePrice    decimal.Decimal `json:"base_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Stock        int64           `json:"stock"`
	WinnerID     string          `json:"winner_id,omitempty"`
	Version      uint64          `json:"version"`
}

// State projects the listing onto its display view
func (l *Listing) State() *ListingState {
	return &ListingState{
		ListingID:    l.ID,
		Kind:         l.Kind,
		Status:       l.Status,
		BasePrice:    l.BasePrice,
		CurrentPrice: l.CurrentPrice,
		Stock:        l.Stock,
		WinnerID:     l.WinnerID,
		Version:      l.Version,
	}
}

// NewListingRequest is the seller's request to publish a listing
type NewListingRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	UnitSize      string          `json:"unit_size"`
	Kind          ListingKind     `json:"kind"`
	BasePrice     decimal.Decimal `json:"base_price"`
	Stock         int64           `json:"stock"`
	DurationHours float64         `json:"duration_hours"`
}
