package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Bid represents a single active bid on an auction listing
type Bid struct {
	ID        string          `json:"id"`
	ListingID string          `json:"listing_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// BidStatus constants used by the archive
const (
	BidStatusAccepted  = "accepted"
	BidStatusCancelled = "cancelled"
)

// BidRequest represents the incoming bid request from API.
// Amount is kept raw, number or string, so that non-numeric input can be
// reported as an invalid amount.
type BidRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// BidResponse represents the API response after placing a bid
type BidResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	BidID        string          `json:"bid_id,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	YourBid      decimal.Decimal `json:"your_bid"`
	IsHighest    bool            `json:"is_highest"`
}
