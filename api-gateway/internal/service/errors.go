package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidAmount   = errors.New("bid amount must be a positive number")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidListing  = errors.New("invalid listing")
)

// Precondition and state errors
var (
	ErrListingNotFound   = errors.New("listing not found")
	ErrListingNotOpen    = errors.New("listing is not open for this operation")
	ErrNotFixedPrice     = errors.New("listing is not sold at a fixed price")
	ErrBidNotFound       = errors.New("bid not found")
	ErrNotOwner          = errors.New("caller does not own this resource")
	ErrNoBidsYet         = errors.New("listing has no bids")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderFinal        = errors.New("order is already delivered or cancelled")
	ErrInvalidTransition = errors.New("order status cannot move backwards")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("not enough stock")
)

// ErrBidTooLow is the contention loss: another bid got there first or the
// amount never exceeded the price. Use errors.As with *BidTooLowError to
// read the live price.
var ErrBidTooLow = errors.New("bid must exceed the current price")

// BidTooLowError carries the price the bid lost against
type BidTooLowError struct {
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: current price is %s", ErrBidTooLow, e.CurrentPrice.StringFixed(2))
}

// Is makes errors.Is(err, ErrBidTooLow) hold
func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}
