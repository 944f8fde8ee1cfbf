package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order
type OrderStatus string

// OrderStatus constants
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusAccepted  OrderStatus = "Accepted"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusAccepted:  1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// Terminal reports whether no further transition is allowed from s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from s to next.
// Statuses only move forward; Cancelled is reachable from any non-terminal status.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	from, ok := orderStatusRank[s]
	if !ok {
		return false
	}
	to, ok := orderStatusRank[next]
	return ok && to > from
}

// Order is the binding result of a won auction or a checked-out cart line
type Order struct {
	ID          string          `json:"id"`
	ListingID   string          `json:"listing_id"`
	ListingKind ListingKind     `json:"listing_kind"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Quantity    int64           `json:"quantity"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderStatusRequest asks for an order to be moved to a new status
type OrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}
