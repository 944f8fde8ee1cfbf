package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a state change on a listing
type EventType string

// EventType constants
const (
	EventBidUpdate      EventType = "bid_update"
	EventBidCancelled   EventType = "bid_cancelled"
	EventOrderCreated   EventType = "order_created"
	EventOrderUpdated   EventType = "order_updated"
	EventListingUpdated EventType = "listing_updated"
)

// Event represents a committed state change.
// It is sent to:
// 1. Redis Pub/Sub (real-time room broadcast)
// 2. the outbox, relayed to NATS JetStream or Kafka for archival
type Event struct {
	EventID    string          `json:"event_id"`
	Type       EventType       `json:"type"`
	ListingID  string          `json:"listing_id"`
	Seq        uint64          `json:"seq"`
	ActorID    string          `json:"actor_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Status     ListingStatus   `json:"status"`
	Listing    *Listing        `json:"listing,omitempty"`
	Bid        *Bid            `json:"bid,omitempty"`
	Order      *Order          `json:"order,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// JetStream names shared by the outbox relay and the archival worker
const (
	EventStreamName    = "MARKET_EVENTS"
	EventSubjectPrefix = "market.events."
)

// Redis names shared by the publisher and the broadcast service
const (
	ListingEventsPattern = "listing_events:*"
	listingEventsPrefix  = "listing_events:"
)

// ListingChannel is the Pub/Sub channel of a listing's room
func ListingChannel(listingID string) string {
	return listingEventsPrefix + listingID
}

// ListingIDFromChannel reverses ListingChannel
func ListingIDFromChannel(channel string) string {
	return strings.TrimPrefix(channel, listingEventsPrefix)
}

// ListingStateKey holds the mirrored display state of a listing
func ListingStateKey(listingID string) string {
	return "listing:" + listingID + ":state"
}

// ListingVersionKey holds the version of the mirrored state
func ListingVersionKey(listingID string) string {
	return "listing:" + listingID + ":version"
}
