package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

// Subscriber wraps Redis Pub/Sub functionality
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger logging.Logger
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(addr, password string, db int, logger logging.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{
		client: rdb,
		logger: logger,
	}, nil
}

// SubscribeToPattern subscribes to every channel matching pattern and waits
// for Redis to confirm the subscription.
func (s *Subscriber) SubscribeToPattern(ctx context.Context, pattern string) error {
	pubsub := s.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	s.pubsub = pubsub
	return nil
}

// Listen forwards listing events to out until ctx is done or the
// subscription is closed. Blocking; run it in a goroutine.
func (s *Subscriber) Listen(ctx context.Context, out chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			listingID := models.ListingIDFromChannel(msg.Channel)
			if listingID == "" || listingID == msg.Channel {
				s.logger.Debug("unexpected_channel", "channel", msg.Channel)
				continue
			}
			var event models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Error("malformed_event", "channel", msg.Channel, "err", err)
				continue
			}

			select {
			case out <- &Message{ListingID: listingID, Payload: []byte(msg.Payload), Event: &event}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Message is a listing event received from Pub/Sub
type Message struct {
	ListingID string
	Payload   []byte // raw JSON, forwarded to clients as is
	Event     *models.Event
}

// ListingState reads the display state mirrored by the api-gateway. It
// returns nil when nothing has been mirrored for the listing yet.
func (s *Subscriber) ListingState(ctx context.Context, listingID string) (*models.ListingState, error) {
	data, err := s.client.Get(ctx, models.ListingStateKey(listingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing state: %w", err)
	}

	var state models.ListingState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing state: %w", err)
	}
	return &state, nil
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
