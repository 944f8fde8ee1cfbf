package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// Client wraps the Redis client with the room publish and state mirror
// operations of the bidding engine. Redis never holds authoritative state.
type Client struct {
	client *redis.Client
	// Lua script for the version-guarded state mirror
	mirrorScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Broadcasts run concurrently, so two goroutines may mirror the same
	// listing out of order. The script only moves the mirror forward.
	mirrorScript := redis.NewScript(`
		-- KEYS[1]: listing:{id}:state   (JSON display state)
		-- KEYS[2]: listing:{id}:version (version of the stored state)
		-- ARGV[1]: new version
		-- ARGV[2]: new state JSON

		local current = redis.call('GET', KEYS[2])
		if current and tonumber(current) >= tonumber(ARGV[1]) then
			return 0
		end

		redis.call('SET', KEYS[1], ARGV[2])
		redis.call('SET', KEYS[2], ARGV[1])
		return 1
	`)

	return &Client{
		client:       rdb,
		mirrorScript: mirrorScript,
	}, nil
}

// PublishListingEvent publishes an event to the listing's room channel.
// The broadcast service picks it up and fans it out over WebSockets.
func (c *Client) PublishListingEvent(ctx context.Context, listingID string, event *models.Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, models.ListingChannel(listingID), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// MirrorState stores the listing's display state unless a newer version is
// already there. It reports whether the mirror was updated.
func (c *Client) MirrorState(ctx context.Context, state *models.ListingState) (bool, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to marshal listing state: %w", err)
	}

	keys := []string{
		models.ListingStateKey(state.ListingID),
		models.ListingVersionKey(state.ListingID),
	}
	version := strconv.FormatUint(state.Version, 10)

	result, err := c.mirrorScript.Run(ctx, c.client, keys, version, stateJSON).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to execute mirror script: %w", err)
	}
	return result == 1, nil
}

// ListingState reads the mirrored display state of a listing
func (c *Client) ListingState(ctx context.Context, listingID string) (*models.ListingState, error) {
	data, err := c.client.Get(ctx, models.ListingStateKey(listingID)).Bytes()
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

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
