package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// InitSchema creates the necessary database tables
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(255) PRIMARY KEY,
		seller_id VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		base_price NUMERIC(14, 2) NOT NULL,
		current_price NUMERIC(14, 2) NOT NULL,
		stock BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		winner_id VARCHAR(255),
		bidding_ends_at TIMESTAMPTZ,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(255) PRIMARY KEY,
		listing_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount NUMERIC(14, 2) NOT NULL,
		status VARCHAR(16) NOT NULL,
		placed_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(255) PRIMARY KEY,
		listing_id VARCHAR(255) NOT NULL,
		listing_kind VARCHAR(16) NOT NULL,
		buyer_id VARCHAR(255) NOT NULL,
		seller_id VARCHAR(255) NOT NULL,
		quantity BIGINT NOT NULL,
		final_price NUMERIC(14, 2) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archived_events (
		event_id VARCHAR(255) PRIMARY KEY,
		listing_id VARCHAR(255) NOT NULL,
		type VARCHAR(32) NOT NULL,
		seq BIGINT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bids_listing_id ON bids(listing_id);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_orders_buyer_id ON orders(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_orders_seller_id ON orders(seller_id);
	CREATE INDEX IF NOT EXISTS idx_archived_events_listing ON archived_events(listing_id, seq);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ArchiveEvent records an event and the listing, bid and order snapshots it
// carries, in one transaction. Events already archived are skipped, so a
// redelivery is harmless. Snapshots older than what is stored never
// overwrite it.
func (c *PostgresClient) ArchiveEvent(ctx context.Context, ev *models.Event) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO archived_events (event_id, listing_id, type, seq, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.ListingID, string(ev.Type), int64(ev.Seq), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return nil
	}

	if ev.Listing != nil {
		if err := upsertListing(ctx, tx, ev.Listing); err != nil {
			return err
		}
	}
	if ev.Bid != nil {
		status := models.BidStatusAccepted
		if ev.Type == models.EventBidCancelled {
			status = models.BidStatusCancelled
		}
		if err := upsertBid(ctx, tx, ev.Bid, status); err != nil {
			return err
		}
	}
	if ev.Order != nil {
		if err := upsertOrder(ctx, tx, ev.Order); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func upsertListing(ctx context.Context, tx *sql.Tx, l *models.Listing) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings (id, seller_id, name, kind, base_price, current_price, stock,
			status, winner_id, bidding_ends_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			stock = EXCLUDED.stock,
			status = EXCLUDED.status,
			winner_id = EXCLUDED.winner_id,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE listings.version < EXCLUDED.version`,
		l.ID, l.SellerID, l.Name, string(l.Kind), l.BasePrice, l.CurrentPrice, l.Stock,
		string(l.Status), l.WinnerID, l.BiddingEndsAt, int64(l.Version), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}

// upsertBid never moves a cancelled bid back to accepted
func upsertBid(ctx context.Context, tx *sql.Tx, b *models.Bid, status string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bids (id, listing_id, bidder_id, amount, status, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = CURRENT_TIMESTAMP
		WHERE bids.status <> $7`,
		b.ID, b.ListingID, b.BidderID, b.Amount, status, b.Timestamp, models.BidStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to upsert bid: %w", err)
	}
	return nil
}

func upsertOrder(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, listing_id, listing_kind, buyer_id, seller_id, quantity,
			final_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE orders.updated_at <= EXCLUDED.updated_at`,
		o.ID, o.ListingID, string(o.ListingKind), o.BuyerID, o.SellerID, o.Quantity,
		o.FinalPrice, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

// ArchivedBid is a bid as kept by the archive
type ArchivedBid struct {
	models.Bid
	Status string `json:"status"`
}

// GetBidHistory retrieves the archived bids of a listing, newest first
func (c *PostgresClient) GetBidHistory(ctx context.Context, listingID string, limit int) ([]*ArchivedBid, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, listing_id, bidder_id, amount, placed_at, status
		FROM bids
		WHERE listing_id = $1
		ORDER BY placed_at DESC
		LIMIT $2`, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []*ArchivedBid
	for rows.Next() {
		bid := &ArchivedBid{}
		if err := rows.Scan(&bid.ID, &bid.ListingID, &bid.BidderID, &bid.Amount, &bid.Timestamp, &bid.Status); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bids: %w", err)
	}
	return bids, nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
