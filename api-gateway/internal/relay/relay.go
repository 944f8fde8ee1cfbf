// Package relay moves committed events from the store's outbox to the event
// sink. Records are published in sequence order; a record is acknowledged
// only after the sink accepted it, so delivery is at least once.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/metrics"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/logging"
)

const (
	defaultBatchSize = 256
	defaultRetention = time.Hour
	pruneEvery       = time.Minute
)

var errHalt = errors.New("halt relay pass")

// Relay drains the outbox into a Publisher
type Relay struct {
	store     *store.Store
	publisher Publisher
	logger    logging.Logger
	metrics   *metrics.Metrics

	batchSize int
	retention time.Duration
}

// New creates a relay
func New(st *store.Store, publisher Publisher, logger logging.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		store:     st,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		batchSize: defaultBatchSize,
		retention: defaultRetention,
	}
}

// Flush publishes up to one batch of pending records and returns how many
// were acknowledged. It stops at the first failure so that a listing's
// events are never delivered out of order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	err := r.store.ScanPending(r.batchSize, func(rec *store.OutboxRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec.Attempts++
		if err := r.store.UpdateOutbox(rec, store.OutboxSent); err != nil {
			return err
		}

		if err := r.publisher.Publish(ctx, rec.Event); err != nil {
			r.metrics.RelayFailed.Add(1)
			r.logger.Error("relay_publish_failed", "seq", rec.Seq, "event", rec.Event.EventID,
				"attempts", rec.Attempts, "err", err)
			if err := r.store.UpdateOutbox(rec, store.OutboxFailed); err != nil {
				return err
			}
			return errHalt
		}

		if err := r.store.UpdateOutbox(rec, store.OutboxAcked); err != nil {
			return err
		}
		r.metrics.RelayPublished.Add(1)
		published++
		return nil
	})
	if errors.Is(err, errHalt) {
		err = nil
	}

	if pending, countErr := r.store.PendingCount(); countErr == nil {
		r.metrics.OutboxPending.Set(float64(pending))
	}
	return published, err
}

// Run flushes the outbox every interval until ctx is done
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastPrune := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("relay_flush_failed", "err", err)
		}

		if time.Since(lastPrune) >= pruneEvery {
			lastPrune = time.Now()
			pruned, err := r.store.PruneAcked(time.Now().Add(-r.retention))
			if err != nil {
				r.logger.Error("outbox_prune_failed", "err", err)
			} else if pruned > 0 {
				r.logger.Debug("outbox_pruned", "records", pruned)
			}
		}
	}
}
