package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// OutboxState tracks delivery of an outbox record to the event sink
type OutboxState uint8

const (
	OutboxNew OutboxState = iota
	OutboxSent
	OutboxAcked
	OutboxFailed
)

func (s OutboxState) String() string {
	switch s {
	case OutboxNew:
		return "NEW"
	case OutboxSent:
		return "SENT"
	case OutboxAcked:
		return "ACKED"
	case OutboxFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// OutboxRecord is one committed event awaiting relay
type OutboxRecord struct {
	Seq         uint64        `json:"seq"`
	State       OutboxState   `json:"state"`
	Attempts    uint32        `json:"attempts"`
	LastAttempt time.Time     `json:"last_attempt,omitempty"`
	Event       *models.Event `json:"event"`
}

// ScanPending calls fn for up to limit unacknowledged records in sequence order
func (s *Store) ScanPending(limit int, fn func(rec *OutboxRecord) error) error {
	var pending []*OutboxRecord
	err := s.scanPrefix([]byte(prefixOutbox), func(key, val []byte) error {
		if limit > 0 && len(pending) >= limit {
			return errStopScan
		}
		rec := &OutboxRecord{}
		if err := json.Unmarshal(val, rec); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if rec.State != OutboxAcked {
			pending = append(pending, rec)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan outbox: %w", err)
	}

	// fn may write to the outbox, so it runs after the iterator is closed
	for _, rec := range pending {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// PendingCount returns the number of unacknowledged records
func (s *Store) PendingCount() (int, error) {
	n := 0
	err := s.ScanPending(0, func(*OutboxRecord) error {
		n++
		return nil
	})
	return n, err
}

// UpdateOutbox persists a record's delivery state
func (s *Store) UpdateOutbox(rec *OutboxRecord, state OutboxState) error {
	rec.State = state
	rec.LastAttempt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode outbox record: %w", err)
	}
	if err := s.db.Set(outboxKey(rec.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update outbox record %d: %w", rec.Seq, err)
	}
	return nil
}

// PruneAcked deletes acknowledged records that occurred before cutoff.
// The newest record is always kept so the sequence survives a restart.
func (s *Store) PruneAcked(cutoff time.Time) (int, error) {
	last, err := s.lastOutboxSeq()
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	pruned := 0
	err = s.scanPrefix([]byte(prefixOutbox), func(key, val []byte) error {
		var rec OutboxRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if rec.Seq == last || rec.State != OutboxAcked || rec.Event == nil || !rec.Event.OccurredAt.Before(cutoff) {
			return nil
		}
		pruned++
		return batch.Delete(append([]byte(nil), key...), nil)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	if pruned == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	return pruned, nil
}

func (s *Store) lastOutboxSeq() (uint64, error) {
	var last uint64
	err := s.scanPrefixReverse([]byte(prefixOutbox), func(key, _ []byte) (bool, error) {
		seq, err := parseOutboxKey(key)
		if err != nil {
			return false, err
		}
		last = seq
		return false, nil
	})
	return last, err
}
