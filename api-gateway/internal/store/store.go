// Package store is the durable home of listings, the bid ledger, orders,
// notifications, carts and the event outbox. It is backed by pebble; every
// state change is written as a single batch so that a crash never leaves a
// ledger entry without its matching listing price, or the reverse.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a listing was modified since it was read
	ErrVersionConflict = errors.New("listing has been modified by another writer")

	errStopScan = errors.New("stop scan")
)

// Store wraps the pebble database
type Store struct {
	db         *pebble.DB
	seq        atomic.Uint64
	commitHook func() error
}

type options struct {
	inMemory   bool
	commitHook func() error
}

// Option configures Open
type Option func(*options)

// WithInMemory keeps all data in memory; used by tests and throwaway runs.
func WithInMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// WithCommitHook runs fn before every batch commit; a non-nil error aborts the commit.
func WithCommitHook(fn func() error) Option {
	return func(o *options) { o.commitHook = fn }
}

// Open opens (or creates) the store in dir
func Open(dir string, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pebbleOpts := &pebble.Options{}
	if o.inMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = ""
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, commitHook: o.commitHook}
	last, err := s.lastOutboxSeq()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restore outbox sequence: %w", err)
	}
	s.seq.Store(last)

	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getJSON(key []byte, out interface{}) error {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) getRaw(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	return append([]byte(nil), val...), nil
}

// scanPrefix calls fn for every key under prefix in ascending order until fn
// returns errStopScan
func (s *Store) scanPrefix(prefix []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		err := fn(iter.Key(), iter.Value())
		if errors.Is(err, errStopScan) {
			break
		}
		if err != nil {
			return err
		}
	}
	return iter.Error()
}

// scanPrefixReverse is scanPrefix in descending key order
func (s *Store) scanPrefixReverse(prefix []byte, fn func(key, val []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}
