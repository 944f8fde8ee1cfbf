package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// Batch stages writes that are committed atomically.
// Callers hold the lock of every listing they stage.
type Batch struct {
	s        *Store
	b        *pebble.Batch
	expected map[string]uint64
	events   []*models.Event
	err      error
}

// NewBatch starts an empty batch
func (s *Store) NewBatch() *Batch {
	return &Batch{
		s:        s,
		b:        s.db.NewBatch(),
		expected: make(map[string]uint64),
	}
}

func (b *Batch) setJSON(key []byte, v interface{}) {
	if b.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("failed to encode %s: %w", key, err)
		return
	}
	if err := b.b.Set(key, data, nil); err != nil {
		b.err = err
	}
}

func (b *Batch) set(key, val []byte) {
	if b.err != nil {
		return
	}
	if err := b.b.Set(key, val, nil); err != nil {
		b.err = err
	}
}

func (b *Batch) delete(key []byte) {
	if b.err != nil {
		return
	}
	if err := b.b.Delete(key, nil); err != nil {
		b.err = err
	}
}

// PutListing stages l as the successor of the stored version readVersion
// (zero for a listing that must not exist yet). l.Version is advanced.
func (b *Batch) PutListing(l *models.Listing, readVersion uint64) {
	if _, staged := b.expected[l.ID]; !staged {
		b.expected[l.ID] = readVersion
	}
	l.Version = readVersion + 1
	b.setJSON(listingKey(l.ID), l)
}

// PutBid appends a bid to the ledger
func (b *Batch) PutBid(bid *models.Bid) {
	b.setJSON(bidKey(bid.ListingID, bid.ID), bid)
	b.set(bidRefKey(bid.ID), []byte(bid.ListingID))
	b.set(userBidKey(bid.BidderID, bid.ID), []byte(bid.ListingID))
}

// DeleteBid removes a bid from the ledger
func (b *Batch) DeleteBid(bid *models.Bid) {
	b.delete(bidKey(bid.ListingID, bid.ID))
	b.delete(bidRefKey(bid.ID))
	b.delete(userBidKey(bid.BidderID, bid.ID))
}

// PutOrder stores an order and indexes it for both parties
func (b *Batch) PutOrder(o *models.Order) {
	b.setJSON(orderKey(o.ID), o)
	b.set(userOrderKey(o.BuyerID, o.ID), nil)
	b.set(userOrderKey(o.SellerID, o.ID), nil)
}

// PutNotification stores a notification
func (b *Batch) PutNotification(n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	b.setJSON(notificationKey(n.UserID, n.CreatedAt, n.ID), n)
}

// PutCart replaces a buyer's cart
func (b *Batch) PutCart(c *models.Cart) {
	b.setJSON(cartKey(c.BuyerID), c)
}

// DeleteCart empties a buyer's cart
func (b *Batch) DeleteCart(buyerID string) {
	b.delete(cartKey(buyerID))
}

// AppendEvent records ev in the outbox and assigns its sequence number
func (b *Batch) AppendEvent(ev *models.Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.Seq = b.s.seq.Add(1)
	b.setJSON(outboxKey(ev.Seq), &OutboxRecord{
		Seq:   ev.Seq,
		State: OutboxNew,
		Event: ev,
	})
	b.events = append(b.events, ev)
}

// Events returns the events appended so far
func (b *Batch) Events() []*models.Event {
	return b.events
}

// Commit verifies listing versions and applies the batch durably.
// On error nothing is applied.
func (b *Batch) Commit() error {
	if b.err != nil {
		return fmt.Errorf("failed to stage batch: %w", b.err)
	}
	for id, want := range b.expected {
		if err := b.s.checkVersion(id, want); err != nil {
			return err
		}
	}
	if b.s.commitHook != nil {
		if err := b.s.commitHook(); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
	}
	if err := b.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Close releases the batch; safe after Commit
func (b *Batch) Close() {
	_ = b.b.Close()
}

func (s *Store) checkVersion(listingID string, want uint64) error {
	var stored models.Listing
	err := s.getJSON(listingKey(listingID), &stored)
	switch {
	case errors.Is(err, ErrNotFound):
		if want != 0 {
			return fmt.Errorf("listing %s: %w", listingID, ErrVersionConflict)
		}
		return nil
	case err != nil:
		return err
	}
	if stored.Version != want {
		return fmt.Errorf("listing %s at version %d, expected %d: %w", listingID, stored.Version, want, ErrVersionConflict)
	}
	return nil
}
