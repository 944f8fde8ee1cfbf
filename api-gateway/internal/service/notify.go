package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronwang/agreeconnect/shared/models"
)

const broadcastTimeout = 5 * time.Second

// Broadcaster delivers committed events to the listing's room and keeps the
// display mirror fresh. Implemented by the Redis client.
type Broadcaster interface {
	PublishListingEvent(ctx context.Context, listingID string, event *models.Event) error
	MirrorState(ctx context.Context, state *models.ListingState) (bool, error)
}

type nopBroadcaster struct{}

func (nopBroadcaster) PublishListingEvent(context.Context, string, *models.Event) error {
	return nil
}

func (nopBroadcaster) MirrorState(context.Context, *models.ListingState) (bool, error) {
	return false, nil
}

// broadcast publishes committed events without blocking the caller.
// Events of one listing are published in commit order by a single drain
// goroutine; callers hold the listing lock, so enqueue order is commit order.
// Failures are logged, never returned.
func (s *BiddingService) broadcast(events []*models.Event) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queues == nil {
		s.queues = make(map[string][]*models.Event)
	}
	for _, ev := range events {
		pending, draining := s.queues[ev.ListingID]
		s.queues[ev.ListingID] = append(pending, ev)
		if !draining {
			s.inflight.Add(1)
			go s.drain(ev.ListingID)
		}
	}
}

// drain publishes a listing's queued events until the queue is empty
func (s *BiddingService) drain(listingID string) {
	defer s.inflight.Done()
	for {
		s.queueMu.Lock()
		pending := s.queues[listingID]
		if len(pending) == 0 {
			delete(s.queues, listingID)
			s.queueMu.Unlock()
			return
		}
		ev := pending[0]
		pending[0] = nil
		s.queues[listingID] = pending[1:]
		s.queueMu.Unlock()

		s.publish(ev)
	}
}

func (s *BiddingService) publish(ev *models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()

	if err := s.broadcaster.PublishListingEvent(ctx, ev.ListingID, ev); err != nil {
		s.logger.Error("broadcast_failed", "listing", ev.ListingID, "type", ev.Type, "err", err)
	}
	if ev.Listing == nil {
		return
	}
	if _, err := s.broadcaster.MirrorState(ctx, ev.Listing.State()); err != nil {
		s.logger.Error("state_mirror_failed", "listing", ev.ListingID, "err", err)
	}
}

// Wait blocks until every in-flight broadcast has finished
func (s *BiddingService) Wait() {
	s.inflight.Wait()
}

// Notify durably records a notification for a user, whether or not any of
// their clients is connected.
func (s *BiddingService) Notify(ctx context.Context, userID, message string, category models.NotificationCategory) (*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := &models.Notification{
		UserID:    userID,
		Message:   message,
		Category:  category,
		CreatedAt: s.now().UTC(),
	}

	b := s.store.NewBatch()
	defer b.Close()
	b.PutNotification(n)
	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	return n, nil
}

// Notifications returns a user's notifications, newest first
func (s *BiddingService) Notifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notifications, err := s.store.Notifications(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	return notifications, nil
}
