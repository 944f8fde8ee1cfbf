package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

const (
	// DurableName identifies the worker's consumer on the stream; restarts
	// resume where the last instance stopped.
	DurableName = "archival-worker"

	archiveTimeout = 10 * time.Second
	redeliverDelay = 5 * time.Second
	maxDeliver     = 20
)

// Archiver persists a marketplace event
type Archiver interface {
	ArchiveEvent(ctx context.Context, ev *models.Event) error
}

// message is the part of jetstream.Msg the handler needs
type message interface {
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// NATSConsumer consumes marketplace events from JetStream and archives them
type NATSConsumer struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	archiver Archiver
	logger   logging.Logger
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(natsURL string, archiver Archiver, logger logging.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(natsURL, nats.Name(DurableName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSConsumer{
		conn:     conn,
		js:       js,
		archiver: archiver,
		logger:   logger,
	}, nil
}

// Start consumes events until ctx is cancelled. Every event is acknowledged
// only after it has been archived.
func (c *NATSConsumer) Start(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, models.EventStreamName, jetstream.ConsumerConfig{
		Durable:       DurableName,
		FilterSubject: models.EventSubjectPrefix + "*",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	c.logger.Info("consuming", "stream", models.EventStreamName, "durable", DurableName)
	<-ctx.Done()
	return nil
}

// handleMessage archives a single event. Undecodable payloads are
// terminated; archive failures are redelivered after a delay.
func (c *NATSConsumer) handleMessage(ctx context.Context, msg message) {
	var event models.Event
	if err := json.Unmarshal(msg.Data(), &event); err != nil || event.EventID == "" {
		c.logger.Error("malformed_event", "err", err)
		if err := msg.Term(); err != nil {
			c.logger.Error("term_failed", "err", err)
		}
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	if err := c.archiver.ArchiveEvent(dbCtx, &event); err != nil {
		c.logger.Error("archive_failed", "event", event.EventID, "listing", event.ListingID, "err", err)
		if err := msg.NakWithDelay(redeliverDelay); err != nil {
			c.logger.Error("nak_failed", "event", event.EventID, "err", err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		// redelivery is absorbed by the archive's duplicate check
		c.logger.Error("ack_failed", "event", event.EventID, "err", err)
		return
	}
	c.logger.Debug("event_archived", "event", event.EventID, "type", event.Type, "listing", event.ListingID)
}

// Close closes the NATS connection
func (c *NATSConsumer) Close() error {
	return c.conn.Drain()
}
