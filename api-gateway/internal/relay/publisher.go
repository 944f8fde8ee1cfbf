package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

const (
	StreamName    = models.EventStreamName
	SubjectPrefix = models.EventSubjectPrefix
)

// Subject returns the JetStream subject of a listing's events
func Subject(listingID string) string {
	return SubjectPrefix + listingID
}

// Publisher hands an outbox event to the event sink. A nil error means the
// sink has durably accepted the event.
type Publisher interface {
	Publish(ctx context.Context, ev *models.Event) error
	Close() error
}

// streamPublisher is the part of jetstream.JetStream the relay uses
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes events to NATS JetStream
type JetStreamPublisher struct {
	js streamPublisher
}

// NewJetStreamPublisher creates the JetStream context and ensures the stream exists
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed marketplace events for archival",
		Subjects:    []string{SubjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStreamPublisher{js: js}, nil
}

// Publish waits for the server's acknowledgement. The event id is the
// message id, so a redelivered outbox record is dropped as a duplicate.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, Subject(ev.ListingID), data, jetstream.WithMsgID(ev.EventID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}

// Close is a no-op; the NATS connection is owned by the caller
func (p *JetStreamPublisher) Close() error {
	return nil
}

// KafkaPublisher publishes events to a Kafka topic, keyed by listing so a
// listing's events stay in one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaConfig returns the producer settings the publisher expects
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewKafkaPublisher connects a synchronous producer to brokers
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaPublisherFromProducer(producer, topic), nil
}

// NewKafkaPublisherFromProducer wraps an existing producer
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends the event and waits for all in-sync replicas
func (p *KafkaPublisher) Publish(_ context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.ListingID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(ev.EventID)},
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher acknowledges every event after logging it; used when no
// event sink is configured.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(_ context.Context, ev *models.Event) error {
	p.logger.Debug("event_discarded", "event", ev.EventID, "type", ev.Type, "listing", ev.ListingID, "seq", ev.Seq)
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error {
	return nil
}
