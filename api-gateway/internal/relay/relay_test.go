package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/metrics"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

type fakePublisher struct {
	mu       sync.Mutex
	received []*models.Event
	failOn   map[uint64]bool
}

func (p *fakePublisher) Publish(_ context.Context, ev *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[ev.Seq] {
		return errors.New("sink unavailable")
	}
	p.received = append(p.received, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func seedOutbox(t *testing.T, st *store.Store, n int) {
	t.Helper()
	b := st.NewBatch()
	defer b.Close()
	for i := 0; i < n; i++ {
		b.AppendEvent(&models.Event{Type: models.EventBidUpdate, ListingID: "l-1"})
	}
	require.NoError(t, b.Commit())
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("", store.WithInMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFlushPublishesInOrderAndAcks(t *testing.T) {
	st := newTestStore(t)
	seedOutbox(t, st, 3)
	pub := &fakePublisher{}
	r := New(st, pub, logging.NewNopLogger(), metrics.NopMetrics())

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.received, 3)
	for i, ev := range pub.received {
		assert.EqualValues(t, i+1, ev.Seq)
	}

	pending, err := st.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, pending)

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "acknowledged records are not sent again")
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	st := newTestStore(t)
	seedOutbox(t, st, 3)
	pub := &fakePublisher{failOn: map[uint64]bool{2: true}}
	r := New(st, pub, logging.NewNopLogger(), metrics.NopMetrics())

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var states []store.OutboxState
	var attempts []uint32
	require.NoError(t, st.ScanPending(0, func(rec *store.OutboxRecord) error {
		states = append(states, rec.State)
		attempts = append(attempts, rec.Attempts)
		return nil
	}))
	assert.Equal(t, []store.OutboxState{store.OutboxFailed, store.OutboxNew}, states)
	assert.Equal(t, []uint32{1, 0}, attempts)

	pub.failOn = nil
	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.received, 3)
	assert.EqualValues(t, 3, pub.received[2].Seq)
}

func TestKafkaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "l-7" {
			return errors.New("message is not keyed by listing")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherFromProducer(producer, "market-events")
	ev := &models.Event{EventID: "e-1", Type: models.EventOrderCreated, ListingID: "l-7"}

	require.NoError(t, pub.Publish(context.Background(), ev))
	err := pub.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, pub.Close())
}

type fakeStream struct {
	subject string
	msgID   string
	payload []byte
}

func (s *fakeStream) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	s.subject = subject
	s.payload = payload
	if len(opts) > 0 {
		s.msgID = "set"
	}
	return &jetstream.PubAck{Stream: StreamName, Sequence: 1}, nil
}

func TestJetStreamPublisherUsesListingSubject(t *testing.T) {
	stream := &fakeStream{}
	pub := &JetStreamPublisher{js: stream}

	ev := &models.Event{EventID: "e-9", Type: models.EventBidUpdate, ListingID: "l-3"}
	require.NoError(t, pub.Publish(context.Background(), ev))

	assert.Equal(t, "market.events.l-3", stream.subject)
	assert.Equal(t, "set", stream.msgID, "event id is sent as the message id")

	var got models.Event
	require.NoError(t, json.Unmarshal(stream.payload, &got))
	assert.Equal(t, "e-9", got.EventID)
}

func TestLogPublisherAcceptsEverything(t *testing.T) {
	pub := NewLogPublisher(logging.NewNopLogger())
	assert.NoError(t, pub.Publish(context.Background(), &models.Event{EventID: "e"}))
	assert.NoError(t, pub.Close())
}
