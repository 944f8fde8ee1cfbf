package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "market"

// Metrics contains metrics exposed by the api-gateway.
type Metrics struct {
	// Bid attempts, labelled by result.
	Bids metrics.Counter
	// Checkout lines, labelled by outcome.
	CheckoutLines metrics.Counter
	// Orders created, labelled by listing kind.
	Orders metrics.Counter
	// Outbox events handed to the event sink.
	RelayPublished metrics.Counter
	// Outbox events the sink refused.
	RelayFailed metrics.Counter
	// Outbox events not yet acknowledged.
	OutboxPending metrics.Gauge
	// Listings whose cached price disagreed with the ledger.
	ReconcileRepairs metrics.Counter
	// Auctions closed by the deadline sweeper, labelled by action.
	SweptAuctions metrics.Counter
	// Time spent waiting for a listing lock.
	LockWaitSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Bids: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bids_total",
			Help:      "Bid attempts by result.",
		}, append(labels[:len(labels):len(labels)], "result")).With(labelsAndValues...),
		CheckoutLines: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "checkout_lines_total",
			Help:      "Checkout lines by outcome.",
		}, append(labels[:len(labels):len(labels)], "outcome")).With(labelsAndValues...),
		Orders: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_total",
			Help:      "Orders created by listing kind.",
		}, append(labels[:len(labels):len(labels)], "kind")).With(labelsAndValues...),
		RelayPublished: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "relay_published_total",
			Help:      "Outbox events handed to the event sink.",
		}, labels).With(labelsAndValues...),
		RelayFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "relay_failed_total",
			Help:      "Outbox events the event sink refused.",
		}, labels).With(labelsAndValues...),
		OutboxPending: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "outbox_pending",
			Help:      "Outbox events not yet acknowledged.",
		}, labels).With(labelsAndValues...),
		ReconcileRepairs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "reconcile_repairs_total",
			Help:      "Listings whose cached price was repaired from the bid ledger.",
		}, labels).With(labelsAndValues...),
		SweptAuctions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "swept_auctions_total",
			Help:      "Expired auctions handled by the deadline sweeper.",
		}, append(labels[:len(labels):len(labels)], "action")).With(labelsAndValues...),
		LockWaitSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a listing lock.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Bids:             discard.NewCounter(),
		CheckoutLines:    discard.NewCounter(),
		Orders:           discard.NewCounter(),
		RelayPublished:   discard.NewCounter(),
		RelayFailed:      discard.NewCounter(),
		OutboxPending:    discard.NewGauge(),
		ReconcileRepairs: discard.NewCounter(),
		SweptAuctions:    discard.NewCounter(),
		LockWaitSeconds:  discard.NewHistogram(),
	}
}
