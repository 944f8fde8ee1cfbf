package websocket

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "broadcast"

// Metrics contains metrics exposed by the room manager.
type Metrics struct {
	// Connected websocket clients.
	Subscribers metrics.Gauge
	// Rooms with at least one client.
	Rooms metrics.Gauge
	// Messages queued to clients.
	Deliveries metrics.Counter
	// Clients dropped because their send buffer was full.
	DroppedClients metrics.Counter
}

func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Subscribers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "subscribers",
			Help:      "Connected websocket clients.",
		}, labels).With(labelsAndValues...),
		Rooms: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rooms",
			Help:      "Listings with at least one watching client.",
		}, labels).With(labelsAndValues...),
		Deliveries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "deliveries_total",
			Help:      "Messages queued to websocket clients.",
		}, labels).With(labelsAndValues...),
		DroppedClients: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected for falling behind.",
		}, labels).With(labelsAndValues...),
	}
}

func NopMetrics() *Metrics {
	return &Metrics{
		Subscribers:    discard.NewGauge(),
		Rooms:          discard.NewGauge(),
		Deliveries:     discard.NewCounter(),
		DroppedClients: discard.NewCounter(),
	}
}
