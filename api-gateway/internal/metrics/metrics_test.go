package metrics

import (
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsAcceptLabels(t *testing.T) {
	m := PrometheusMetrics("metrics_test", "instance", "a")
	assert.NotPanics(t, func() {
		m.Bids.With("result", "accepted").Add(1)
		m.Bids.With("result", "too_low").Add(1)
		m.CheckoutLines.With("outcome", "ordered").Add(2)
		m.Orders.With("kind", "FIXED").Add(1)
		m.SweptAuctions.With("action", "accepted").Add(1)
		m.OutboxPending.Set(3)
		m.LockWaitSeconds.Observe(0.001)
	})

	n, err := testutil.GatherAndCount(stdprometheus.DefaultGatherer, "metrics_test_market_bids_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per result")
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	assert.NotPanics(t, func() {
		m.Bids.With("result", "accepted").Add(1)
		m.RelayPublished.Add(1)
		m.OutboxPending.Set(1)
	})
}
