package websocket

import (
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/shared/logging"
)

func TestManagerReportsDroppedClients(t *testing.T) {
	m := NewManager(logging.NewNopLogger(), PrometheusMetrics("ws_test"))
	slow := &Client{ID: "slow", ListingID: "apples", Send: make(chan []byte)}
	m.rooms["apples"] = map[*Client]struct{}{slow: {}}

	m.deliver(&BroadcastMessage{ListingID: "apples", Payload: []byte("x")})

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["ws_test_broadcast_dropped_clients_total"])
	assert.Equal(t, 0.0, values["ws_test_broadcast_subscribers"])

	n, err := testutil.GatherAndCount(stdprometheus.DefaultGatherer, "ws_test_broadcast_rooms")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
