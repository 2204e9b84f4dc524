package metrics_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getlantern/geneva/v2/internal/metrics"
)

func TestPromCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	c := m.Counter(metrics.MetricPacketsCounter, metrics.Labels{"direction": "outbound"})
	c.Inc()
	c.Add(2)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.(prometheus.Collector)))

	// the same labels resolve to the same series
	again := m.Counter(metrics.MetricPacketsCounter, metrics.Labels{"direction": "outbound"})
	assert.Equal(t, float64(3), testutil.ToFloat64(again.(prometheus.Collector)))

	n, err := testutil.GatherAndCount(reg, string(metrics.MetricPacketsCounter))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPromGaugeAndObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	g := m.Gauge(metrics.MetricPacketsInFlightGauge, metrics.Labels{"direction": "inbound"})
	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, float64(1), testutil.ToFloat64(g.(prometheus.Collector)))

	m.Observer(metrics.MetricApplyDurationObserver, metrics.Labels{"direction": "inbound"}).Observe(0.0001)

	n, err := testutil.GatherAndCount(reg, string(metrics.MetricApplyDurationObserver))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnknownMetricIsNoop(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		m.Counter("nope", nil).Inc()
		m.Gauge("nope", nil).Set(1)
		m.Observer("nope", nil).Observe(1)
	})
}

func TestNoop(t *testing.T) {
	m := metrics.Noop()

	assert.NotPanics(t, func() {
		m.Counter(metrics.MetricPacketsCounter, nil).Add(1)
		m.Gauge(metrics.MetricPacketsInFlightGauge, nil).Dec()
		m.Observer(metrics.MetricApplyDurationObserver, nil).Observe(1)
	})
}

func TestService(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.Counter(metrics.MetricStrategyUpdatesCounter, nil).Inc()

	svc, err := metrics.NewService("127.0.0.1:0", "", reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	resp, err := http.Get("http://" + svc.Addr().String() + metrics.DefaultPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), string(metrics.MetricStrategyUpdatesCounter))

	cancel()
	assert.NoError(t, <-done)
}
