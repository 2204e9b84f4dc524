package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

type promMetrics struct {
	host       string
	gauges     map[MetricName]*prometheus.GaugeVec
	counters   map[MetricName]*prometheus.CounterVec
	histograms map[MetricName]*prometheus.HistogramVec
}

// NewMetrics creates the geneva collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	host, _ := os.Hostname()
	m := &promMetrics{
		host: host,
		gauges: map[MetricName]*prometheus.GaugeVec{
			MetricPacketsInFlightGauge: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: string(MetricPacketsInFlightGauge),
					Help: "Current number of packets being processed",
				},
				[]string{"host", "direction"}),
		},
		counters: map[MetricName]*prometheus.CounterVec{
			MetricPacketsCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: string(MetricPacketsCounter),
					Help: "Total number of packets handed to the strategy",
				},
				[]string{"host", "direction"}),
			MetricPacketsEmittedCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: string(MetricPacketsEmittedCounter),
					Help: "Total number of packets produced by the strategy",
				},
				[]string{"host", "direction"}),
			MetricApplyErrorsCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: string(MetricApplyErrorsCounter),
					Help: "Total number of strategy application errors",
				},
				[]string{"host", "direction"}),
			MetricVerdictsCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: string(MetricVerdictsCounter),
					Help: "Total number of queue verdicts",
				},
				[]string{"host", "direction", "verdict"}),
			MetricStrategyUpdatesCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: string(MetricStrategyUpdatesCounter),
					Help: "Total number of strategy replacements",
				},
				[]string{"host"}),
		},
		histograms: map[MetricName]*prometheus.HistogramVec{
			MetricApplyDurationObserver: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name: string(MetricApplyDurationObserver),
					Help: "Distribution of strategy application latencies",
					Buckets: []float64{
						.000005, .00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005, .01,
					},
				},
				[]string{"host", "direction"}),
		},
	}
	for k := range m.gauges {
		reg.MustRegister(m.gauges[k])
	}
	for k := range m.counters {
		reg.MustRegister(m.counters[k])
	}
	for k := range m.histograms {
		reg.MustRegister(m.histograms[k])
	}

	return m
}

func (m *promMetrics) labels(labels Labels) prometheus.Labels {
	l := prometheus.Labels{"host": m.host}
	for k, v := range labels {
		l[k] = v
	}
	return l
}

func (m *promMetrics) Gauge(name MetricName, labels Labels) Gauge {
	v, ok := m.gauges[name]
	if !ok {
		return nopGauge
	}
	return v.With(m.labels(labels))
}

func (m *promMetrics) Counter(name MetricName, labels Labels) Counter {
	v, ok := m.counters[name]
	if !ok {
		return nopCounter
	}
	return v.With(m.labels(labels))
}

func (m *promMetrics) Observer(name MetricName, labels Labels) Observer {
	v, ok := m.histograms[name]
	if !ok {
		return nopObserver
	}
	return v.With(m.labels(labels))
}
