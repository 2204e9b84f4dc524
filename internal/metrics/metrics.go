// Package metrics exposes packet processing counters to Prometheus.
package metrics

type MetricName string

type Labels map[string]string

const (
	// Total packets handed to the strategy. Labels: host, direction.
	MetricPacketsCounter MetricName = "geneva_packets_total"
	// Total packets produced by the strategy. Labels: host, direction.
	MetricPacketsEmittedCounter MetricName = "geneva_packets_emitted_total"
	// Total strategy application errors. Labels: host, direction.
	MetricApplyErrorsCounter MetricName = "geneva_apply_errors_total"
	// Total verdicts issued to the kernel. Labels: host, direction, verdict.
	MetricVerdictsCounter MetricName = "geneva_verdicts_total"
	// Total strategy replacements. Labels: host.
	MetricStrategyUpdatesCounter MetricName = "geneva_strategy_updates_total"
	// Packets currently being processed. Labels: host, direction.
	MetricPacketsInFlightGauge MetricName = "geneva_packets_in_flight"
	// Strategy application latency histogram. Labels: host, direction.
	MetricApplyDurationObserver MetricName = "geneva_apply_duration_seconds"
)

type Counter interface {
	Inc()
	Add(v float64)
}

type Gauge interface {
	Inc()
	Dec()
	Add(v float64)
	Set(v float64)
}

type Observer interface {
	Observe(v float64)
}

type Metrics interface {
	Counter(name MetricName, labels Labels) Counter
	Gauge(name MetricName, labels Labels) Gauge
	Observer(name MetricName, labels Labels) Observer
}
