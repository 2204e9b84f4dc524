// Package engine holds the active strategy of a running geneva instance and applies it to
// packets, recording metrics as it goes.
package engine

import (
	"sync/atomic"
	"time"

	"github.com/getlantern/errors"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
	"github.com/getlantern/geneva/v2/strategy"
)

type options struct {
	log     logger.Logger
	metrics metrics.Metrics
}

type Option func(*options)

func LoggerOption(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func MetricsOption(m metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Engine applies the current strategy to packets. The strategy can be replaced at any time from
// another goroutine; packets already being processed finish with the strategy they started with.
type Engine struct {
	strategy atomic.Pointer[strategy.Strategy]
	log      logger.Logger
	metrics  metrics.Metrics
}

func New(s *strategy.Strategy, opts ...Option) *Engine {
	o := options{
		log:     logger.Nop(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		log:     o.log,
		metrics: o.metrics,
	}
	if s == nil {
		s = &strategy.Strategy{}
	}
	e.strategy.Store(s)

	return e
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() *strategy.Strategy {
	return e.strategy.Load()
}

// SetStrategy replaces the active strategy. A nil strategy passes every packet through.
func (e *Engine) SetStrategy(s *strategy.Strategy) {
	if s == nil {
		s = &strategy.Strategy{}
	}

	old := e.strategy.Swap(s)
	e.metrics.Counter(metrics.MetricStrategyUpdatesCounter, nil).Inc()
	e.log.WithFields(map[string]any{
		"old": old.String(),
		"new": s.String(),
	}).Info("strategy updated")
}

// Update parses text and, if it is a valid strategy, makes it the active one.
func (e *Engine) Update(text string) (*strategy.Strategy, error) {
	s, err := geneva.NewStrategy(text)
	if err != nil {
		return nil, err
	}

	e.SetStrategy(s)

	return s, nil
}

// Process applies the active strategy to pkt travelling in direction dir.
func (e *Engine) Process(pkt *common.Packet, dir strategy.Direction) ([]*common.Packet, error) {
	labels := metrics.Labels{"direction": dir.String()}

	e.metrics.Counter(metrics.MetricPacketsCounter, labels).Inc()

	inFlight := e.metrics.Gauge(metrics.MetricPacketsInFlightGauge, labels)
	inFlight.Inc()
	defer inFlight.Dec()

	start := time.Now()
	result, err := e.strategy.Load().Apply(pkt, dir)
	e.metrics.Observer(metrics.MetricApplyDurationObserver, labels).Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.Counter(metrics.MetricApplyErrorsCounter, labels).Inc()
		return nil, errors.New("applying %s strategy: %v", dir, err)
	}

	e.metrics.Counter(metrics.MetricPacketsEmittedCounter, labels).Add(float64(len(result)))

	if e.log.IsLevelEnabled(logger.TraceLevel) {
		e.log.WithFields(map[string]any{
			"direction": dir.String(),
			"in":        pkt.Len(),
			"out":       len(result),
		}).Trace("packet processed")
	}

	return result, nil
}
