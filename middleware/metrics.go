package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/watt-toolkit/riptide/core"
)

// ChainMetrics are Prometheus collectors describing how requests move
// through the middleware chain.
type ChainMetrics struct {
	inFlight prometheus.Gauge
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewChainMetrics registers the chain collectors with reg.
func NewChainMetrics(reg prometheus.Registerer) *ChainMetrics {
	factory := promauto.With(reg)
	return &ChainMetrics{
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "riptide",
			Subsystem: "chain",
			Name:      "in_flight",
			Help:      "Requests currently inside the middleware chain",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "chain",
			Name:      "requests_total",
			Help:      "Requests by chain outcome (done or aborted) and status class",
		}, []string{"outcome", "class"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riptide",
			Subsystem: "chain",
			Name:      "duration_seconds",
			Help:      "Time spent in the rest of the chain",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"outcome"}),
	}
}

// Metrics returns a middleware recording chain outcomes into m. Place it
// first so it observes every other middleware.
func Metrics(m *ChainMetrics) core.Middleware {
	return func(c *core.Context, next core.Next) error {
		m.inFlight.Inc()
		start := time.Now()
		err := next()
		m.inFlight.Dec()

		outcome := "done"
		if c.ChainState() != core.StateDone {
			outcome = "aborted"
		}
		class := strconv.Itoa(c.StatusCode()/100) + "xx"
		m.outcomes.WithLabelValues(outcome, class).Inc()
		m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		return err
	}
}

func newMetricsDescriptor(m *ChainMetrics) Descriptor {
	return Descriptor{
		Name:        "metrics",
		Description: "Prometheus metrics for the middleware chain",
		Version:     "1.0.0",
		Priority:    2,
		Group:       GroupMonitoring,
		Factory: func(Options) (core.Middleware, error) {
			return Metrics(m), nil
		},
	}
}
