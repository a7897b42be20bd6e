package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// Metrics are the Prometheus collectors for one server.
// A nil *Metrics records nothing. Metrics is an http11.Observer, so other
// transports can feed the same collectors.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	idleTimeouts      prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	parseErrors       *prometheus.CounterVec
}

// NewMetrics registers the server collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted TCP connections",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "riptide",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Connections currently open",
		}),
		idleTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "server",
			Name:      "idle_timeouts_total",
			Help:      "Connections closed by the idle timeout",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served, by method and status code",
		}, []string{"method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riptide",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from parsed request to assembled response",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"method"}),
		parseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "http",
			Name:      "parse_errors_total",
			Help:      "Requests rejected with 400, by error kind",
		}, []string{"kind"}),
	}
}

// ConnOpened records an accepted connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

// ConnClosed records a closed connection; idle marks an idle timeout.
func (m *Metrics) ConnClosed(idle bool) {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
	if idle {
		m.idleTimeouts.Inc()
	}
}

// RequestServed implements http11.Observer.
func (m *Metrics) RequestServed(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	// Unknown methods share one label so clients cannot grow the series set.
	label := http11.MethodString(http11.ParseMethodID(method))
	if label == "" {
		label = "OTHER"
	}
	m.requestsTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ParseFailed implements http11.Observer.
func (m *Metrics) ParseFailed(kind http11.ErrorKind) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(kind.String()).Inc()
}
