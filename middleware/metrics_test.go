package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

func TestMetricsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChainMetrics(reg)
	mw := Metrics(m)

	run(newRequest("GET", "/", nil), mw)
	run(newRequest("GET", "/", nil), mw, func(c *core.Context, next core.Next) error {
		return c.Text(http11.StatusForbidden, "no")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("done", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("aborted", "4xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetricsDescriptorRegistered(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(reg, Builtins{
		Registerer:     prometheus.NewRegistry(),
		RateLimitStore: NewRateLimitStore(0, nil),
	}))

	d, ok := reg.Get("metrics")
	require.True(t, ok)
	assert.Equal(t, GroupMonitoring, d.Group)
	assert.Equal(t, 2, d.Priority)
}
