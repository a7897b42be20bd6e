// Package obs builds the process logger and the Prometheus registry, and
// exposes the registry over riptide's own HTTP engine.
package obs

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// NewLogger builds a zap logger. format is "json" (production encoder) or
// "console" (development encoder); level is a zap level name.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("obs: log level: %w", err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("obs: unknown log format %q", format)
	}
	cfg.Level = lvl
	return cfg.Build()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler renders g in the Prometheus text exposition format.
func MetricsHandler(g prometheus.Gatherer) core.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return func(c *core.Context) error {
		families, err := g.Gather()
		if err != nil {
			return fmt.Errorf("obs: gather: %w", err)
		}
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return fmt.Errorf("obs: encode %s: %w", mf.GetName(), err)
			}
		}
		return c.Bytes(http11.StatusOK, string(format), buf.Bytes())
	}
}

// NewAdminApp serves GET /metrics from g.
func NewAdminApp(g prometheus.Gatherer, log *zap.Logger) (*core.App, error) {
	cfg := core.DefaultConfig()
	cfg.Logger = log
	app := core.NewWithConfig(cfg)
	if err := app.Get("/metrics", MetricsHandler(g)); err != nil {
		return nil, err
	}
	return app, nil
}
