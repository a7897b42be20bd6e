package middleware

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// bodyPreviewBytes bounds how much of a response body is logged.
const bodyPreviewBytes = 200

// LoggerConfig defines configuration for the request logger.
type LoggerConfig struct {
	LogRequestHeaders  bool `json:"logRequestHeaders"`
	LogRequestBody     bool `json:"logRequestBody"`
	LogResponseHeaders bool `json:"logResponseHeaders"`
	LogResponseBody    bool `json:"logResponseBody"`

	// SkipPaths are paths that are never logged.
	SkipPaths []string `json:"skipPaths"`
}

// Logger returns a middleware that logs each request on entry and its
// status and duration on exit.
//
// Example:
//
//	app.Use(middleware.Logger(log, middleware.LoggerConfig{LogResponseBody: true}))
func Logger(log *zap.Logger, config LoggerConfig) core.Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("access")

	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *core.Context, next core.Next) error {
		if skip[c.Path()] {
			return next()
		}
		start := time.Now()
		req := c.Request()

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("url", req.URL),
		}
		if config.LogRequestHeaders {
			fields = append(fields, zap.Any("headers", req.Header))
		}
		if config.LogRequestBody && len(req.Body) > 0 {
			fields = append(fields, zap.String("body", req.Text))
		}
		log.Info("request", fields...)

		err := next()

		res := c.Response()
		fields = []zap.Field{
			zap.Int("status", res.StatusCode),
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Duration("duration", time.Since(start)),
		}
		if config.LogResponseHeaders {
			fields = append(fields, zap.Object("headers", headerMarshaler{&res.Header}))
		}
		if config.LogResponseBody && len(res.Body) > 0 {
			fields = append(fields, zap.String("body", preview(res.Body)))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		log.Info("response", fields...)
		return err
	}
}

func preview(body []byte) string {
	if len(body) <= bodyPreviewBytes {
		return string(body)
	}
	return string(body[:bodyPreviewBytes]) + "..."
}

// headerMarshaler logs response headers as a zap object in write order.
type headerMarshaler struct {
	h *http11.Header
}

func (m headerMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	m.h.VisitAll(func(name, value string) bool {
		enc.AddString(name, value)
		return true
	})
	return nil
}

func newLoggerDescriptor(log *zap.Logger) Descriptor {
	return Descriptor{
		Name:        "logger",
		Description: "Logs requests and responses",
		Version:     "1.0.0",
		Priority:    10,
		Group:       GroupMonitoring,
		Defaults: Options{
			"logRequestHeaders": false,
			"logRequestBody":    false,
		},
		Validate: decoder[LoggerConfig](nil),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg LoggerConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			return Logger(log, cfg), nil
		},
	}
}
