package middleware

import (
	"github.com/google/uuid"

	"github.com/watt-toolkit/riptide/core"
)

// RequestIDConfig defines configuration for request id middleware.
type RequestIDConfig struct {
	// Header carries the id on request and response.
	// Default: X-Request-ID
	Header string `json:"header"`

	// ContextKey stores the id for later middleware and handlers.
	// Default: request_id
	ContextKey string `json:"contextKey"`

	// Generator creates new ids. Default: uuid.NewString
	Generator func() string `json:"-"`
}

// RequestID returns a middleware that tags every request with an id. An id
// sent by the client is kept; otherwise a UUID is generated.
func RequestID(config RequestIDConfig) core.Middleware {
	if config.Header == "" {
		config.Header = "X-Request-ID"
	}
	if config.ContextKey == "" {
		config.ContextKey = "request_id"
	}
	if config.Generator == nil {
		config.Generator = uuid.NewString
	}

	return func(c *core.Context, next core.Next) error {
		id := c.GetHeader(config.Header)
		if id == "" {
			id = config.Generator()
		}
		c.Set(config.ContextKey, id)
		c.SetHeader(config.Header, id)
		return next()
	}
}

func newRequestIDDescriptor() Descriptor {
	return Descriptor{
		Name:        "requestId",
		Description: "Assigns a request id",
		Version:     "1.0.0",
		Priority:    5,
		Group:       GroupMonitoring,
		Validate:    decoder[RequestIDConfig](nil),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg RequestIDConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			return RequestID(cfg), nil
		},
	}
}
