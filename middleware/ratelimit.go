package middleware

import (
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	// WindowMs is the window length in milliseconds.
	// Default: 60000
	WindowMs int `json:"windowMs" validate:"gt=0"`

	// MaxRequests allowed per key per window.
	// Default: 100
	MaxRequests int `json:"maxRequests" validate:"gt=0"`

	// Message is returned in the 429 body.
	Message string `json:"message"`

	// KeyFunc derives the client key. Default: ClientKey.
	KeyFunc func(*core.Context) string `json:"-"`

	// Store holds the counters. Default: a new store with one-minute cleanup.
	Store *RateLimitStore `json:"-"`
}

const defaultRateLimitMessage = "Too many requests, please try again later."

// rateLimitBody is the 429 response.
type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
	WindowMs   int    `json:"windowMs"`
}

// RateLimit returns fixed-window rate limiting middleware.
//
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset (unix seconds). Once a key exceeds MaxRequests in its
// window the chain stops with 429, a Retry-After header and a JSON body.
//
// Example:
//
//	app.Use(middleware.RateLimit(middleware.RateLimitConfig{
//	    WindowMs:    60000,
//	    MaxRequests: 100,
//	}))
func RateLimit(config RateLimitConfig) core.Middleware {
	if config.WindowMs <= 0 {
		config.WindowMs = 60000
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.Message == "" {
		config.Message = defaultRateLimitMessage
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ClientKey
	}
	if config.Store == nil {
		config.Store = NewRateLimitStore(time.Minute, nil)
	}

	windowLen := time.Duration(config.WindowMs) * time.Millisecond
	limit := strconv.Itoa(config.MaxRequests)

	return func(c *core.Context, next core.Next) error {
		hit := config.Store.Increment(config.KeyFunc(c), windowLen, config.MaxRequests)

		c.SetHeader("X-RateLimit-Limit", limit)
		c.SetHeader("X-RateLimit-Remaining", strconv.Itoa(max(0, config.MaxRequests-hit.Count)))
		c.SetHeader("X-RateLimit-Reset", strconv.FormatInt(ceilUnix(hit.ResetAt), 10))

		if !hit.Exceeded {
			return next()
		}

		retryAfter := int(math.Ceil(time.Until(hit.ResetAt).Seconds()))
		c.SetHeader("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http11.StatusTooManyRequests, rateLimitBody{
			Error:      "Too Many Requests",
			Message:    config.Message,
			RetryAfter: retryAfter,
			Limit:      config.MaxRequests,
			WindowMs:   config.WindowMs,
		})
	}
}

// ClientKey identifies a client by the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host, falling back to
// "unknown-client".
func ClientKey(c *core.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if addr := c.RemoteAddr(); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "unknown-client"
}

func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}

func newRateLimitDescriptor(store *RateLimitStore) Descriptor {
	return Descriptor{
		Name:        "rateLimit",
		Description: "Fixed-window rate limiting per client",
		Version:     "1.0.0",
		Priority:    30,
		Group:       GroupRateLimiting,
		Defaults: Options{
			"windowMs":    60000,
			"maxRequests": 100,
			"message":     defaultRateLimitMessage,
		},
		Validate: decoder[RateLimitConfig](nil),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg RateLimitConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			cfg.Store = store
			return RateLimit(cfg), nil
		},
	}
}
