package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// CORSConfig defines configuration for CORS middleware.
type CORSConfig struct {
	// Origin is "*", a single origin, or a list of origins.
	Origin StringList `json:"origin" validate:"required,min=1,dive,required"`

	// Methods answered on preflight.
	// Default: GET, POST, PUT, DELETE, OPTIONS
	Methods []string `json:"methods" validate:"dive,required"`

	// AllowedHeaders answered on preflight. When empty the preflight's
	// Access-Control-Request-Headers is echoed back.
	AllowedHeaders []string `json:"allowedHeaders" validate:"dive,required"`

	Credentials bool `json:"credentials"`

	// MaxAge in seconds; nil leaves the header unset.
	MaxAge *int `json:"maxAge" validate:"omitempty,gte=0"`
}

// DefaultCORSConfig returns a permissive configuration.
func DefaultCORSConfig() CORSConfig {
	maxAge := 86400
	return CORSConfig{
		Origin:         StringList{"*"},
		Methods:        []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         &maxAge,
	}
}

// CORS returns a middleware that sets Cross-Origin Resource Sharing headers.
//
// An allowed origin gets Access-Control-Allow-Origin (and -Credentials when
// enabled). An OPTIONS preflight from an allowed origin is answered with
// 204 and the chain stops there.
//
// Example:
//
//	app.Use(middleware.CORS(middleware.CORSConfig{
//	    Origin:      middleware.StringList{"https://example.com"},
//	    Credentials: true,
//	}))
func CORS(config CORSConfig) core.Middleware {
	allowAll := len(config.Origin) == 1 && config.Origin[0] == "*"
	origins := make(map[string]bool, len(config.Origin))
	for _, o := range config.Origin {
		origins[o] = true
	}

	allowMethods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(config.Methods) > 0 {
		allowMethods = strings.Join(config.Methods, ", ")
	}
	allowHeaders := strings.Join(config.AllowedHeaders, ", ")
	var maxAge string
	if config.MaxAge != nil {
		maxAge = strconv.Itoa(*config.MaxAge)
	}

	return func(c *core.Context, next core.Next) error {
		origin := c.GetHeader("Origin")

		var allowed string
		switch {
		case allowAll:
			allowed = "*"
		case origin != "" && origins[origin]:
			allowed = origin
		}
		if allowed == "" {
			return next()
		}

		c.SetHeader("Access-Control-Allow-Origin", allowed)
		if config.Credentials {
			c.SetHeader("Access-Control-Allow-Credentials", "true")
		}

		if !strings.EqualFold(c.Method(), "OPTIONS") {
			return next()
		}

		c.SetHeader("Access-Control-Allow-Methods", allowMethods)
		switch {
		case allowHeaders != "":
			c.SetHeader("Access-Control-Allow-Headers", allowHeaders)
		case c.GetHeader("Access-Control-Request-Headers") != "":
			c.SetHeader("Access-Control-Allow-Headers", c.GetHeader("Access-Control-Request-Headers"))
		default:
			c.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if maxAge != "" {
			c.SetHeader("Access-Control-Max-Age", maxAge)
		}
		return c.NoContent(http11.StatusNoContent)
	}
}

func newCORSDescriptor() Descriptor {
	return Descriptor{
		Name:        "cors",
		Description: "Handles CORS headers and preflight requests",
		Version:     "1.0.0",
		Priority:    20,
		Group:       GroupSecurity,
		Defaults: Options{
			"origin":         "*",
			"methods":        []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			"allowedHeaders": []string{"Content-Type", "Authorization"},
			"credentials":    false,
			"maxAge":         86400,
		},
		Validate: decoder(func(cfg *CORSConfig) error {
			if cfg.Credentials && len(cfg.Origin) == 1 && cfg.Origin[0] == "*" {
				return errors.New("credentials cannot be combined with origin \"*\"")
			}
			return nil
		}),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg CORSConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			return CORS(cfg), nil
		},
	}
}
