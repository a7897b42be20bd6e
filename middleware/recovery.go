package middleware

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// RecoveryConfig defines configuration for recovery middleware.
type RecoveryConfig struct {
	// PrintStack logs the stack trace with the panic.
	PrintStack bool `json:"printStack"`

	// StackSize is the maximum logged stack size in bytes.
	// Default: 4KB
	StackSize int `json:"stackSize" validate:"gte=0"`

	// Handler renders the response after a panic.
	// Default: 500 with a JSON error body
	Handler func(c *core.Context, recovered any) error `json:"-"`
}

// Recovery returns a middleware that turns a panic further down the chain
// into a 500 response, keeping the connection open.
//
// Example:
//
//	app.Use(middleware.Recovery(log, middleware.RecoveryConfig{PrintStack: true}))
func Recovery(log *zap.Logger, config RecoveryConfig) core.Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	if config.StackSize == 0 {
		config.StackSize = 4 << 10
	}

	return func(c *core.Context, next core.Next) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			fields := []zap.Field{
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("panic", fmt.Sprint(r)),
			}
			if config.PrintStack {
				stack := debug.Stack()
				if len(stack) > config.StackSize {
					stack = stack[:config.StackSize]
				}
				fields = append(fields, zap.ByteString("stack", stack))
			}
			log.Error("panic recovered", fields...)

			if config.Handler != nil {
				err = config.Handler(c, r)
				return
			}
			err = c.JSON(http11.StatusInternalServerError, map[string]string{
				"error": "Internal server error",
			})
		}()
		return next()
	}
}

func newRecoveryDescriptor(log *zap.Logger) Descriptor {
	return Descriptor{
		Name:        "recovery",
		Description: "Recovers panics into 500 responses",
		Version:     "1.0.0",
		Priority:    1,
		Group:       GroupMonitoring,
		Defaults:    Options{"printStack": true},
		Validate:    decoder[RecoveryConfig](nil),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg RecoveryConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			return Recovery(log, cfg), nil
		},
	}
}
