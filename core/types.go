package core

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
	"github.com/watt-toolkit/riptide/pkg/riptide/server"
)

// HTTPMethod represents an HTTP method.
type HTTPMethod string

// HTTP methods the router dispatches. Matching is case-insensitive.
const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodDelete HTTPMethod = "DELETE"
)

// Handler defines a standard request handler function.
//
// Handlers receive a Context and return an error. If an error is returned,
// the App's error handler renders it, unless it wraps ErrAbort.
//
// Example:
//
//	func echo(c *core.Context) error {
//	    return c.Text(200, c.Param("str"))
//	}
type Handler func(*Context) error

// Next continues a request's middleware chain. It runs the following
// middleware, or the route handler once the middleware are exhausted.
// Calling it a second time is a no-op that returns nil.
type Next func() error

// Middleware runs around the rest of the chain. It continues by calling
// next; returning without calling next ends the request with whatever
// response has been written so far.
//
// Example:
//
//	func Timing(c *core.Context, next core.Next) error {
//	    start := time.Now()
//	    err := next()
//	    c.SetHeader("X-Response-Time", time.Since(start).String())
//	    return err
//	}
type Middleware func(c *Context, next Next) error

// ErrorHandler handles errors returned by handlers and middleware.
type ErrorHandler func(*Context, error)

// Common errors returned by the framework.
var (
	// ErrNotFound is returned when no route matches the path.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned for requests a handler rejects as malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized is returned for authentication failures.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned for authorization failures.
	ErrForbidden = errors.New("forbidden")

	// ErrMethodNotAllowed is returned when the method is not GET, POST, PUT or DELETE.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrRequestTooLarge is returned when request body exceeds limits.
	ErrRequestTooLarge = errors.New("request too large")

	// ErrInternalServerError is returned for internal errors.
	ErrInternalServerError = errors.New("internal server error")

	// ErrAbort marks a failure that must end the connection instead of
	// being rendered as a response.
	ErrAbort = errors.New("request aborted")
)

// Routing errors.
var (
	// ErrInvalidPattern is returned when a route pattern fails normalization.
	ErrInvalidPattern = errors.New("core: invalid route pattern")

	// ErrInvalidMethod is returned when registering an unsupported method.
	ErrInvalidMethod = errors.New("core: unsupported method")

	// ErrDuplicateRoute is returned when a method and normalized pattern are already registered.
	ErrDuplicateRoute = errors.New("core: duplicate route")

	// ErrRouterFrozen is returned when registering after the server started.
	ErrRouterFrozen = errors.New("core: routes cannot change after the server starts")
)

// RouteInfo contains metadata about a registered route.
type RouteInfo struct {
	Method  HTTPMethod
	Pattern string
}

// Config holds application configuration.
type Config struct {
	// Error handler (default: DefaultErrorHandler)
	ErrorHandler ErrorHandler

	// Logger (default: no-op)
	Logger *zap.Logger

	// Server configures the TCP server started by Listen and Run. Its Addr
	// is replaced by the address passed to them.
	Server server.Config

	// ShutdownTimeout bounds the graceful shutdown in Run (default: 30s).
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ErrorHandler:    DefaultErrorHandler,
		Server:          server.DefaultConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultErrorHandler maps framework errors to status codes and renders
// the reason phrase as a plain-text body. Anything unrecognized is a 500.
func DefaultErrorHandler(c *Context, err error) {
	status := StatusForError(err)
	_ = c.Text(status, http11.StatusText(status))
}

// StatusForError maps a framework error to its status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http11.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http11.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http11.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http11.StatusForbidden
	case errors.Is(err, ErrMethodNotAllowed):
		return http11.StatusMethodNotAllowed
	case errors.Is(err, ErrRequestTooLarge):
		return http11.StatusPayloadTooLarge
	default:
		return http11.StatusInternalServerError
	}
}
