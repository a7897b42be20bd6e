// Package core is the routing and middleware layer: a route table keyed by
// method and path pattern, an index-based middleware chain and the App that
// plugs both into the HTTP/1.1 engine.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
	"github.com/watt-toolkit/riptide/pkg/riptide/server"
)

// App is the riptide application.
//
// App manages:
//   - Route registration (Get, Post, Put, Delete, Register)
//   - The global middleware sequence
//   - Dispatch of parsed requests through the chain
//   - The TCP server and its graceful shutdown
//
// Example:
//
//	app := core.New()
//	app.Get("/echo/{str}", func(c *core.Context) error {
//	    return c.Text(200, c.Param("str"))
//	})
//	app.Run(":4221")
type App struct {
	router       *Router
	contextPool  *ContextPool
	config       Config
	middleware   []Middleware
	errorHandler ErrorHandler
	log          *zap.Logger

	server   *server.Server
	stopped  bool
	serverMu sync.RWMutex
}

// New creates an application with the default configuration.
func New() *App {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an application with a custom configuration.
func NewWithConfig(config Config) *App {
	if config.ErrorHandler == nil {
		config.ErrorHandler = DefaultErrorHandler
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	contextPool := NewContextPool()
	contextPool.Warmup(64)

	return &App{
		router:       NewRouter(),
		contextPool:  contextPool,
		config:       config,
		errorHandler: config.ErrorHandler,
		log:          log,
	}
}

// Use appends global middleware. Middleware run in the order added.
//
// Example:
//
//	app.Use(middleware.RequestID(middleware.RequestIDConfig{}))
func (app *App) Use(middleware ...Middleware) {
	app.middleware = append(app.middleware, middleware...)
}

// Middleware returns the registered middleware sequence.
func (app *App) Middleware() []Middleware {
	return app.middleware
}

// Register adds a route. It fails for unsupported methods, invalid patterns,
// duplicates, and after the server has started.
func (app *App) Register(method HTTPMethod, pattern string, handler Handler) error {
	if err := app.router.Add(method, pattern, handler); err != nil {
		return err
	}
	app.log.Debug("route registered", zap.String("method", string(method)), zap.String("pattern", pattern))
	return nil
}

// Get registers a GET route.
//
// Example:
//
//	app.Get("/files/{filename}", serveFile)
func (app *App) Get(pattern string, handler Handler) error {
	return app.Register(MethodGet, pattern, handler)
}

// Post registers a POST route.
func (app *App) Post(pattern string, handler Handler) error {
	return app.Register(MethodPost, pattern, handler)
}

// Put registers a PUT route.
func (app *App) Put(pattern string, handler Handler) error {
	return app.Register(MethodPut, pattern, handler)
}

// Delete registers a DELETE route.
func (app *App) Delete(pattern string, handler Handler) error {
	return app.Register(MethodDelete, pattern, handler)
}

// Routes returns registered routes in registration order.
func (app *App) Routes() []RouteInfo {
	return app.router.Routes()
}

// Router exposes the route table.
func (app *App) Router() *Router {
	return app.router
}

// Handle dispatches one parsed request. It implements http11.Handler.
//
// Unknown methods get 405 and unmatched paths 404 without running any
// middleware. A matched request runs the middleware chain and its handler;
// errors are rendered by the error handler and keep the connection open,
// except errors wrapping ErrAbort, which are returned so the engine closes
// the connection.
func (app *App) Handle(req *http11.Request, res *http11.Response) error {
	handler, params, err := app.router.Lookup(req.Method, req.Path)
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		res.WriteText(http11.StatusMethodNotAllowed, http11.StatusText(http11.StatusMethodNotAllowed))
		return nil
	case err != nil:
		res.WriteText(http11.StatusNotFound, http11.StatusText(http11.StatusNotFound))
		return nil
	}
	if params != nil {
		req.Params = params
	}

	c := app.contextPool.Acquire()
	defer app.contextPool.Release(c)
	c.reset(req, res)

	if err := NewChain(c, app.middleware, handler).Run(); err != nil {
		if errors.Is(err, ErrAbort) {
			app.log.Error("request aborted",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err))
			return err
		}
		app.errorHandler(c, err)
	}
	return nil
}

// newServer freezes the route table and builds the TCP server. It returns
// nil once Shutdown has been called.
func (app *App) newServer(addr string) *server.Server {
	app.router.Freeze()

	cfg := app.config.Server
	cfg.Addr = addr
	if cfg.Logger == nil {
		cfg.Logger = app.log
	}

	app.serverMu.Lock()
	defer app.serverMu.Unlock()
	if app.stopped {
		return nil
	}
	app.server = server.New(app.Handle, cfg)
	return app.server
}

// Listen serves on addr until Shutdown. It returns nil at once when Shutdown
// came first.
//
// Example:
//
//	app.Listen(":4221")
func (app *App) Listen(addr string) error {
	srv := app.newServer(addr)
	if srv == nil {
		return nil
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves on addr until SIGINT or SIGTERM, then shuts down gracefully
// within the configured timeout.
func (app *App) Run(addr string) error {
	srv := app.newServer(addr)
	if srv == nil {
		return nil
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigChan:
		app.log.Info("shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			return fmt.Errorf("core: shutdown: %w", err)
		}
		app.log.Info("server stopped")
		return nil
	}
}

// Server returns the running server, or nil before Listen or Run.
func (app *App) Server() *server.Server {
	app.serverMu.RLock()
	defer app.serverMu.RUnlock()
	return app.server
}

// Shutdown gracefully shuts down the server.
//
// It waits for active connections to finish (up to context deadline). A
// Shutdown before Listen or Run makes them return without serving.
func (app *App) Shutdown(ctx context.Context) error {
	app.serverMu.Lock()
	app.stopped = true
	srv := app.server
	app.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
