// riptide serves HTTP/1.1 from raw TCP.
//
// Usage:
//
//	riptide -config riptide.yaml -host 0.0.0.0 -port 4221 -directory ./files
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/watt-toolkit/riptide/config"
	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/handlers"
	"github.com/watt-toolkit/riptide/internal/obs"
	"github.com/watt-toolkit/riptide/middleware"
	"github.com/watt-toolkit/riptide/pkg/riptide/evloop"
	"github.com/watt-toolkit/riptide/pkg/riptide/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "riptide: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags. Zero values leave the configuration
// untouched.
type options struct {
	configPath string
	host       string
	port       int
	directory  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("riptide", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Configuration file (.yaml, .yml, .toml or .json)")
	fs.StringVar(&opts.host, "host", "", "Listen host (overrides server.host)")
	fs.IntVar(&opts.port, "port", 0, "Listen port (overrides server.port)")
	fs.StringVar(&opts.directory, "directory", "", "Directory served by /files (overrides files.directory)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.directory != "" {
		cfg.Files.Directory = opts.directory
	}
	return cfg, cfg.Validate()
}

// transport is a listener that serves until shut down.
type transport interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// appTransport serves an App on the goroutine-per-connection server.
type appTransport struct {
	app  *core.App
	addr string
}

func (t appTransport) ListenAndServe() error { return t.app.Listen(t.addr) }

func (t appTransport) Shutdown(ctx context.Context) error { return t.app.Shutdown(ctx) }

func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	return serve(ctx, log, cfg.Server.ShutdownTimeout(), rt.listeners(cfg, log))
}

// runtime is the wired application.
type runtime struct {
	app      *core.App
	admin    *core.App // nil when metrics are disabled
	store    *middleware.RateLimitStore
	registry *prometheus.Registry
	metrics  *server.Metrics
}

func build(cfg config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{
		registry: obs.NewRegistry(),
		store:    middleware.NewRateLimitStore(time.Minute, log),
	}
	rt.metrics = server.NewMetrics(rt.registry)

	appCfg := core.DefaultConfig()
	appCfg.Logger = log
	appCfg.Server = cfg.Server.Server()
	appCfg.Server.Logger = log
	appCfg.Server.Metrics = rt.metrics
	appCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout()
	rt.app = core.NewWithConfig(appCfg)

	reg := middleware.NewRegistry(log)
	if err := middleware.RegisterBuiltins(reg, middleware.Builtins{
		Logger:         log,
		Registerer:     rt.registry,
		RateLimitStore: rt.store,
	}); err != nil {
		return nil, fmt.Errorf("register middleware: %w", err)
	}
	names, err := middleware.NewLoader(reg, log).Install(rt.app, cfg.Middleware)
	if err != nil {
		return nil, fmt.Errorf("load middleware: %w", err)
	}
	log.Info("middleware installed", zap.Strings("chain", names))

	if err := handlers.Register(rt.app, handlers.Config{Directory: cfg.Files.Directory, Logger: log}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	if cfg.Metrics.Enabled {
		if rt.admin, err = obs.NewAdminApp(rt.registry, log.Named("admin")); err != nil {
			return nil, fmt.Errorf("metrics endpoint: %w", err)
		}
	}
	return rt, nil
}

// listener is a named transport.
type listener struct {
	name string
	transport
}

func (rt *runtime) listeners(cfg config.Config, log *zap.Logger) []listener {
	var primary transport = appTransport{app: rt.app, addr: cfg.Server.Addr()}
	if cfg.Server.Transport == config.TransportEvloop {
		rt.app.Router().Freeze()
		ecfg := evloop.FromServerConfig(cfg.Server.Server())
		ecfg.Logger = log
		ecfg.Metrics = rt.metrics
		primary = evloop.New(rt.app.Handle, ecfg)
	}

	ls := []listener{{name: "http", transport: primary}}
	if rt.admin != nil {
		ls = append(ls, listener{name: "metrics", transport: appTransport{app: rt.admin, addr: cfg.Metrics.Addr}})
	}
	return ls
}

// serve runs every listener until ctx is done or one of them fails, then
// shuts all of them down within timeout.
func serve(ctx context.Context, log *zap.Logger, timeout time.Duration, ls []listener) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range ls {
		g.Go(func() error {
			log.Info("listening", zap.String("listener", l.name))
			if err := l.ListenAndServe(); err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Duration("timeout", timeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, l := range ls {
			if err := l.Shutdown(shutdownCtx); err != nil && !errors.Is(err, evloop.ErrNotStarted) {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", l.name, err))
			}
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	if err == nil {
		log.Info("stopped")
	}
	return err
}
