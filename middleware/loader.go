package middleware

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/core"
)

// Policy decides what happens when a middleware fails.
type Policy string

const (
	// PolicyContinue logs the failure and runs the rest of the chain as if
	// the middleware had called next.
	PolicyContinue Policy = "continue"
	// PolicyStop aborts the request; the connection is closed.
	PolicyStop Policy = "stop"
)

// DefaultMaxExecutionTime is the monitoring threshold when none is configured.
const DefaultMaxExecutionTime = 5000 * time.Millisecond

// GlobalConfig is the wrapping policy applied to every loaded middleware.
type GlobalConfig struct {
	ErrorHandling         Policy `json:"errorHandling" yaml:"errorHandling" toml:"errorHandling" validate:"omitempty,oneof=continue stop"`
	PerformanceMonitoring bool   `json:"performanceMonitoring" yaml:"performanceMonitoring" toml:"performanceMonitoring"`
	MaxExecutionTimeMs    int    `json:"maxExecutionTimeMs" yaml:"maxExecutionTimeMs" toml:"maxExecutionTimeMs" validate:"gte=0"`
}

func (g GlobalConfig) withDefaults() GlobalConfig {
	if g.ErrorHandling == "" {
		g.ErrorHandling = PolicyContinue
	}
	if g.MaxExecutionTimeMs == 0 {
		g.MaxExecutionTimeMs = int(DefaultMaxExecutionTime / time.Millisecond)
	}
	return g
}

// Entry configures one middleware.
type Entry struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	// Priority overrides the descriptor's priority when set.
	Priority *int `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
	// Group overrides the descriptor's group when set.
	Group   Group   `json:"group,omitempty" yaml:"group,omitempty" toml:"group,omitempty"`
	Options Options `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
}

// Configuration is the declarative middleware setup.
type Configuration struct {
	Global      GlobalConfig     `json:"global" yaml:"global" toml:"global"`
	Middlewares map[string]Entry `json:"middlewares" yaml:"middlewares" toml:"middlewares"`
}

// Loaded is one middleware built by the Loader.
type Loaded struct {
	Name       string
	Group      Group
	Priority   int
	Middleware core.Middleware
}

// Loader builds a wrapped, ordered middleware chain from a Registry and a
// Configuration.
type Loader struct {
	registry *Registry
	log      *zap.Logger
}

// NewLoader creates a loader reading descriptors from registry.
func NewLoader(registry *Registry, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{registry: registry, log: log.Named("loader")}
}

// Load builds every enabled middleware.
//
// Middleware that are disabled or absent from cfg are skipped. Options are
// merged over the descriptor defaults and validated; a middleware whose
// options fail validation, or whose factory fails, is logged and skipped.
// The result is ordered by effective group, then by effective priority. Only an
// invalid global block is returned as an error.
func (l *Loader) Load(cfg Configuration) ([]Loaded, error) {
	if err := validate.Struct(cfg.Global); err != nil {
		return nil, fmt.Errorf("%w: global: %w", ErrInvalidOptions, err)
	}
	global := cfg.Global.withDefaults()

	for name := range cfg.Middlewares {
		if !l.registry.Has(name) {
			l.log.Warn("configured middleware is not registered", zap.String("name", name))
		}
	}

	type candidate struct {
		desc     Descriptor
		opts     Options
		group    Group
		priority int
	}
	var enabled []candidate
	for _, d := range l.registry.Sorted() {
		entry, ok := cfg.Middlewares[d.Name]
		if !ok || !entry.Enabled {
			l.log.Debug("skipping disabled middleware", zap.String("name", d.Name))
			continue
		}

		opts := l.registry.MergedOptions(d.Name, entry.Options)
		if err := l.registry.ValidateOptions(d.Name, opts); err != nil {
			l.log.Error("middleware options rejected", zap.String("name", d.Name), zap.Error(err))
			continue
		}

		group := d.Group
		if entry.Group != "" {
			if !entry.Group.Valid() {
				l.log.Error("middleware group rejected", zap.String("name", d.Name), zap.String("group", string(entry.Group)))
				continue
			}
			group = entry.Group
		}
		priority := d.Priority
		if entry.Priority != nil {
			priority = *entry.Priority
		}
		enabled = append(enabled, candidate{desc: d, opts: opts, group: group, priority: priority})
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		if gi, gj := enabled[i].group.Rank(), enabled[j].group.Rank(); gi != gj {
			return gi < gj
		}
		return enabled[i].priority < enabled[j].priority
	})

	loaded := make([]Loaded, 0, len(enabled))
	for _, c := range enabled {
		mw, err := c.desc.Factory(c.opts)
		if err != nil {
			l.log.Error("middleware factory failed", zap.String("name", c.desc.Name), zap.Error(err))
			continue
		}
		loaded = append(loaded, Loaded{
			Name:       c.desc.Name,
			Group:      c.group,
			Priority:   c.priority,
			Middleware: Wrap(c.desc.Name, mw, global, l.log),
		})
		l.log.Info("middleware loaded",
			zap.String("name", c.desc.Name),
			zap.String("group", string(c.group)),
			zap.Int("priority", c.priority))
	}
	return loaded, nil
}

// Install loads cfg and appends the result to app. It returns the names
// installed, in execution order.
func (l *Loader) Install(app *core.App, cfg Configuration) ([]string, error) {
	loaded, err := l.Load(cfg)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		l.log.Warn("no middleware to install")
	}
	names := make([]string, len(loaded))
	for i, m := range loaded {
		app.Use(m.Middleware)
		names[i] = m.Name
	}
	return names, nil
}

// errMiddlewarePanic marks a panic raised by the middleware itself.
var errMiddlewarePanic = errors.New("middleware: panic")

// Wrap applies the monitoring and error policy to one middleware.
//
// With monitoring enabled, a run longer than MaxExecutionTimeMs logs a
// warning. A failure raised by mw itself (a returned error or a panic) is
// logged; PolicyStop then aborts the request with core.ErrAbort, while
// PolicyContinue runs the rest of the chain. Errors and panics coming back
// from further down the chain pass through untouched.
func Wrap(name string, mw core.Middleware, global GlobalConfig, log *zap.Logger) core.Middleware {
	global = global.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	threshold := time.Duration(global.MaxExecutionTimeMs) * time.Millisecond

	return func(c *core.Context, next core.Next) error {
		var start time.Time
		if global.PerformanceMonitoring {
			start = time.Now()
		}

		run := &wrappedRun{next: next}
		err := run.invoke(mw, c)

		if global.PerformanceMonitoring {
			if elapsed := time.Since(start); elapsed > threshold {
				log.Warn("slow middleware",
					zap.String("name", name),
					zap.Duration("elapsed", elapsed),
					zap.Duration("threshold", threshold))
			}
		}

		if err == nil || run.passthrough(err) {
			return err
		}

		log.Error("middleware failed",
			zap.String("name", name),
			zap.String("policy", string(global.ErrorHandling)),
			zap.Error(err))
		if global.ErrorHandling == PolicyStop {
			return fmt.Errorf("%w: %s: %w", core.ErrAbort, name, err)
		}
		return next()
	}
}

// wrappedRun tracks whether a failure came from mw or from downstream.
type wrappedRun struct {
	next       core.Next
	inNext     bool
	downstream error
}

func (w *wrappedRun) continueChain() error {
	w.inNext = true
	err := w.next()
	w.inNext = false
	w.downstream = err
	return err
}

func (w *wrappedRun) invoke(mw core.Middleware, c *core.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if w.inNext {
				panic(r)
			}
			err = fmt.Errorf("%w: %v", errMiddlewarePanic, r)
		}
	}()
	return mw(c, w.continueChain)
}

func (w *wrappedRun) passthrough(err error) bool {
	return w.downstream != nil && errors.Is(err, w.downstream)
}
