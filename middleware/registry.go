// Package middleware provides the middleware registry, the declarative
// loader that builds a chain from configuration, and the built-in
// middleware (logger, request id, recovery, metrics, CORS, rate limit, auth).
package middleware

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/core"
)

// Group is the execution category of a middleware. Groups run in the order
// they are declared below; priority orders middleware within a group.
type Group string

const (
	GroupMonitoring   Group = "monitoring"
	GroupSecurity     Group = "security"
	GroupRateLimiting Group = "rate_limiting"
	GroupAuth         Group = "auth"
	GroupParsing      Group = "parsing"
	GroupBusiness     Group = "business"
	GroupFinalization Group = "finalization"
)

var groupOrder = map[Group]int{
	GroupMonitoring:   1,
	GroupSecurity:     2,
	GroupRateLimiting: 3,
	GroupAuth:         4,
	GroupParsing:      5,
	GroupBusiness:     6,
	GroupFinalization: 7,
}

// Rank returns the group's position in execution order, or 0 for an
// unknown group.
func (g Group) Rank() int {
	return groupOrder[g]
}

// Valid reports whether g is one of the declared groups.
func (g Group) Valid() bool {
	return groupOrder[g] > 0
}

// Options are per-middleware settings as they come from configuration.
type Options map[string]any

// Factory builds a middleware from merged, validated options.
type Factory func(opts Options) (core.Middleware, error)

// Descriptor describes a middleware the loader can build.
type Descriptor struct {
	Name        string
	Description string
	Version     string

	// Priority orders the middleware within its group; lower runs earlier.
	Priority int
	Group    Group

	Factory  Factory
	Defaults Options

	// Validate checks merged options. Nil accepts anything.
	Validate func(opts Options) error
}

// Stats summarizes a registry.
type Stats struct {
	Total   int
	ByGroup map[Group]int
}

// Registry errors.
var (
	ErrInvalidDescriptor = errors.New("middleware: invalid descriptor")
	ErrUnknownMiddleware = errors.New("middleware: not registered")
	ErrInvalidOptions    = errors.New("middleware: invalid options")
)

// Registry holds middleware descriptors by name.
//
// A Registry is created once at startup and handed to the Loader. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
	order   []string
	log     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]Descriptor),
		log:     log.Named("registry"),
	}
}

// Register adds a descriptor. Registering an existing name replaces it.
func (r *Registry) Register(d Descriptor) error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	case d.Factory == nil:
		return fmt.Errorf("%w: %s has no factory", ErrInvalidDescriptor, d.Name)
	case !d.Group.Valid():
		return fmt.Errorf("%w: %s has unknown group %q", ErrInvalidDescriptor, d.Name, d.Group)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[d.Name]; ok {
		r.log.Warn("middleware already registered, overwriting", zap.String("name", d.Name))
	} else {
		r.order = append(r.order, d.Name)
	}
	r.entries[d.Name] = d
	r.log.Debug("middleware registered",
		zap.String("name", d.Name),
		zap.String("group", string(d.Group)),
		zap.Int("priority", d.Priority))
	return nil
}

// Unregister removes a descriptor and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// ByGroup returns the descriptors of one group in registration order.
func (r *Registry) ByGroup(g Group) []Descriptor {
	var out []Descriptor
	for _, d := range r.All() {
		if d.Group == g {
			out = append(out, d)
		}
	}
	return out
}

// Sorted returns every descriptor in execution order: group, then
// priority, then registration order.
func (r *Registry) Sorted() []Descriptor {
	all := r.All()
	sort.SliceStable(all, func(i, j int) bool {
		if gi, gj := all[i].Group.Rank(), all[j].Group.Rank(); gi != gj {
			return gi < gj
		}
		return all[i].Priority < all[j].Priority
	})
	return all
}

// Stats counts descriptors in total and per group.
func (r *Registry) Stats() Stats {
	s := Stats{ByGroup: make(map[Group]int)}
	for _, d := range r.All() {
		s.Total++
		s.ByGroup[d.Group]++
	}
	return s
}

// Clear removes every descriptor.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Descriptor)
	r.order = nil
}

// MergedOptions overlays opts on the descriptor's defaults.
func (r *Registry) MergedOptions(name string, opts Options) Options {
	d, ok := r.Get(name)
	merged := make(Options, len(opts)+len(d.Defaults))
	if ok {
		for k, v := range d.Defaults {
			merged[k] = v
		}
	}
	for k, v := range opts {
		merged[k] = v
	}
	return merged
}

// ValidateOptions runs the descriptor's validator on opts.
func (r *Registry) ValidateOptions(name string, opts Options) error {
	d, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMiddleware, name)
	}
	if d.Validate == nil {
		return nil
	}
	if err := d.Validate(opts); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidOptions, name, err)
	}
	return nil
}
