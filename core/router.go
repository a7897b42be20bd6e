package core

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

var (
	paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	literalPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// segment is one path component of a pattern.
type segment struct {
	value string // literal text, or the parameter name
	param bool
}

type route struct {
	pattern  string
	segments []segment
	handler  Handler
}

// methodTable holds one method's routes: literal patterns in a map for the
// exact-match fast path, parameterized patterns in registration order.
type methodTable struct {
	exact    map[string]*route
	patterns []*route
}

// Router maps (method, path) to handlers.
//
// Resolution tries an exact literal match first, then scans the method's
// parameterized patterns in registration order. Once frozen the table is
// read-only and lookups take no locks.
type Router struct {
	mu     sync.RWMutex
	tables [http11.MethodDELETE + 1]*methodTable
	routes []RouteInfo
	frozen atomic.Bool
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	r := &Router{}
	for id := http11.MethodGET; id <= http11.MethodDELETE; id++ {
		r.tables[id] = &methodTable{exact: make(map[string]*route)}
	}
	return r
}

// Add registers handler for method and pattern. On error the table is
// unchanged.
//
// Patterns are normalized before storage: a leading slash is added, a
// trailing slash is removed (except for "/"), empty segments are rejected,
// literal segments must match [A-Za-z0-9._-]+ and parameter segments are
// written {name} with an identifier name.
func (r *Router) Add(method HTTPMethod, pattern string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidPattern, method, pattern)
	}
	id := http11.ParseMethodID(string(method))
	if id == http11.MethodUnknown {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	normalized, segments, err := normalizePattern(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRouterFrozen
	}

	table := r.tables[id]
	for _, existing := range table.patterns {
		if existing.pattern == normalized {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, normalized)
		}
	}
	if _, ok := table.exact[normalized]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, normalized)
	}

	rt := &route{pattern: normalized, segments: segments, handler: handler}
	if hasParams(segments) {
		table.patterns = append(table.patterns, rt)
	} else {
		table.exact[normalized] = rt
	}
	r.routes = append(r.routes, RouteInfo{Method: HTTPMethod(http11.MethodString(id)), Pattern: normalized})
	return nil
}

// Freeze makes the table read-only.
func (r *Router) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Routes returns registered routes in registration order.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteInfo, len(r.routes))
	copy(out, r.routes)
	return out
}

// Lookup resolves a request method and path.
//
// It returns ErrMethodNotAllowed for methods other than GET, POST, PUT and
// DELETE, and ErrNotFound when no route matches. params is nil for exact
// matches and non-nil for pattern matches.
func (r *Router) Lookup(method, path string) (handler Handler, params map[string]string, err error) {
	id := http11.ParseMethodID(method)
	if id == http11.MethodUnknown {
		return nil, nil, ErrMethodNotAllowed
	}

	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	path = normalizeRequestPath(path)
	table := r.tables[id]
	if rt, ok := table.exact[path]; ok {
		return rt.handler, nil, nil
	}

	parts := splitPath(path)
	for _, rt := range table.patterns {
		if params, ok := rt.match(parts); ok {
			return rt.handler, params, nil
		}
	}
	return nil, nil, ErrNotFound
}

// match compares request path segments against the pattern.
func (rt *route) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.segments) {
		return nil, false
	}
	for i, seg := range rt.segments {
		if !seg.param && seg.value != parts[i] {
			return nil, false
		}
	}
	params := make(map[string]string, len(rt.segments))
	for i, seg := range rt.segments {
		if seg.param {
			params[seg.value] = parts[i]
		}
	}
	return params, true
}

// normalizePattern validates a route pattern and returns its canonical form.
func normalizePattern(pattern string) (string, []segment, error) {
	p := strings.TrimSpace(pattern)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "/" {
		return p, nil, nil
	}

	parts := strings.Split(p[1:], "/")
	segments := make([]segment, 0, len(parts))
	seen := make(map[string]bool)
	for _, part := range parts {
		switch {
		case part == "":
			return "", nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, pattern)
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if !paramNamePattern.MatchString(name) {
				return "", nil, fmt.Errorf("%w: bad parameter name %q in %q", ErrInvalidPattern, name, pattern)
			}
			if seen[name] {
				return "", nil, fmt.Errorf("%w: parameter %q repeated in %q", ErrInvalidPattern, name, pattern)
			}
			seen[name] = true
			segments = append(segments, segment{value: name, param: true})
		case literalPattern.MatchString(part):
			segments = append(segments, segment{value: part})
		default:
			return "", nil, fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPattern, part, pattern)
		}
	}
	return p, segments, nil
}

// normalizeRequestPath drops the query and a trailing slash.
func normalizeRequestPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// splitPath splits a normalized path into segments. "/" has none.
func splitPath(path string) []string {
	if path == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

func hasParams(segments []segment) bool {
	for _, s := range segments {
		if s.param {
			return true
		}
	}
	return false
}
