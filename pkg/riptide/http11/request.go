package http11

import (
	"context"
	"strings"
)

// Request is a parsed HTTP/1.1 request.
//
// Header keys are lowercase; when a header repeats the last value wins.
// Body holds the fully decoded payload (transfer and content codings removed)
// and is only populated for POST, PUT and DELETE.
type Request struct {
	Method  string
	URL     string
	Path    string
	Query   string
	Version string
	Header  map[string]string

	// Body is the decoded payload. Text is its UTF-8 rendering with invalid
	// sequences replaced. JSON is set when Content-Type is application/json.
	Body []byte
	Text string
	JSON map[string]any

	// Params holds path parameters bound by the router. It stays nil until a
	// pattern route matches.
	Params map[string]string

	// Close is set when the client sent Connection: close.
	Close bool

	RemoteAddr string

	ctx context.Context
}

// MethodID returns the parsed method identifier.
func (r *Request) MethodID() uint8 {
	return ParseMethodID(r.Method)
}

// GetHeader returns a header value by name, case-insensitively.
func (r *Request) GetHeader(name string) string {
	if r.Header == nil {
		return ""
	}
	if v, ok := r.Header[name]; ok {
		return v
	}
	return r.Header[strings.ToLower(name)]
}

// HasHeader reports whether the request carried the header.
func (r *Request) HasHeader(name string) bool {
	if r.Header == nil {
		return false
	}
	_, ok := r.Header[strings.ToLower(name)]
	return ok
}

// Param returns a bound path parameter.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Context returns the request context. It is cancelled when the connection
// that carried the request closes.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// wantsClose reports whether the Connection header contains the close token.
func wantsClose(value string) bool {
	for _, tok := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "close") {
			return true
		}
	}
	return false
}

// mediaType strips parameters from a Content-Type value and lowercases it.
func mediaType(value string) string {
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
