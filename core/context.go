package core

import (
	"context"
	"fmt"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// Context carries one request through middleware and its handler.
//
// Context provides access to:
//   - Request data (method, path, headers, decoded body)
//   - Response writing (text, JSON, HTML, raw bytes, headers)
//   - Path parameters bound by the router
//   - Request-scoped storage shared between middleware
//
// Context instances are pooled and reused.
// Never store Context references beyond the handler lifetime.
type Context struct {
	req *http11.Request
	res *http11.Response

	store map[string]any
	query url.Values
	chain Chain

	written bool
}

// Request returns the underlying parsed request.
func (c *Context) Request() *http11.Request {
	return c.req
}

// Response returns the underlying response being built.
func (c *Context) Response() *http11.Response {
	return c.res
}

// Method returns the HTTP method as the client sent it.
func (c *Context) Method() string {
	return c.req.Method
}

// Path returns the request path without the query string.
func (c *Context) Path() string {
	return c.req.Path
}

// Param returns a path parameter by name.
//
// For route "/echo/{str}", c.Param("str") returns the matched segment.
func (c *Context) Param(name string) string {
	return c.req.Params[name]
}

// Params returns all bound path parameters. It is nil for routes without
// parameters.
func (c *Context) Params() map[string]string {
	return c.req.Params
}

// Query returns a query string parameter.
func (c *Context) Query(name string) string {
	if c.query == nil {
		c.query, _ = url.ParseQuery(c.req.Query)
	}
	return c.query.Get(name)
}

// GetHeader returns a request header, case-insensitively.
func (c *Context) GetHeader(name string) string {
	return c.req.GetHeader(name)
}

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) {
	c.res.Header.Set(name, value)
}

// ResponseHeader returns a response header already set.
func (c *Context) ResponseHeader(name string) string {
	return c.res.Header.Get(name)
}

// Body returns the decoded request body.
func (c *Context) Body() []byte {
	return c.req.Body
}

// BodyText returns the body as UTF-8 text.
func (c *Context) BodyText() string {
	return c.req.Text
}

// BodyJSON returns the parsed JSON object, or nil if the request was not
// application/json.
func (c *Context) BodyJSON() map[string]any {
	return c.req.JSON
}

// BindJSON decodes the request body into v.
//
// Example:
//
//	var user User
//	if err := c.BindJSON(&user); err != nil {
//	    return c.Text(400, "Invalid JSON")
//	}
func (c *Context) BindJSON(v any) error {
	if len(c.req.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrBadRequest)
	}
	if err := json.Unmarshal(c.req.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// RemoteAddr returns the peer address of the connection.
func (c *Context) RemoteAddr() string {
	return c.req.RemoteAddr
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.req.Context()
}

// Status sets the response status without writing a body.
func (c *Context) Status(code int) *Context {
	c.res.StatusCode = code
	return c
}

// StatusCode returns the response status set so far.
func (c *Context) StatusCode() int {
	return c.res.StatusCode
}

// ChainState reports how far the request got through its middleware chain.
func (c *Context) ChainState() ChainState {
	return c.chain.state
}

// Written reports whether a body writer has been called.
func (c *Context) Written() bool {
	return c.written
}

// Text writes a plain-text response.
func (c *Context) Text(status int, text string) error {
	c.res.WriteText(status, text)
	c.written = true
	return nil
}

// JSON encodes data and writes it as application/json.
//
// Example:
//
//	return c.JSON(200, map[string]string{"status": "ok"})
func (c *Context) JSON(status int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("core: encode json: %w", err)
	}
	c.res.WriteJSON(status, body)
	c.written = true
	return nil
}

// HTML writes a text/html response.
func (c *Context) HTML(status int, html string) error {
	c.res.WriteHTML(status, html)
	c.written = true
	return nil
}

// Bytes writes a raw body with the given content type.
func (c *Context) Bytes(status int, contentType string, body []byte) error {
	c.res.StatusCode = status
	c.res.Header.Set(http11.HeaderContentType, contentType)
	c.res.Body = body
	c.written = true
	return nil
}

// NoContent writes a status with an empty body.
func (c *Context) NoContent(status int) error {
	c.res.StatusCode = status
	c.res.Body = nil
	c.written = true
	return nil
}

// Set stores a value for later middleware and handlers.
//
// Example:
//
//	c.Set("user_id", 123)
//	userID := c.Get("user_id").(int)
func (c *Context) Set(key string, value any) {
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = value
}

// Get retrieves a stored value, or nil.
func (c *Context) Get(key string) any {
	return c.store[key]
}

// Lookup retrieves a stored value and reports whether it was present.
func (c *Context) Lookup(key string) (any, bool) {
	v, ok := c.store[key]
	return v, ok
}

// MustGet retrieves a stored value and panics if it is absent.
func (c *Context) MustGet(key string) any {
	v, ok := c.store[key]
	if !ok {
		panic("core: context key " + key + " does not exist")
	}
	return v
}

// reset binds the context to a new exchange.
func (c *Context) reset(req *http11.Request, res *http11.Response) {
	c.req = req
	c.res = res
	c.query = nil
	c.written = false
	c.chain.reset(c, nil, nil)
	clear(c.store)
}

// NewContext binds a Context to an exchange. It is meant for tests and
// adapters; the App acquires contexts from its pool.
func NewContext(req *http11.Request, res *http11.Response) *Context {
	c := &Context{}
	c.reset(req, res)
	return c
}
