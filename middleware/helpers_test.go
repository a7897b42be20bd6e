package middleware

import (
	"strings"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// exchange runs mws and a handler that writes "ok" for one request.
type exchange struct {
	ctx        *core.Context
	handlerRan bool
	err        error
}

func newRequest(method, path string, headers map[string]string) *http11.Request {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[strings.ToLower(k)] = v
	}
	return &http11.Request{Method: method, Path: path, URL: path, Version: http11.Version11, Header: h}
}

func run(req *http11.Request, mws ...core.Middleware) *exchange {
	ex := &exchange{ctx: core.NewContext(req, http11.NewResponse())}
	ch := core.NewChain(ex.ctx, mws, func(c *core.Context) error {
		ex.handlerRan = true
		return c.Text(http11.StatusOK, "ok")
	})
	ex.err = ch.Run()
	return ex
}

func (ex *exchange) status() int { return ex.ctx.StatusCode() }

func (ex *exchange) body() string { return string(ex.ctx.Response().Body) }

func (ex *exchange) header(name string) string { return ex.ctx.ResponseHeader(name) }
