package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

func newTestContext() *Context {
	return NewContext(&http11.Request{Method: "GET", Path: "/"}, http11.NewResponse())
}

func recordingMiddleware(name string, trace *[]string) Middleware {
	return func(c *Context, next Next) error {
		*trace = append(*trace, name+":in")
		err := next()
		*trace = append(*trace, name+":out")
		return err
	}
}

func TestChainRunsInOrder(t *testing.T) {
	var trace []string
	c := newTestContext()
	ch := NewChain(c, []Middleware{
		recordingMiddleware("a", &trace),
		recordingMiddleware("b", &trace),
	}, func(c *Context) error {
		trace = append(trace, "handler")
		return nil
	})

	require.NoError(t, ch.Run())
	assert.Equal(t, []string{"a:in", "b:in", "handler", "b:out", "a:out"}, trace)
	assert.Equal(t, StateDone, ch.State())
}

func TestChainStopsWhenNextNotCalled(t *testing.T) {
	c := newTestContext()
	handlerRan := false
	ch := NewChain(c, []Middleware{
		func(c *Context, next Next) error {
			return c.Text(http11.StatusUnauthorized, "no")
		},
	}, func(c *Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, ch.Run())
	assert.False(t, handlerRan)
	assert.Equal(t, StateAborted, ch.State())
	assert.Equal(t, http11.StatusUnauthorized, c.StatusCode())
}

func TestChainDuplicateAndStaleNext(t *testing.T) {
	c := newTestContext()
	calls := 0
	var stale Next
	ch := NewChain(c, []Middleware{
		func(c *Context, next Next) error {
			stale = next
			require.NoError(t, next())
			return next()
		},
		func(c *Context, next Next) error {
			require.NoError(t, stale())
			return next()
		},
	}, func(c *Context) error {
		calls++
		return nil
	})

	require.NoError(t, ch.Run())
	assert.Equal(t, 1, calls, "handler runs exactly once")
}

func TestChainNoMiddleware(t *testing.T) {
	c := newTestContext()
	ch := NewChain(c, nil, func(c *Context) error { return c.Text(200, "ok") })

	require.NoError(t, ch.Run())
	assert.Equal(t, StateDone, ch.State())
	assert.Equal(t, "ok", string(c.Response().Body))
}

func TestChainPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := newTestContext()
	ch := NewChain(c, []Middleware{
		func(c *Context, next Next) error { return next() },
	}, func(c *Context) error { return boom })

	assert.ErrorIs(t, ch.Run(), boom)
	assert.Equal(t, StateDone, ch.State())

	ch = NewChain(c, []Middleware{
		func(c *Context, next Next) error { return boom },
	}, noop)
	assert.ErrorIs(t, ch.Run(), boom)
	assert.Equal(t, StateAborted, ch.State())
}

func TestChainStateVisibleInsideSteps(t *testing.T) {
	c := newTestContext()
	var seen []ChainState
	var ch *Chain
	ch = NewChain(c, []Middleware{
		func(c *Context, next Next) error {
			seen = append(seen, ch.State())
			assert.Equal(t, 0, ch.Index())
			return next()
		},
	}, func(c *Context) error {
		seen = append(seen, ch.State())
		return nil
	})

	assert.Equal(t, StateIdle, ch.State())
	require.NoError(t, ch.Run())
	assert.Equal(t, []ChainState{StateMiddlewareRunning, StateHandlerRunning}, seen)
	assert.Equal(t, "done", ch.State().String())
}

func TestChainRunOnce(t *testing.T) {
	c := newTestContext()
	calls := 0
	ch := NewChain(c, nil, func(c *Context) error { calls++; return nil })
	require.NoError(t, ch.Run())
	require.NoError(t, ch.Run())
	assert.Equal(t, 1, calls)
}
