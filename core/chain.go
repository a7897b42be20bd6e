package core

// ChainState is the position of a request in its middleware chain.
type ChainState uint8

const (
	// StateIdle: the chain has not started.
	StateIdle ChainState = iota
	// StateMiddlewareRunning: a middleware is executing; Chain.Index says which.
	StateMiddlewareRunning
	// StateHandlerRunning: every middleware continued and the handler is executing.
	StateHandlerRunning
	// StateDone: the handler returned, with or without an error.
	StateDone
	// StateAborted: a middleware returned without continuing, or the chain
	// failed before the handler finished.
	StateAborted
)

func (s ChainState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMiddlewareRunning:
		return "middleware"
	case StateHandlerRunning:
		return "handler"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Chain runs a middleware sequence followed by a handler for one request.
//
// The chain keeps an index into the sequence. Each middleware receives a Next
// bound to the position after it; calling it advances the index and runs the
// following step. A Next whose position has already been reached (called
// twice, or kept from an earlier step) does nothing.
type Chain struct {
	middleware []Middleware
	handler    Handler
	ctx        *Context

	index   int // next position to run; len(middleware) means the handler
	current int
	state   ChainState
}

// NewChain prepares c's chain for one request and returns it.
func NewChain(c *Context, middleware []Middleware, handler Handler) *Chain {
	c.chain.reset(c, middleware, handler)
	return &c.chain
}

func (ch *Chain) reset(c *Context, middleware []Middleware, handler Handler) {
	ch.middleware = middleware
	ch.handler = handler
	ch.ctx = c
	ch.index = 0
	ch.current = -1
	ch.state = StateIdle
}

// State returns the chain state.
func (ch *Chain) State() ChainState {
	return ch.state
}

// Index returns the position of the middleware running now, or -1 before
// the first one starts.
func (ch *Chain) Index() int {
	return ch.current
}

// Run executes the chain from the first middleware. It may be called once.
func (ch *Chain) Run() error {
	if ch.state != StateIdle {
		return nil
	}
	err := ch.step(0)
	if ch.state != StateDone {
		ch.state = StateAborted
	}
	return err
}

func (ch *Chain) step(i int) error {
	ch.index = i + 1
	if i < len(ch.middleware) {
		ch.state = StateMiddlewareRunning
		ch.current = i
		return ch.middleware[i](ch.ctx, ch.next(i+1))
	}

	ch.state = StateHandlerRunning
	err := ch.handler(ch.ctx)
	ch.state = StateDone
	return err
}

// next returns the continuation that runs position i.
func (ch *Chain) next(i int) Next {
	return func() error {
		if ch.index > i || ch.state == StateDone || ch.state == StateAborted {
			return nil
		}
		return ch.step(i)
	}
}
