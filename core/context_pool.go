package core

import "sync"

// ContextPool manages a pool of Context objects for reuse.
type ContextPool struct {
	pool sync.Pool
}

// NewContextPool creates a new context pool.
func NewContextPool() *ContextPool {
	return &ContextPool{
		pool: sync.Pool{
			New: func() any {
				return &Context{}
			},
		},
	}
}

// Acquire retrieves a Context from the pool.
func (p *ContextPool) Acquire() *Context {
	return p.pool.Get().(*Context)
}

// Release returns a Context to the pool after dropping its references to
// the request and response.
//
// The Context must not be used after Release.
func (p *ContextPool) Release(c *Context) {
	c.reset(nil, nil)
	p.pool.Put(c)
}

// Warmup pre-allocates contexts so the first requests do not allocate them.
func (p *ContextPool) Warmup(count int) {
	ctxs := make([]*Context, count)
	for i := range ctxs {
		ctxs[i] = p.Acquire()
	}
	for _, c := range ctxs {
		p.Release(c)
	}
}
