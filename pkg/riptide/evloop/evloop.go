// Package evloop serves HTTP/1.1 on gnet event loops. Each connection's
// bytes are fed to an http11.Session on its loop goroutine, so the
// reassembler, parser and assembler are shared with the goroutine-per-
// connection server.
package evloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
	"github.com/watt-toolkit/riptide/pkg/riptide/server"
)

// ErrNotStarted is returned by Shutdown before ListenAndServe was called.
// A later ListenAndServe then returns nil without serving.
var ErrNotStarted = errors.New("evloop: engine not started")

// Config configures the event-loop server.
type Config struct {
	// Addr is the TCP address to listen on.
	// Default: ":4221"
	Addr string

	// Multicore runs one event loop per CPU.
	Multicore bool

	// NumEventLoop overrides the loop count when positive.
	NumEventLoop int

	// IdleTimeout closes connections that sent nothing for this long. It is
	// enforced by a sweep every SweepInterval. 0 disables it.
	IdleTimeout time.Duration

	// SweepInterval is the idle sweep period.
	// Default: one second
	SweepInterval time.Duration

	// MaxRequests closes a connection after this many requests. 0 means
	// unlimited.
	MaxRequests int

	Limits http11.Limits

	Logger  *zap.Logger
	Metrics *server.Metrics
}

// FromServerConfig maps the goroutine server's settings onto the
// event-loop transport.
func FromServerConfig(c server.Config) Config {
	return Config{
		Addr:        c.Addr,
		Multicore:   true,
		IdleTimeout: c.IdleTimeout,
		MaxRequests: c.MaxKeepAliveRequests,
		Limits: http11.Limits{
			MaxHeaderBytes: c.MaxHeaderBytes,
			MaxBodyBytes:   c.MaxBodyBytes,
		},
		Logger:  c.Logger,
		Metrics: c.Metrics,
	}
}

// closer is the part of a gnet.Conn the idle sweep needs.
type closer interface {
	Close() error
}

// conn is the per-connection state stored in the gnet.Conn context.
type conn struct {
	id       uint64
	session  *http11.Session
	closer   closer
	cancel   context.CancelFunc
	lastSeen atomic.Int64 // unix nanoseconds
	idle     atomic.Bool
}

// Server is an HTTP/1.1 server on gnet.
type Server struct {
	gnet.BuiltinEventEngine

	handler http11.Handler
	config  Config
	log     *zap.Logger

	conns  *xsync.MapOf[uint64, *conn]
	nextID atomic.Uint64
	now    func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool
	mu      sync.Mutex
	engine  gnet.Engine
	booted  chan struct{}
	done    chan struct{}
}

// New creates an event-loop server dispatching to handler.
func New(handler http11.Handler, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":4221"
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Second
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:    handler,
		config:     config,
		log:        log.Named("evloop"),
		conns:      xsync.NewMapOf[uint64, *conn](),
		now:        time.Now,
		baseCtx:    ctx,
		cancelBase: cancel,
		booted:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ListenAndServe runs the event loops until Shutdown.
func (s *Server) ListenAndServe() error {
	s.started.Store(true)
	defer close(s.done)
	if s.stopped.Load() {
		return nil
	}

	opts := []gnet.Option{
		gnet.WithMulticore(s.config.Multicore),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTicker(s.config.IdleTimeout > 0),
		gnet.WithLogger(s.log.Sugar()),
	}
	if s.config.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(s.config.NumEventLoop))
	}
	if err := gnet.Run(s, "tcp://"+s.config.Addr, opts...); err != nil {
		return fmt.Errorf("evloop: %w", err)
	}
	return nil
}

// Shutdown stops the engine; gnet closes the open connections. Called
// while the engine is still booting, it waits for the boot to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopped.Store(true)
	if !s.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-s.booted:
	case <-s.done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()

	err := eng.Stop(ctx)
	s.cancelBase()
	return err
}

// Active returns the number of open connections.
func (s *Server) Active() int {
	return s.conns.Size()
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()
	close(s.booted)
	s.log.Info("listening", zap.String("addr", s.config.Addr), zap.Bool("multicore", s.config.Multicore))
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	cn := s.open(c, c.RemoteAddr().String())
	c.SetContext(cn)
	return nil, gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	cn, ok := c.Context().(*conn)
	if !ok {
		return gnet.Close
	}
	data, err := c.Next(-1)
	if err != nil {
		s.log.Debug("read failed", zap.Error(err))
		return gnet.Close
	}
	if s.feed(cn, data, c) {
		return gnet.Close
	}
	return gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if cn, ok := c.Context().(*conn); ok {
		s.release(cn)
	}
	if err != nil {
		s.log.Debug("connection closed", zap.Error(err))
	}
	return gnet.None
}

func (s *Server) OnTick() (time.Duration, gnet.Action) {
	if n := s.sweep(); n > 0 {
		s.log.Debug("idle connections closed", zap.Int("count", n))
	}
	return s.config.SweepInterval, gnet.None
}

// open registers a new connection.
func (s *Server) open(c closer, remoteAddr string) *conn {
	ctx, cancel := context.WithCancel(s.baseCtx)
	cn := &conn{
		id:     s.nextID.Add(1),
		closer: c,
		cancel: cancel,
		session: http11.NewSession(ctx, remoteAddr, s.handler, http11.SessionConfig{
			Limits:      s.config.Limits,
			MaxRequests: s.config.MaxRequests,
			Logger:      s.log,
			Observer:    s.config.Metrics,
		}),
	}
	cn.lastSeen.Store(s.now().UnixNano())
	s.conns.Store(cn.id, cn)
	s.config.Metrics.ConnOpened()
	return cn
}

// feed hands bytes to the connection's session. It reports whether the
// connection must be closed.
func (s *Server) feed(cn *conn, data []byte, w io.Writer) bool {
	cn.lastSeen.Store(s.now().UnixNano())
	closeConn, err := cn.session.Feed(data, w)
	if err != nil && !errors.Is(err, http11.ErrConnectionClosed) {
		s.log.Debug("write failed", zap.Error(err))
	}
	return closeConn || err != nil
}

// release forgets a closed connection.
func (s *Server) release(cn *conn) {
	if _, loaded := s.conns.LoadAndDelete(cn.id); !loaded {
		return
	}
	cn.cancel()
	cn.session.Release()
	s.config.Metrics.ConnClosed(cn.idle.Load())
}

// sweep closes connections that sent nothing for IdleTimeout and returns
// how many it closed.
func (s *Server) sweep() int {
	if s.config.IdleTimeout <= 0 {
		return 0
	}
	deadline := s.now().Add(-s.config.IdleTimeout).UnixNano()
	closed := 0
	s.conns.Range(func(_ uint64, cn *conn) bool {
		if cn.lastSeen.Load() < deadline && cn.idle.CompareAndSwap(false, true) {
			if err := cn.closer.Close(); err != nil {
				s.log.Debug("idle close failed", zap.Error(err))
			}
			closed++
		}
		return true
	})
	return closed
}
