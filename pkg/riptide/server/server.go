// Package server accepts TCP connections and runs the HTTP/1.1 engine on
// each one in its own goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
	"github.com/watt-toolkit/riptide/pkg/riptide/socket"
)

// ErrServerClosed is returned by ListenAndServe and Serve after Shutdown or Close.
var ErrServerClosed = errors.New("server: closed")

// Config holds server configuration
type Config struct {
	// Addr is the TCP address to listen on (e.g., ":4221")
	// Default: ":4221"
	Addr string

	// IdleTimeout closes a connection that sends nothing for this long
	// Default: 60 seconds
	IdleTimeout time.Duration

	// MaxHeaderBytes bounds the request line plus headers
	// Default: 8 KB
	MaxHeaderBytes int

	// MaxBodyBytes bounds a request body, framed and decoded
	// Default: 16 MB
	MaxBodyBytes int

	// MaxKeepAliveRequests is the maximum number of requests per connection
	// 0 means unlimited
	MaxKeepAliveRequests int

	// ReadBufferSize is the size of each socket read
	// Default: 4096 bytes
	ReadBufferSize int

	// WriteBufferSize is the size of the per-connection write buffer
	// Default: 4096 bytes
	WriteBufferSize int

	// MaxConcurrentConnections is the maximum number of concurrent connections
	// 0 means unlimited
	MaxConcurrentConnections int

	// Socket tunes each accepted TCP connection. nil uses socket.DefaultConfig().
	Socket *socket.Config

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":4221",
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  http11.DefaultMaxHeaderBytes,
		MaxBodyBytes:    http11.DefaultMaxBodyBytes,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Stats represents server statistics
type Stats struct {
	// Total number of connections accepted
	TotalConnections atomic.Uint64

	// Current number of active connections
	ActiveConnections atomic.Int64

	// Total number of requests handled
	TotalRequests atomic.Uint64

	// Requests rejected with 400
	ParseErrors atomic.Uint64

	// Connections closed by the idle timeout
	IdleTimeouts atomic.Uint64

	// Accept and connection I/O errors
	ConnectionErrors atomic.Uint64

	// Server start time
	StartTime time.Time
}

// Duration returns the time since the server started
func (s *Stats) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// RequestsPerSecond returns the average requests per second
func (s *Stats) RequestsPerSecond() float64 {
	duration := s.Duration().Seconds()
	if duration == 0 {
		return 0
	}
	return float64(s.TotalRequests.Load()) / duration
}

// Server serves HTTP/1.1 over plain TCP.
type Server struct {
	config  Config
	handler http11.Handler
	log     *zap.Logger
	stats   Stats

	mu       sync.Mutex
	listener net.Listener
	shutdown atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup

	// Connection tracking
	conns   map[*http11.Connection]struct{}
	connsMu sync.Mutex

	// Connection semaphore (for limiting concurrent connections)
	connSem chan struct{}

	// baseCtx parents every request context; cancelled by Close.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a server that dispatches every parsed request to handler.
func New(handler http11.Handler, config Config) *Server {
	if handler == nil {
		panic("server: handler is required")
	}

	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.MaxHeaderBytes == 0 {
		config.MaxHeaderBytes = defaults.MaxHeaderBytes
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = defaults.WriteBufferSize
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     config,
		handler:    handler,
		log:        log.Named("server"),
		done:       make(chan struct{}),
		conns:      make(map[*http11.Connection]struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	s.stats.StartTime = time.Now()

	if config.MaxConcurrentConnections > 0 {
		s.connSem = make(chan struct{}, config.MaxConcurrentConnections)
	}
	return s
}

// Stats returns server statistics
func (s *Server) Stats() *Stats {
	return &s.stats
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens on the configured address and serves requests
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts incoming connections on l until Shutdown or Close.
// It always returns a non-nil error; after shutdown that error is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer l.Close()

	s.log.Info("listening", zap.String("addr", l.Addr().String()))

	var tempDelay time.Duration
	for {
		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.done:
				return ErrServerClosed
			}
		}

		conn, err := l.Accept()
		if err != nil {
			if s.connSem != nil {
				<-s.connSem
			}
			if s.shutdown.Load() {
				return ErrServerClosed
			}
			s.stats.ConnectionErrors.Add(1)

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(tempDelay*2, time.Second)
				}
				s.log.Warn("accept error, retrying", zap.Error(err), zap.Duration("delay", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		tempDelay = 0

		s.stats.TotalConnections.Add(1)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one connection's serve loop to completion.
func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()
	if s.connSem != nil {
		defer func() { <-s.connSem }()
	}

	if err := socket.Apply(netConn, s.config.Socket); err != nil {
		s.log.Debug("socket tuning failed", zap.Error(err))
	}

	conn := http11.NewConnection(s.baseCtx, netConn, s.handler, http11.ConnectionConfig{
		IdleTimeout:     s.config.IdleTimeout,
		MaxRequests:     s.config.MaxKeepAliveRequests,
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		Limits: http11.Limits{
			MaxHeaderBytes: s.config.MaxHeaderBytes,
			MaxBodyBytes:   s.config.MaxBodyBytes,
		},
		Logger:   s.log,
		Observer: (*observer)(s),
	})

	if !s.trackConnection(conn) {
		conn.Close()
		return
	}
	s.config.Metrics.ConnOpened()

	err := conn.Serve()
	idle := errors.Is(err, http11.ErrIdleTimeout)
	switch {
	case err == nil:
	case idle:
		s.stats.IdleTimeouts.Add(1)
	default:
		s.stats.ConnectionErrors.Add(1)
		s.log.Debug("connection error", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
	}

	s.untrackConnection(conn)
	s.config.Metrics.ConnClosed(idle)
}

// trackConnection adds a connection to tracking. It refuses once shutdown began.
func (s *Server) trackConnection(conn *http11.Connection) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.stats.ActiveConnections.Add(1)
	return true
}

// untrackConnection removes a connection from tracking
func (s *Server) untrackConnection(conn *http11.Connection) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()

	s.stats.ActiveConnections.Add(-1)
}

// closeIdleConnections closes connections that are waiting for bytes.
// It reports whether any connection is still mid-request.
func (s *Server) closeIdleConnections() (busy bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		if conn.State() == http11.StateActive {
			busy = true
			continue
		}
		conn.Close()
	}
	return busy
}

// closeAllConnections closes all tracked connections
func (s *Server) closeAllConnections() {
	s.connsMu.Lock()
	conns := make([]*http11.Connection, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (s *Server) beginShutdown() bool {
	s.connsMu.Lock()
	ok := s.shutdown.CompareAndSwap(false, true)
	s.connsMu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	close(s.done)
	return true
}

// Shutdown stops accepting, then closes connections as they go idle.
// Connections still busy when ctx expires are closed forcibly and ctx's
// error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.beginShutdown() {
		return nil
	}
	s.log.Info("shutting down", zap.Int64("active", s.stats.ActiveConnections.Load()))

	shutdownComplete := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(shutdownComplete)
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.closeIdleConnections()
		select {
		case <-shutdownComplete:
			s.cancelBase()
			return nil
		case <-ctx.Done():
			s.closeAllConnections()
			s.cancelBase()
			<-shutdownComplete
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close immediately closes the server and all active connections
func (s *Server) Close() error {
	if !s.beginShutdown() {
		return nil
	}
	s.cancelBase()
	s.closeAllConnections()
	s.wg.Wait()
	return nil
}

// observer feeds per-request outcomes from the engine into Stats and Metrics.
type observer Server

func (o *observer) RequestServed(method string, status int, elapsed time.Duration) {
	o.stats.TotalRequests.Add(1)
	o.config.Metrics.RequestServed(method, status, elapsed)
}

func (o *observer) ParseFailed(kind http11.ErrorKind) {
	o.stats.ParseErrors.Add(1)
	o.config.Metrics.ParseFailed(kind)
}
