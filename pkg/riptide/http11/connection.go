package http11

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConnectionState represents the state of an HTTP connection
type ConnectionState int32

const (
	// StateNew is the initial state when a connection is created
	StateNew ConnectionState = iota

	// StateActive indicates the connection is serving buffered requests
	StateActive

	// StateIdle indicates the connection is waiting for bytes
	StateIdle

	// StateClosed indicates the connection has been closed
	StateClosed
)

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds configuration for an HTTP connection
type ConnectionConfig struct {
	// IdleTimeout closes the connection when no bytes arrive for this long.
	// The timer restarts after every read, so it also bounds the wait for
	// the rest of a partial request.
	// Default: 60 seconds
	IdleTimeout time.Duration

	// MaxRequests is the maximum number of requests per connection
	// 0 means unlimited
	MaxRequests int

	// ReadBufferSize is the size of each socket read
	// Default: 4096 bytes
	ReadBufferSize int

	// WriteBufferSize is the size of the buffered writer responses are batched in
	// Default: 4096 bytes
	WriteBufferSize int

	Limits   Limits
	Logger   *zap.Logger
	Observer Observer
}

// DefaultConnectionConfig returns the default connection configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		IdleTimeout:     60 * time.Second,
		MaxRequests:     0,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Limits: Limits{
			MaxHeaderBytes: DefaultMaxHeaderBytes,
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
	}
}

// Connection runs the read/serve/write loop for one accepted socket.
type Connection struct {
	state   atomic.Int32
	lastUse atomic.Int64

	conn    net.Conn
	writer  *bufio.Writer
	session *Session

	idleTimeout    time.Duration
	readBufferSize int

	cancel  context.CancelFunc
	closeCh chan struct{}
	closed  atomic.Bool

	log *zap.Logger
}

// NewConnection wraps conn. Requests served on it carry a context derived
// from ctx that is cancelled when the connection closes.
func NewConnection(ctx context.Context, conn net.Conn, handler Handler, config ConnectionConfig) *Connection {
	defaults := DefaultConnectionConfig()
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaults.WriteBufferSize
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	connCtx, cancel := context.WithCancel(ctx)
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	c := &Connection{
		conn:   conn,
		writer: bufio.NewWriterSize(conn, config.WriteBufferSize),
		session: NewSession(connCtx, remote, handler, SessionConfig{
			Limits:      config.Limits,
			MaxRequests: config.MaxRequests,
			Logger:      log,
			Observer:    config.Observer,
		}),
		idleTimeout:    config.IdleTimeout,
		readBufferSize: config.ReadBufferSize,
		cancel:         cancel,
		closeCh:        make(chan struct{}),
		log:            log,
	}
	c.state.Store(int32(StateNew))
	c.lastUse.Store(time.Now().UnixNano())
	return c
}

// Serve reads until the peer closes, the idle timeout fires, or a response
// ends the connection. It returns nil for orderly closes and ErrIdleTimeout
// when the idle timer expired.
func (c *Connection) Serve() error {
	defer c.session.Release()
	defer c.Close()

	readBuf := make([]byte, c.readBufferSize)
	for {
		if c.closed.Load() {
			return nil
		}
		c.setState(StateIdle)
		if err := c.setDeadline(); err != nil {
			return c.classify(err)
		}

		n, rerr := c.conn.Read(readBuf)
		if n > 0 {
			c.setState(StateActive)
			c.lastUse.Store(time.Now().UnixNano())

			closeConn, werr := c.session.Feed(readBuf[:n], c.writer)
			if werr == nil {
				werr = c.writer.Flush()
			}
			if werr != nil {
				return werr
			}
			if closeConn {
				return nil
			}
		}

		if rerr != nil {
			return c.classify(rerr)
		}
	}
}

func (c *Connection) classify(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return nil
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Debug("idle timeout", zap.String("remote", c.RemoteAddr()))
		return ErrIdleTimeout
	default:
		if c.closed.Load() {
			return nil
		}
		return err
	}
}

func (c *Connection) setDeadline() error {
	if c.idleTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
}

func (c *Connection) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// LastUse returns when bytes last arrived.
func (c *Connection) LastUse() time.Time {
	return time.Unix(0, c.lastUse.Load())
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the socket and cancels in-flight request contexts.
// It is safe to call from any goroutine and more than once.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.setState(StateClosed)
	c.cancel()
	close(c.closeCh)
	return c.conn.Close()
}
