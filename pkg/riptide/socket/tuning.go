// Package socket applies TCP tuning to accepted connections.
//
// Portable options go through *net.TCPConn. Linux-only options are in
// tuning_linux.go.
package socket

import (
	"net"
	"time"
)

// Config represents socket tuning configuration.
// Zero values mean "use system defaults".
type Config struct {
	// TCP_NODELAY - Disable Nagle's algorithm so small responses leave immediately
	// Default: true
	NoDelay bool

	// SO_RCVBUF - Receive buffer size in bytes
	// Default: 0 (system default)
	RecvBuffer int

	// SO_SNDBUF - Send buffer size in bytes
	// Default: 0 (system default)
	SendBuffer int

	// SO_KEEPALIVE - Enable TCP keepalive probes
	// Default: true
	KeepAlive bool

	// KeepAlivePeriod is the idle time before the first probe
	// Default: 60 seconds
	KeepAlivePeriod time.Duration

	// TCP_QUICKACK - Send immediate ACKs (Linux only)
	// Default: true
	QuickAck bool

	// TCP_USER_TIMEOUT - Give up on unacknowledged data after this long (Linux only)
	// Default: 0 (kernel default)
	UserTimeout time.Duration
}

// DefaultConfig returns the recommended configuration for keep-alive HTTP/1.1 traffic.
func DefaultConfig() *Config {
	return &Config{
		NoDelay:         true,
		KeepAlive:       true,
		KeepAlivePeriod: 60 * time.Second,
		QuickAck:        true,
	}
}

// Apply applies socket tuning options to a connection.
// Connections that are not TCP are left untouched. Only a TCP_NODELAY
// failure is reported; the remaining options are best effort.
//
// This should be called immediately after accepting a connection.
func Apply(conn net.Conn, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(cfg.NoDelay); err != nil {
		return err
	}
	if cfg.RecvBuffer > 0 {
		_ = tcpConn.SetReadBuffer(cfg.RecvBuffer)
	}
	if cfg.SendBuffer > 0 {
		_ = tcpConn.SetWriteBuffer(cfg.SendBuffer)
	}
	if cfg.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
		if cfg.KeepAlivePeriod > 0 {
			_ = tcpConn.SetKeepAlivePeriod(cfg.KeepAlivePeriod)
		}
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return nil
	}
	_ = rawConn.Control(func(fd uintptr) {
		applyPlatformOptions(int(fd), cfg)
	})
	return nil
}
