package http11

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateNew, "new"},
		{StateActive, "active"},
		{StateIdle, "idle"},
		{StateClosed, "closed"},
		{ConnectionState(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("State.String() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig()

	if config.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", config.IdleTimeout)
	}
	if config.MaxRequests != 0 {
		t.Errorf("MaxRequests = %d, want 0", config.MaxRequests)
	}
	if config.ReadBufferSize != 4096 {
		t.Errorf("ReadBufferSize = %d, want 4096", config.ReadBufferSize)
	}
	if config.Limits.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Errorf("MaxHeaderBytes = %d", config.Limits.MaxHeaderBytes)
	}
}

func TestConnectionServePipelined(t *testing.T) {
	conn := newMockConn("GET /echo/one HTTP/1.1\r\n\r\nGET /echo/two HTTP/1.1\r\n\r\n")
	config := DefaultConnectionConfig()
	config.ReadBufferSize = 7

	c := NewConnection(context.Background(), conn, echoHandler, config)
	if err := c.Serve(); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	responses := splitResponses(t, conn.GetWritten())
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].body != "GET /echo/one " || responses[1].body != "GET /echo/two " {
		t.Errorf("bodies = %q, %q", responses[0].body, responses[1].body)
	}
	if !conn.IsClosed() {
		t.Error("connection not closed after EOF")
	}
	if c.State() != StateClosed {
		t.Errorf("State = %v, want closed", c.State())
	}
}

func TestConnectionClosesOnRequest(t *testing.T) {
	conn := newMockConn("GET / HTTP/1.1\r\nConnection: close\r\n\r\nGET /ignored HTTP/1.1\r\n\r\n")
	c := NewConnection(context.Background(), conn, echoHandler, DefaultConnectionConfig())

	if err := c.Serve(); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if strings.Contains(conn.GetWritten(), "ignored") {
		t.Error("served a request after Connection: close")
	}
	if !conn.IsClosed() {
		t.Error("socket left open")
	}
}

func TestConnectionBadRequestCloses(t *testing.T) {
	conn := newMockConn("NOT-HTTP\r\n\r\n")
	c := NewConnection(context.Background(), conn, echoHandler, DefaultConnectionConfig())

	if err := c.Serve(); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !strings.HasPrefix(conn.GetWritten(), "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("written = %q", conn.GetWritten())
	}
}

func TestConnectionIdleTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	config := DefaultConnectionConfig()
	config.IdleTimeout = 50 * time.Millisecond
	c := NewConnection(context.Background(), server, echoHandler, config)

	done := make(chan error, 1)
	go func() { done <- c.Serve() }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrIdleTimeout) {
			t.Errorf("Serve() = %v, want ErrIdleTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was not closed")
	}
}

func TestConnectionIdleTimerResetsPerRead(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	config := DefaultConnectionConfig()
	config.IdleTimeout = 200 * time.Millisecond
	c := NewConnection(context.Background(), server, echoHandler, config)

	done := make(chan error, 1)
	go func() { done <- c.Serve() }()

	// Drain responses so net.Pipe writes do not block.
	var got bytes.Buffer
	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 512)
		for {
			n, err := client.Read(buf)
			got.Write(buf[:n])
			if err != nil {
				close(readDone)
				return
			}
		}
	}()

	for _, part := range []string{"GET /slow", " HTTP/1.1\r\n", "\r\n"} {
		time.Sleep(100 * time.Millisecond)
		if _, err := client.Write([]byte(part)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := <-done; !errors.Is(err, ErrIdleTimeout) {
		t.Errorf("Serve() = %v, want ErrIdleTimeout", err)
	}
	<-readDone
	if !strings.Contains(got.String(), "GET /slow ") {
		t.Errorf("response = %q", got.String())
	}
}

func TestConnectionCloseCancelsContext(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConnection(context.Background(), server, echoHandler, DefaultConnectionConfig())
	done := make(chan error, 1)
	go func() { done <- c.Serve() }()

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() after Close = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done channel still open")
	}
}
