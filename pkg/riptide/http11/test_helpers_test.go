package http11

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockConn implements net.Conn for testing
type mockConn struct {
	readData  *strings.Reader
	writeData *strings.Builder
	closed    bool
	deadline  time.Time
	mu        sync.Mutex
}

func newMockConn(data string) *mockConn {
	return &mockConn{
		readData:  strings.NewReader(data),
		writeData: &strings.Builder{},
	}
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	return m.readData.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeData.Write(b)
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4221}
}

func (m *mockConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}
}

func (m *mockConn) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	return m.SetDeadline(t)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return m.SetDeadline(t)
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) GetWritten() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeData.String()
}

// wireResponse is a response read back off the wire.
type wireResponse struct {
	statusLine string
	header     map[string]string
	body       string
}

// splitResponses cuts a stream of serialized responses apart using their
// Content-Length headers.
func splitResponses(t *testing.T, raw string) []wireResponse {
	t.Helper()
	var out []wireResponse
	for raw != "" {
		head, rest, ok := strings.Cut(raw, "\r\n\r\n")
		if !ok {
			t.Fatalf("response without header terminator: %q", raw)
		}
		lines := strings.Split(head, "\r\n")
		res := wireResponse{statusLine: lines[0], header: map[string]string{}}
		for _, line := range lines[1:] {
			k, v, _ := strings.Cut(line, ": ")
			res.header[strings.ToLower(k)] = v
		}
		n := 0
		for _, c := range res.header["content-length"] {
			n = n*10 + int(c-'0')
		}
		if len(rest) < n {
			t.Fatalf("body shorter than Content-Length %d: %q", n, rest)
		}
		res.body = rest[:n]
		raw = rest[n:]
		out = append(out, res)
	}
	return out
}

// echoHandler answers with "<METHOD> <path> <body>".
func echoHandler(req *Request, res *Response) error {
	res.WriteText(StatusOK, req.Method+" "+req.Path+" "+req.Text)
	return nil
}
