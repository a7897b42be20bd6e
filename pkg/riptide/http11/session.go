package http11

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Handler processes one request by filling res.
// Returning an error sends 500 and closes the connection.
type Handler func(req *Request, res *Response) error

// Observer receives per-request outcomes. Implementations must be safe for
// concurrent use across connections.
type Observer interface {
	RequestServed(method string, status int, elapsed time.Duration)
	ParseFailed(kind ErrorKind)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Limits Limits

	// MaxRequests closes the connection after this many requests.
	// 0 means unlimited.
	MaxRequests int

	Logger   *zap.Logger
	Observer Observer
}

// Session is the byte-stream reassembler for one connection. It is
// transport-agnostic: the goroutine-per-connection loop and the event-loop
// transport both push raw reads into Feed.
//
// A Session is not safe for concurrent use; each connection feeds its own.
type Session struct {
	ctx        context.Context
	remoteAddr string

	buf     *Buffer
	parser  *Parser
	scanner *Scanner
	handler Handler

	maxRequests int
	requests    int
	closed      bool

	log      *zap.Logger
	observer Observer
}

// NewSession creates a session whose requests carry ctx.
func NewSession(ctx context.Context, remoteAddr string, handler Handler, cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ctx:         ctx,
		remoteAddr:  remoteAddr,
		buf:         NewBuffer(),
		parser:      NewParser(cfg.Limits),
		scanner:     NewScanner(cfg.Limits),
		handler:     handler,
		maxRequests: cfg.MaxRequests,
		log:         log,
		observer:    cfg.Observer,
	}
}

// Feed appends data and serves every complete request now buffered, writing
// the responses to w in arrival order. A trailing partial request stays
// buffered for the next Feed.
//
// closeConn reports that the connection must be closed once w is flushed:
// after a fatal parse error, a handler error, Connection: close, or the
// request limit. Bytes after that point are discarded. err is a write error.
func (s *Session) Feed(data []byte, w io.Writer) (closeConn bool, err error) {
	if s.closed {
		return true, ErrConnectionClosed
	}
	s.buf.Append(data)

	for s.buf.Len() > 0 {
		req, span, perr := s.parser.parseNext(s.scanner, s.buf.Bytes())
		switch kind := KindOf(perr); kind {
		case KindIncomplete:
			return false, nil
		case KindMalformed, KindUnsupportedEncoding, KindInvalidJSON:
			s.log.Warn("rejecting unparseable request",
				zap.String("remote", s.remoteAddr),
				zap.Stringer("kind", kind),
				zap.Error(perr))
			if s.observer != nil {
				s.observer.ParseFailed(kind)
			}
			return s.abort(w, Assemble(BadRequest(), nil))
		case KindNone:
			if perr != nil {
				return s.abort(w, Assemble(BadRequest(), nil))
			}
		}

		if req == nil {
			// Empty first line: drop just that line, a request may follow it.
			s.buf.Advance(firstLineLen(s.buf.Bytes(), span))
			continue
		}

		out, closeAfter := s.serve(req)
		if _, err := w.Write(out); err != nil {
			s.closed = true
			return true, err
		}
		s.buf.Advance(span)
		if closeAfter {
			s.closed = true
			s.buf.Reset()
			return true, nil
		}
	}
	return false, nil
}

// serve runs the handler and assembles the response.
func (s *Session) serve(req *Request) (out []byte, closeAfter bool) {
	start := time.Now()
	s.requests++
	req.RemoteAddr = s.remoteAddr
	req.ctx = s.ctx

	res := NewResponse()
	if err := s.invoke(req, res); err != nil {
		s.log.Error("handler failed, closing connection",
			zap.String("remote", s.remoteAddr),
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err))
		res.Reset()
		res.WriteText(StatusInternalServerError, StatusText(StatusInternalServerError))
		res.Header.Set(HeaderConnection, "close")
	}
	if s.maxRequests > 0 && s.requests >= s.maxRequests {
		res.Header.Set(HeaderConnection, "close")
	}

	out = Assemble(res, req)
	if s.observer != nil {
		s.observer.RequestServed(req.Method, res.StatusCode, time.Since(start))
	}
	return out, res.ClosesConnection()
}

func (s *Session) invoke(req *Request, res *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("http11: handler panic: %v", r)
		}
	}()
	return s.handler(req, res)
}

// firstLineLen returns the length of the first line including its CRLF,
// capped at span.
func firstLineLen(buf []byte, span int) int {
	if idx := bytes.Index(buf[:span], crlfBytes); idx >= 0 {
		return idx + len(crlfBytes)
	}
	return span
}

func (s *Session) abort(w io.Writer, out []byte) (bool, error) {
	s.closed = true
	s.buf.Reset()
	s.scanner.Reset()
	_, err := w.Write(out)
	return true, err
}

// Buffered returns the number of bytes waiting for a complete request.
func (s *Session) Buffered() int {
	if s.buf == nil {
		return 0
	}
	return s.buf.Len()
}

// Requests returns how many requests have been served.
func (s *Session) Requests() int {
	return s.requests
}

// Release returns the session's buffer to the pool.
func (s *Session) Release() {
	s.closed = true
	if s.buf != nil {
		s.buf.Release()
		s.buf = nil
	}
}
