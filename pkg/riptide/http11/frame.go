package http11

import (
	"bytes"
	"errors"
	"strings"
)

// Limits bound what the scanner and parser accept. Zero values fall back
// to the package defaults.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

func (l Limits) headerBytes() int {
	if l.MaxHeaderBytes <= 0 {
		return DefaultMaxHeaderBytes
	}
	return l.MaxHeaderBytes
}

func (l Limits) bodyBytes() int {
	if l.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return l.MaxBodyBytes
}

// chunkedWireBytes bounds a chunked body on the wire: the payload, as much
// again in chunk framing, and a trailer section up to the header limit.
func (l Limits) chunkedWireBytes() int {
	return 2*l.bodyBytes() + l.headerBytes()
}

// Frame describes where one request sits at the front of a buffer.
//
// The same Frame answers both "is the request complete?" and "how far does
// the buffer advance after it is handled?", so the two can never disagree.
type Frame struct {
	// HeaderEnd is the offset of the CRLF CRLF terminating the header block.
	HeaderEnd int

	// BodyStart is the offset just past the header terminator.
	BodyStart int

	// Span is the total length of the request on the wire.
	Span int

	// Chunked is set when Transfer-Encoding includes chunked.
	Chunked bool

	// ContentLength is the declared length, or -1 when absent or overridden
	// by chunked framing.
	ContentLength int
}

// Body returns the raw (still transfer-encoded) body bytes of the frame.
func (f Frame) Body(buf []byte) []byte {
	return buf[f.BodyStart:f.Span]
}

// ScanFrame locates the first complete request in buf.
//
// It returns an incomplete error while the header terminator or the framed
// body has not fully arrived, and a malformed error when the header block
// exceeds its limit or the framing headers are invalid. Header lines that
// do not affect framing are not validated here; the parser does that.
func ScanFrame(buf []byte, limits Limits) (Frame, error) {
	s := NewScanner(limits)
	return s.Scan(buf)
}

// Scanner is ScanFrame for a growing stream buffer. While a chunked body is
// still arriving it keeps the walk position between calls, so each Scan
// examines only the bytes appended since the previous one.
//
// The pending state belongs to the request at the front of buf. It is
// dropped once that request is complete or rejected, and also when buf no
// longer starts with the header block it was scanned from.
type Scanner struct {
	limits  Limits
	pending bool
	head    []byte
	frame   Frame
	walker  chunkWalker
}

// NewScanner creates a scanner with the given limits.
func NewScanner(limits Limits) *Scanner {
	return &Scanner{limits: limits}
}

// Scan locates the first complete request in buf. See ScanFrame.
func (s *Scanner) Scan(buf []byte) (Frame, error) {
	if s.pending && !bytes.HasPrefix(buf, s.head) {
		s.Reset()
	}
	if !s.pending {
		f, err := scanHead(buf, s.limits)
		if err != nil || !f.Chunked {
			return f, err
		}
		s.pending = true
		s.head = append(s.head[:0], buf[:f.BodyStart]...)
		s.frame = f
		s.walker = newChunkWalker(s.limits)
	}

	n, err := s.walker.walk(buf[s.frame.BodyStart:], nil)
	if err != nil {
		if !errors.Is(err, ErrIncomplete) {
			s.Reset()
		}
		return Frame{}, err
	}
	f := s.frame
	f.Span = f.BodyStart + n
	s.Reset()
	return f, nil
}

// Reset drops any pending chunked walk.
func (s *Scanner) Reset() {
	s.pending = false
	s.head = s.head[:0]
	s.frame = Frame{}
	s.walker = chunkWalker{}
}

// scanHead frames everything except a chunked body, whose walk is left to
// the caller. For chunked requests the returned Frame has no Span yet.
func scanHead(buf []byte, limits Limits) (Frame, error) {
	maxHeader := limits.headerBytes()

	headerEnd := bytes.Index(buf, crlfcrlfBytes)
	if headerEnd < 0 {
		if len(buf) > maxHeader {
			return Frame{}, malformed("header block", ErrHeadersTooLarge)
		}
		return Frame{}, incomplete("header terminator not found")
	}
	if headerEnd > maxHeader {
		return Frame{}, malformed("header block", ErrHeadersTooLarge)
	}

	f := Frame{
		HeaderEnd:     headerEnd,
		BodyStart:     headerEnd + len(crlfcrlfBytes),
		ContentLength: -1,
	}

	te, cl := framingHeaders(buf[:headerEnd])
	switch {
	case isChunked(te):
		f.Chunked = true

	case cl != "":
		n, err := parseContentLength(cl)
		if err != nil {
			return Frame{}, err
		}
		if n > limits.bodyBytes() {
			return Frame{}, malformed("Content-Length", ErrBodyTooLarge)
		}
		if len(buf)-f.BodyStart < n {
			return Frame{}, incomplete("body shorter than Content-Length")
		}
		f.ContentLength = n
		f.Span = f.BodyStart + n

	default:
		f.Span = f.BodyStart
	}
	return f, nil
}

// framingHeaders pulls Transfer-Encoding and Content-Length out of a header
// block, last occurrence winning like every other header.
func framingHeaders(head []byte) (te, cl string) {
	lines := bytes.Split(head, crlfBytes)
	for _, line := range lines[min(1, len(lines)):] {
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		switch key {
		case headerTransferEncoding:
			te = strings.TrimSpace(string(line[colon+1:]))
		case headerContentLength:
			cl = strings.TrimSpace(string(line[colon+1:]))
		}
	}
	return te, cl
}

func isChunked(transferEncoding string) bool {
	if transferEncoding == "" {
		return false
	}
	for _, tok := range strings.Split(transferEncoding, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "chunked") {
			return true
		}
	}
	return false
}

// parseContentLength parses a Content-Length value.
func parseContentLength(s string) (int, error) {
	if s == "" {
		return -1, malformed("Content-Length", ErrInvalidContentLength)
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return -1, malformed("Content-Length", ErrInvalidContentLength)
		}
		n = n*10 + int(c-'0')
		if n < 0 || i > 18 {
			return -1, malformed("Content-Length", ErrInvalidContentLength)
		}
	}
	return n, nil
}
