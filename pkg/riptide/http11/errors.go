package http11

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a parse failure. The session switches on it to decide
// whether to wait for more bytes or reject the connection.
type ErrorKind uint8

const (
	// KindNone is reported for nil errors and errors that did not come from the parser.
	KindNone ErrorKind = iota

	// KindIncomplete means the buffered bytes do not yet hold a whole request.
	KindIncomplete

	// KindMalformed covers request line, header, framing and decompression failures.
	KindMalformed

	// KindUnsupportedEncoding means a Content-Encoding token is not one of
	// gzip, deflate, br or identity.
	KindUnsupportedEncoding

	// KindInvalidJSON means an application/json body is not a JSON object.
	KindInvalidJSON
)

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIncomplete:
		return "incomplete"
	case KindMalformed:
		return "malformed"
	case KindUnsupportedEncoding:
		return "unsupported-encoding"
	case KindInvalidJSON:
		return "invalid-json"
	default:
		return "unknown"
	}
}

// Fatal reports whether a request that failed with this kind must be
// answered with 400 and the connection closed.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindMalformed, KindUnsupportedEncoding, KindInvalidJSON:
		return true
	default:
		return false
	}
}

// ParseError is returned by the parser and the frame scanner.
type ParseError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http11: %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("http11: %s: %s", e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches any *ParseError of the same kind, so callers can write
// errors.Is(err, ErrIncomplete).
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == ""
}

// Kind sentinels for errors.Is.
var (
	ErrIncomplete          = &ParseError{Kind: KindIncomplete}
	ErrMalformed           = &ParseError{Kind: KindMalformed}
	ErrUnsupportedEncoding = &ParseError{Kind: KindUnsupportedEncoding}
	ErrInvalidJSON         = &ParseError{Kind: KindInvalidJSON}
)

// Parser errors
var (
	// ErrInvalidRequestLine indicates the request line is missing a token
	// Request line format: METHOD URL VERSION
	ErrInvalidRequestLine = errors.New("http11: invalid request line")

	// ErrInvalidHeader indicates a header line without a colon or with an empty name/value
	ErrInvalidHeader = errors.New("http11: invalid HTTP header")

	// ErrHeadersTooLarge indicates the header block exceeded MaxHeaderBytes
	ErrHeadersTooLarge = errors.New("http11: headers too large")

	// ErrBodyTooLarge indicates the declared or decoded body exceeded MaxBodyBytes
	ErrBodyTooLarge = errors.New("http11: body too large")

	// ErrChunkedEncoding indicates an error parsing chunked transfer encoding
	ErrChunkedEncoding = errors.New("http11: chunked encoding error")

	// ErrInvalidContentLength indicates Content-Length header is malformed
	ErrInvalidContentLength = errors.New("http11: invalid Content-Length")
)

// Connection errors
var (
	// ErrConnectionClosed indicates the connection has been closed
	ErrConnectionClosed = errors.New("http11: connection closed")

	// ErrIdleTimeout indicates no bytes arrived within the idle timeout
	ErrIdleTimeout = errors.New("http11: idle timeout")
)

func incomplete(reason string) error {
	return &ParseError{Kind: KindIncomplete, Reason: reason}
}

func malformed(reason string, err error) error {
	return &ParseError{Kind: KindMalformed, Reason: reason, Err: err}
}

// KindOf extracts the ErrorKind carried by err.
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNone
}
