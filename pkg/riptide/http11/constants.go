// Package http11 implements the HTTP/1.1 wire engine: byte-stream reassembly,
// request parsing, response assembly and the per-connection serve loop.
package http11

// Protocol tokens
const (
	Version11 = "HTTP/1.1"
	Version10 = "HTTP/1.0"

	crlf     = "\r\n"
	crlfcrlf = "\r\n\r\n"
)

var (
	crlfBytes     = []byte(crlf)
	crlfcrlfBytes = []byte(crlfcrlf)
	colonSpace    = []byte(": ")
)

// Limits
const (
	// DefaultMaxHeaderBytes bounds the request line plus header block.
	DefaultMaxHeaderBytes = 8192

	// DefaultMaxBodyBytes bounds a framed request body and its decoded size.
	// A chunked body may spend as much again on chunk framing, and its
	// trailer section is held to the header limit.
	DefaultMaxBodyBytes = 16 << 20

	// maxChunkSizeDigits stops hex parsing before the size overflows.
	maxChunkSizeDigits = 15

	// maxChunkLineBytes bounds a chunk-size or trailer line.
	maxChunkLineBytes = 4096
)

// Header names used by the engine, lowercase for request lookups.
const (
	headerContentLength    = "content-length"
	headerTransferEncoding = "transfer-encoding"
	headerContentEncoding  = "content-encoding"
	headerContentType      = "content-type"
	headerConnection       = "connection"
	headerAcceptEncoding   = "accept-encoding"
)

// Canonical response header names.
const (
	HeaderContentType     = "Content-Type"
	HeaderContentLength   = "Content-Length"
	HeaderContentEncoding = "Content-Encoding"
	HeaderConnection      = "Connection"
	HeaderVary            = "Vary"
)

// Content types
const (
	MIMETextPlain       = "text/plain"
	MIMETextHTML        = "text/html"
	MIMEApplicationJSON = "application/json"
	MIMEOctetStream     = "application/octet-stream"
)

// Status codes the engine and the bundled middleware produce.
const (
	StatusOK                  = 200
	StatusCreated             = 201
	StatusNoContent           = 204
	StatusMovedPermanently    = 301
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusPayloadTooLarge     = 413
	StatusTooManyRequests     = 429
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

var statusTexts = map[int]string{
	StatusOK:                  "OK",
	StatusCreated:             "Created",
	StatusNoContent:           "No Content",
	StatusMovedPermanently:    "Moved Permanently",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusMethodNotAllowed:    "Method Not Allowed",
	StatusPayloadTooLarge:     "Payload Too Large",
	StatusTooManyRequests:     "Too Many Requests",
	StatusInternalServerError: "Internal Server Error",
	StatusServiceUnavailable:  "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if text, ok := statusTexts[code]; ok {
		return text
	}
	return "Unknown"
}

// badRequestBody is the fixed body of the fatal parse-error response.
const badRequestBody = "<html><head><title>400 Bad Request</title></head>" +
	"<body><h1>400 Bad Request</h1><p>The request could not be parsed.</p></body></html>"
