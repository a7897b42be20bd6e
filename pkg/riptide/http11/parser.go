package http11

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// Parser turns buffered bytes into Requests. It holds no per-request state
// and is safe for concurrent use.
type Parser struct {
	limits Limits
}

// NewParser creates a parser with the given limits.
func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

var defaultParser = NewParser(Limits{})

// Parse parses a byte region holding exactly one request, using default limits.
func Parse(region []byte) (*Request, error) {
	return defaultParser.Parse(region)
}

// Parse parses a byte region holding exactly one request.
//
// When the request declares neither Content-Length nor chunked encoding,
// every byte after the header terminator is the body.
// A nil Request with a nil error means the first header line was empty.
func (p *Parser) Parse(region []byte) (*Request, error) {
	f, err := ScanFrame(region, p.limits)
	if err != nil {
		return nil, err
	}
	if !f.Chunked && f.ContentLength < 0 {
		f.Span = len(region)
	}
	return p.parseFrame(region, f, true)
}

// ParseNext parses the first request at the front of a stream buffer and
// returns its frame span.
//
// Unlike Parse, a request without framing headers has no body, since the
// bytes behind it belong to the next pipelined request. The span is valid
// whenever err is nil, including when the returned Request is nil because
// the first line was empty.
func (p *Parser) ParseNext(buf []byte) (*Request, int, error) {
	return p.parseNext(NewScanner(p.limits), buf)
}

// parseNext is ParseNext with a caller-owned Scanner, letting a stream resume
// an unfinished chunked walk.
func (p *Parser) parseNext(sc *Scanner, buf []byte) (*Request, int, error) {
	f, err := sc.Scan(buf)
	if err != nil {
		return nil, 0, err
	}
	req, err := p.parseFrame(buf, f, false)
	if err != nil {
		return nil, 0, err
	}
	return req, f.Span, nil
}

func (p *Parser) parseFrame(buf []byte, f Frame, region bool) (*Request, error) {
	lines := strings.Split(string(buf[:f.HeaderEnd]), crlf)
	if strings.TrimSpace(lines[0]) == "" {
		return nil, nil
	}

	req := &Request{}
	if err := parseRequestLine(req, lines[0]); err != nil {
		return nil, err
	}
	header, err := parseHeaders(lines[1:])
	if err != nil {
		return nil, err
	}
	req.Header = header
	req.Close = wantsClose(header[headerConnection])

	if !methodCarriesBody(req.Method) {
		return req, nil
	}

	var raw []byte
	switch {
	case f.Chunked:
		raw, err = decodeChunked(f.Body(buf), p.limits.bodyBytes())
		if err != nil {
			return nil, err
		}
	case f.ContentLength >= 0 || region:
		raw = bytes.Clone(f.Body(buf))
	}
	if err := p.decodeBody(req, raw); err != nil {
		return nil, err
	}
	return req, nil
}

// parseRequestLine splits METHOD URL VERSION on single spaces.
func parseRequestLine(req *Request, line string) error {
	parts := strings.Split(line, " ")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return malformed("incomplete request line", ErrInvalidRequestLine)
	}
	req.Method = parts[0]
	req.URL = parts[1]
	req.Version = parts[2]
	req.Path, req.Query, _ = strings.Cut(req.URL, "?")
	return nil
}

// parseHeaders reads "Name: value" lines. Blank lines are skipped; a line
// without a colon, or with an empty name or value, is malformed.
func parseHeaders(lines []string) (map[string]string, error) {
	header := make(map[string]string, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, malformed("header without colon", ErrInvalidHeader)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, malformed("empty header name or value", ErrInvalidHeader)
		}
		header[key] = value
	}
	return header, nil
}

// decodeBody removes content codings, renders the text and validates JSON
// bodies.
func (p *Parser) decodeBody(req *Request, raw []byte) error {
	body, err := decodeContent(raw, req.Header[headerContentEncoding], p.limits.bodyBytes())
	if err != nil {
		return err
	}
	req.Body = body
	req.Text = strings.ToValidUTF8(string(body), "\uFFFD")

	if mediaType(req.Header[headerContentType]) != MIMEApplicationJSON {
		return nil
	}
	obj, err := decodeJSONObject([]byte(req.Text))
	if err != nil {
		return err
	}
	req.JSON = obj
	return nil
}

// decodeJSONObject accepts only a JSON object; null, arrays and scalars are
// rejected.
func decodeJSONObject(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &ParseError{Kind: KindInvalidJSON, Reason: "body is not a JSON object"}
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &ParseError{Kind: KindInvalidJSON, Reason: "body is not valid JSON", Err: err}
	}
	if obj == nil {
		return nil, &ParseError{Kind: KindInvalidJSON, Reason: "body is not a JSON object"}
	}
	return obj, nil
}
