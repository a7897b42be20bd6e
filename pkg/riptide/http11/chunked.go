package http11

import "bytes"

// chunkWalker validates chunked transfer framing.
//
// Format:
//
//	chunk        = chunk-size [ chunk-ext ] CRLF chunk-data CRLF
//	last-chunk   = 1*("0") [ chunk-ext ] CRLF
//	trailer-part = *( field-line CRLF )
//	body end     = CRLF
//
// Extensions after ';' are ignored and trailers are skipped. The walker
// remembers the offset of the last complete element, so a caller that keeps
// appending to the same body can call walk again and only the new bytes are
// examined.
type chunkWalker struct {
	maxBody    int // decoded payload bound, 0 for none
	maxWire    int // framing, payload and trailers bound, 0 for none
	maxTrailer int // trailer section bound, 0 for none

	pos          int
	total        int
	trailers     bool
	trailerStart int
}

func newChunkWalker(limits Limits) chunkWalker {
	return chunkWalker{
		maxBody:    limits.bodyBytes(),
		maxWire:    limits.chunkedWireBytes(),
		maxTrailer: limits.headerBytes(),
	}
}

// walk continues over data, which must start at the first chunk-size line
// and extend the bytes seen by earlier calls. visit, when not nil, receives
// every chunk's data in order. It returns the number of framing bytes
// consumed through the final CRLF, an incomplete error when data ends early,
// or a malformed error when the framing is invalid or over a limit.
func (w *chunkWalker) walk(data []byte, visit func(chunk []byte)) (int, error) {
	for {
		line, next, ok := readLine(data, w.pos)
		if !ok {
			if w.maxWire > 0 && len(data) > w.maxWire {
				return 0, malformed("chunked body on the wire", ErrBodyTooLarge)
			}
			if w.trailers && w.maxTrailer > 0 && len(data)-w.trailerStart > w.maxTrailer {
				return 0, malformed("chunked trailer", ErrBodyTooLarge)
			}
			if len(data)-w.pos > maxChunkLineBytes {
				return 0, malformed("chunk line too long", ErrChunkedEncoding)
			}
			return 0, incomplete("chunk line")
		}
		if w.maxWire > 0 && next > w.maxWire {
			return 0, malformed("chunked body on the wire", ErrBodyTooLarge)
		}

		if w.trailers {
			if w.maxTrailer > 0 && next-w.trailerStart > w.maxTrailer {
				return 0, malformed("chunked trailer", ErrBodyTooLarge)
			}
			w.pos = next
			if len(line) == 0 {
				return w.pos, nil
			}
			if bytes.IndexByte(line, ':') <= 0 {
				return 0, malformed("invalid trailer line", ErrChunkedEncoding)
			}
			continue
		}

		size, err := parseChunkSize(line)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			w.pos = next
			w.trailers = true
			w.trailerStart = next
			continue
		}

		if w.maxBody > 0 && w.total+size > w.maxBody {
			return 0, malformed("chunked body", ErrBodyTooLarge)
		}
		if len(data)-next < size+2 {
			if w.maxWire > 0 && next+size+2 > w.maxWire {
				return 0, malformed("chunked body on the wire", ErrBodyTooLarge)
			}
			return 0, incomplete("chunk data")
		}
		if data[next+size] != '\r' || data[next+size+1] != '\n' {
			return 0, malformed("chunk data not followed by CRLF", ErrChunkedEncoding)
		}
		if visit != nil {
			visit(data[next : next+size])
		}
		w.total += size
		w.pos = next + size + 2
	}
}

// decodeChunked joins all chunk payloads into one contiguous body.
func decodeChunked(data []byte, maxBody int) ([]byte, error) {
	body := make([]byte, 0, len(data))
	w := chunkWalker{maxBody: maxBody}
	_, err := w.walk(data, func(chunk []byte) {
		body = append(body, chunk...)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseChunkSize parses a hex chunk size, stripping extensions and padding.
func parseChunkSize(line []byte) (int, error) {
	if idx := bytes.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = trimTrailingSpace(trimLeadingSpace(line))
	if len(line) == 0 || len(line) > maxChunkSizeDigits {
		return 0, malformed("invalid chunk size", ErrChunkedEncoding)
	}

	size := 0
	for _, b := range line {
		size <<= 4
		switch {
		case b >= '0' && b <= '9':
			size |= int(b - '0')
		case b >= 'a' && b <= 'f':
			size |= int(b - 'a' + 10)
		case b >= 'A' && b <= 'F':
			size |= int(b - 'A' + 10)
		default:
			return 0, malformed("invalid chunk size", ErrChunkedEncoding)
		}
	}
	return size, nil
}

// readLine returns the line starting at pos without its CRLF and the offset
// just past the CRLF.
func readLine(data []byte, pos int) (line []byte, next int, ok bool) {
	if pos > len(data) {
		return nil, pos, false
	}
	idx := bytes.Index(data[pos:], crlfBytes)
	if idx < 0 {
		return nil, pos, false
	}
	return data[pos : pos+idx], pos + idx + 2, true
}

// trimLeadingSpace trims leading spaces and tabs
func trimLeadingSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	return b
}

// trimTrailingSpace trims trailing spaces and tabs
func trimTrailingSpace(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
