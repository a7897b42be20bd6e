package http11

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Assemble finalizes res for req and serializes it to wire bytes.
//
// Finalization negotiates compression against the request's Accept-Encoding,
// defaults Content-Type to text/plain, recomputes Content-Length from the
// final body and forces Connection: close when the request asked for it.
// req may be nil, as for the fatal 400 sent before any request parsed.
func Assemble(res *Response, req *Request) []byte {
	finalize(res, req)

	version := Version11
	if req != nil && req.Version != "" {
		version = req.Version
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	writeStatusLine(bb, version, res.StatusCode)
	res.Header.VisitAll(func(name, value string) bool {
		bb.WriteString(name)
		bb.Write(colonSpace)
		bb.WriteString(value)
		bb.Write(crlfBytes)
		return true
	})
	bb.Write(crlfBytes)
	bb.Write(res.Body)

	out := make([]byte, bb.Len())
	copy(out, bb.B)
	return out
}

func finalize(res *Response, req *Request) {
	if res.StatusCode == 0 {
		res.StatusCode = StatusOK
	}

	if req != nil && len(res.Body) > 0 && !res.Header.Has(HeaderContentEncoding) {
		if enc := negotiateEncoding(req.GetHeader(headerAcceptEncoding)); enc != "" {
			if compressed, err := compress(res.Body, enc); err == nil {
				res.Body = compressed
				res.Header.Set(HeaderContentEncoding, enc)
				res.Header.Set(HeaderVary, "Accept-Encoding")
			}
		}
	}

	if !res.Header.Has(HeaderContentType) {
		res.Header.Set(HeaderContentType, MIMETextPlain)
	}
	res.Header.Set(HeaderContentLength, strconv.Itoa(len(res.Body)))

	if req != nil && req.Close {
		res.Header.Set(HeaderConnection, "close")
	}
}

// ClosesConnection reports whether the assembled response ends the connection.
func (r *Response) ClosesConnection() bool {
	return wantsClose(r.Header.Get(HeaderConnection))
}

func writeStatusLine(bb *bytebufferpool.ByteBuffer, version string, code int) {
	bb.WriteString(version)
	bb.WriteByte(' ')
	bb.B = strconv.AppendInt(bb.B, int64(code), 10)
	bb.WriteByte(' ')
	bb.WriteString(StatusText(code))
	bb.Write(crlfBytes)
}
