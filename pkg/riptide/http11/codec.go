package http11

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Content codings understood in both directions.
const (
	EncodingGzip     = "gzip"
	EncodingDeflate  = "deflate"
	EncodingBrotli   = "br"
	EncodingIdentity = "identity"
)

// compressionPreference lists the codings the assembler may pick, matched
// against Accept-Encoding in the client's order.
var compressionPreference = [...]string{EncodingGzip, EncodingDeflate, EncodingBrotli}

var (
	gzipWriterPool = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	zlibWriterPool = sync.Pool{New: func() any { return zlib.NewWriter(io.Discard) }}
)

// decodeContent undoes a Content-Encoding list. Codings are applied in the
// listed order by the sender, so they are removed last-first.
func decodeContent(body []byte, contentEncoding string, maxBytes int) ([]byte, error) {
	if contentEncoding == "" {
		return body, nil
	}
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		enc := strings.ToLower(strings.TrimSpace(codings[i]))
		if enc == "" || enc == EncodingIdentity {
			continue
		}
		decoded, err := decompress(body, enc, maxBytes)
		if err != nil {
			return nil, err
		}
		body = decoded
	}
	return body, nil
}

func decompress(body []byte, enc string, maxBytes int) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch enc {
	case EncodingGzip:
		var zr *gzip.Reader
		zr, err = gzip.NewReader(bytes.NewReader(body))
		if err == nil {
			defer zr.Close()
			r = zr
		}
	case EncodingDeflate:
		var zr io.ReadCloser
		zr, err = zlib.NewReader(bytes.NewReader(body))
		if err == nil {
			defer zr.Close()
			r = zr
		}
	case EncodingBrotli:
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, &ParseError{Kind: KindUnsupportedEncoding, Reason: enc}
	}
	if err != nil {
		return nil, malformed(fmt.Sprintf("failed to decompress body with %q", enc), err)
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(r, int64(maxBytes)+1))
	if err != nil {
		return nil, malformed(fmt.Sprintf("failed to decompress body with %q", enc), err)
	}
	if n > int64(maxBytes) {
		return nil, malformed("decoded body", ErrBodyTooLarge)
	}
	return out.Bytes(), nil
}

// compress encodes body with one of the negotiated codings.
func compress(body []byte, enc string) ([]byte, error) {
	var out bytes.Buffer
	switch enc {
	case EncodingGzip:
		zw := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(zw)
		zw.Reset(&out)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case EncodingDeflate:
		zw := zlibWriterPool.Get().(*zlib.Writer)
		defer zlibWriterPool.Put(zw)
		zw.Reset(&out)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case EncodingBrotli:
		bw := brotli.NewWriterLevel(&out, brotli.DefaultCompression)
		if _, err := bw.Write(body); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("http11: unsupported response encoding %q", enc)
	}
	return out.Bytes(), nil
}

// negotiateEncoding returns the first coding in Accept-Encoding that the
// engine supports, skipping entries explicitly refused with q=0.
func negotiateEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}
	for _, entry := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(entry, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if refused(params) {
			continue
		}
		for _, supported := range compressionPreference {
			if name == supported {
				return supported
			}
		}
	}
	return ""
}

func refused(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		v = strings.TrimSpace(v)
		return v == "0" || strings.Trim(v, "0.") == "" && strings.HasPrefix(v, "0")
	}
	return false
}
