package http11

import "github.com/valyala/bytebufferpool"

// compactThreshold is the consumed-prefix size beyond which Advance moves the
// unconsumed suffix back to the front of the backing array.
const compactThreshold = 4096

// Buffer is a connection's reassembly buffer: appended socket reads plus a
// consumed offset. Only the unconsumed suffix is ever visible, so bytes that
// belonged to a handled request cannot be parsed twice.
//
// A Buffer is owned by a single connection and is not safe for concurrent use.
type Buffer struct {
	bb  *bytebufferpool.ByteBuffer
	off int
}

// NewBuffer acquires a pooled backing store.
func NewBuffer() *Buffer {
	return &Buffer{bb: bytebufferpool.Get()}
}

// Append adds freshly read bytes.
func (b *Buffer) Append(p []byte) {
	b.bb.Write(p)
}

// Bytes returns the unconsumed bytes. The slice is valid until the next
// Append, Advance or Reset.
func (b *Buffer) Bytes() []byte {
	return b.bb.B[b.off:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.bb.B) - b.off
}

// Advance consumes n bytes from the front.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.off += n
	if b.off >= compactThreshold && b.off > b.Len() {
		rest := copy(b.bb.B, b.bb.B[b.off:])
		b.bb.B = b.bb.B[:rest]
		b.off = 0
	}
}

// Reset discards everything, keeping capacity.
func (b *Buffer) Reset() {
	b.bb.Reset()
	b.off = 0
}

// Release returns the backing store to the pool. The Buffer must not be
// used afterwards.
func (b *Buffer) Release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
		b.off = 0
	}
}
