// Package buf provides the fixed-capacity byte buffer and slice-view
// primitives the trojan session handlers build their read loops on (C1 in
// the component design). A Buffer owns exactly BufSize bytes; a Slice is a
// cheap, non-owning view into one.
package buf

// BufSize is the fixed capacity of a session buffer, shared by both the
// trojan request read loop and the relay copy loop.
const BufSize = 8192

// Buffer is an owned, fixed-capacity byte region. One Buffer is allocated
// per direction per session and lives for the session's lifetime; it is
// never resized or shared across sessions.
type Buffer struct {
	data [BufSize]byte
}

// New allocates a zeroed Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Bytes returns the full backing array as a slice, for use with io.Reader.
func (b *Buffer) Bytes() []byte {
	return b.data[:]
}

// Slice is a non-owning, copyable view into a Buffer (or any []byte). It
// never allocates and never outlives the memory it views.
type Slice struct {
	b []byte
}

// NewSlice wraps a raw byte slice as a Slice view.
func NewSlice(b []byte) Slice {
	return Slice{b: b}
}

// View returns a Slice over the first n bytes of the buffer.
func (buffer *Buffer) View(n int) Slice {
	return Slice{b: buffer.data[:n]}
}

// Len returns the number of bytes currently viewed.
func (s Slice) Len() int {
	return len(s.b)
}

// Bytes returns the raw bytes viewed. The caller must not retain it beyond
// the backing Buffer's lifetime.
func (s Slice) Bytes() []byte {
	return s.b
}

// Advance moves the view's start forward by n bytes, shrinking its length
// by n. Panics if n exceeds the current length.
func (s Slice) Advance(n int) Slice {
	if n > len(s.b) {
		panic("buf: Advance(n) with n > len")
	}
	return Slice{b: s.b[n:]}
}

// Slice returns the sub-view [beg:end).
func (s Slice) Slice(beg, end int) Slice {
	return Slice{b: s.b[beg:end]}
}

// SliceUntil returns the sub-view [0:n).
func (s Slice) SliceUntil(n int) Slice {
	return Slice{b: s.b[:n]}
}

// SliceFrom returns the sub-view [n:len).
func (s Slice) SliceFrom(n int) Slice {
	return Slice{b: s.b[n:]}
}
