// Package streamio provides the buffered read/parse/forward primitives
// session handlers build on: reading until a decoder stops asking for
// more data, reading an exact byte count, writing a full buffer even
// across partial writes, and racing a bidirectional copy.
package streamio

import (
	"context"
	"errors"
	"io"

	"github.com/ha1tch/shroud/internal/buf"
	"github.com/ha1tch/shroud/internal/metrics"
	"github.com/ha1tch/shroud/internal/socks5"
)

// Decoder parses a value from the front of b, returning the value, the
// number of bytes consumed, and an error. Decoders in this module's
// callers return socks5.ErrMoreData (or trojan's re-export of it) when b
// is a valid but incomplete prefix.
type Decoder[T any] func(b []byte) (T, int, error)

// ReadUntilParsed reads from r into a session Buffer, growing the view one
// Read call at a time, until decode succeeds or returns an error other
// than ErrMoreData. It returns the decoded value and the bytes left over
// after it (the remainder of the buffer that decode did not consume).
func ReadUntilParsed[T any](r io.Reader, buffer *buf.Buffer, decode Decoder[T]) (T, buf.Slice, error) {
	var zero T
	have := 0

	for {
		n, err := r.Read(buffer.Bytes()[have:])
		if n > 0 {
			have += n
			view := buffer.View(have)
			val, consumed, derr := decode(view.Bytes())
			if derr == nil {
				return val, view.SliceFrom(consumed), nil
			}
			if !errors.Is(derr, socks5.ErrMoreData) {
				return zero, buf.Slice{}, derr
			}
			// fall through: read more and retry
		}
		if err != nil {
			if err == io.EOF {
				return zero, buf.Slice{}, io.ErrUnexpectedEOF
			}
			return zero, buf.Slice{}, err
		}
		if have == len(buffer.Bytes()) {
			return zero, buf.Slice{}, io.ErrShortBuffer
		}
	}
}

// ReadExact reads exactly len(dst) bytes from r, returning
// io.ErrUnexpectedEOF if the stream ends first.
func ReadExact(r io.Reader, dst []byte) error {
	_, err := io.ReadFull(r, dst)
	return err
}

// WriteAll writes all of b to w, looping over partial writes the way a
// single io.Writer.Write call is not guaranteed to avoid.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Forward copies from src to dst until src returns EOF or either side
// errors, counting bytes relayed into m for dir. It never treats EOF as an
// error — a half-closed direction is the normal way a trojan TCP session
// ends.
func Forward(dst io.Writer, src io.Reader, m *metrics.Metrics, dir metrics.Direction) error {
	buffer := buf.New()
	for {
		n, rerr := src.Read(buffer.Bytes())
		if n > 0 {
			if werr := WriteAll(dst, buffer.Bytes()[:n]); werr != nil {
				return werr
			}
			m.AddBytes(dir, n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

// Race runs two functions concurrently and returns as soon as either one
// finishes, the teardown signal for a bidirectional relay: once one
// direction is done, the other's connection is closed by the caller and
// its goroutine is left to unwind on its own next I/O error.
func Race(ctx context.Context, a, b func() error) error {
	done := make(chan error, 2)
	go func() { done <- a() }()
	go func() { done <- b() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
