package trojan

import (
	"encoding/binary"

	"github.com/ha1tch/shroud/internal/buf"
	"github.com/ha1tch/shroud/internal/socks5"
	shrouderrors "github.com/ha1tch/shroud/pkg/errors"
)

// MaxUDPPayload is the largest payload a session will relay in one
// datagram: a full session buffer. The wire format itself allows any
// length up to 65535 (the header's length field is 2 bytes); this bound is
// a session-level policy, not a codec limitation, and is enforced by the
// caller rather than by DecodeUDPHeader.
const MaxUDPPayload = buf.BufSize

// ErrUDPOverflow is raised by a session when a UDP packet header declares
// a payload length too large to relay in one buffer.
var ErrUDPOverflow = shrouderrors.New(shrouderrors.ErrCodeUDPOverflow, "trojan: UDP payload exceeds buffer capacity").Err()

// UDPHeader is the per-datagram header prefixing every trojan UDP packet:
//
//	socks5-addr length[2, big-endian] CRLF
//
// The payload itself follows immediately and is not part of the header.
type UDPHeader struct {
	Addr   socks5.Address
	Length uint16
}

// EncodedLen returns the number of bytes Encode will write for h.
func (h UDPHeader) EncodedLen() int {
	return h.Addr.EncodedLen() + 2 + 2
}

// Encode writes h into dst, returning the number of bytes written.
func (h UDPHeader) Encode(dst []byte) (int, error) {
	n, err := h.Addr.Encode(dst)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint16(dst[n:n+2], h.Length)
	dst[n+2] = crlf[0]
	dst[n+3] = crlf[1]
	return n + 4, nil
}

// DecodeUDPHeader parses a UDPHeader from the front of b, returning the
// number of header bytes consumed (the payload, Length bytes, follows
// immediately after and is not consumed here). Returns ErrMoreData for an
// incomplete prefix and ErrCRLF for a malformed delimiter. Any Length up
// to 65535 decodes successfully; whether a session is willing to relay a
// payload that long is a policy decision left to the caller.
func DecodeUDPHeader(b []byte) (UDPHeader, int, error) {
	addr, addrLen, err := socks5.Decode(b)
	if err != nil {
		return UDPHeader{}, 0, err
	}

	if len(b) < addrLen+4 {
		return UDPHeader{}, 0, ErrMoreData
	}

	length := binary.BigEndian.Uint16(b[addrLen : addrLen+2])
	if b[addrLen+2] != crlf[0] || b[addrLen+3] != crlf[1] {
		return UDPHeader{}, 0, ErrCRLF
	}

	return UDPHeader{Addr: addr, Length: length}, addrLen + 4, nil
}
