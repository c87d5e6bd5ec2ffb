package trojan

import (
	"crypto/subtle"

	"github.com/ha1tch/shroud/internal/socks5"
	shrouderrors "github.com/ha1tch/shroud/pkg/errors"
)

// Command selects the requested relay mode, the byte immediately following
// the first CRLF in a trojan request.
type Command byte

const (
	CmdConnect      Command = 0x01
	CmdUDPAssociate Command = 0x03
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "connect"
	case CmdUDPAssociate:
		return "udp-associate"
	default:
		return "unknown"
	}
}

var crlf = [2]byte{'\r', '\n'}

// Sentinel errors surfaced by DecodeRequest, re-exported alongside socks5's
// so callers can test with a single errors.Is regardless of which layer
// raised the control signal.
var (
	ErrMoreData = socks5.ErrMoreData
	ErrCRLF     = shrouderrors.New(shrouderrors.ErrCodeCRLF, "trojan: malformed CRLF delimiter").Err()

	// ErrCmd is raised for any command byte other than connect or
	// udp-associate. Some trojan implementations silently fall through to
	// the connect path for unrecognised commands; here it is a hard
	// rejection of the request.
	ErrCmd = shrouderrors.New(shrouderrors.ErrCodeCmd, "trojan: unrecognised command byte").Err()
)

// Request is the decoded trojan TCP request header:
//
//	hex(sha224(password))[56] CRLF cmd[1] socks5-addr CRLF
type Request struct {
	HashedPassword string
	Cmd            Command
	Addr           socks5.Address
}

// DecodeRequest parses a Request from the front of b, returning the number
// of bytes consumed. It returns ErrMoreData when b is a valid but
// incomplete prefix, ErrCRLF when a delimiter is missing or malformed, and
// ErrCmd when the command byte is neither connect nor udp-associate.
func DecodeRequest(b []byte) (Request, int, error) {
	const headerMin = HashLen + 2 + 1 // password + CRLF + cmd
	if len(b) < headerMin {
		return Request{}, 0, ErrMoreData
	}

	if b[HashLen] != crlf[0] || b[HashLen+1] != crlf[1] {
		return Request{}, 0, ErrCRLF
	}
	hashed := string(b[:HashLen])

	cmd := Command(b[HashLen+2])
	if cmd != CmdConnect && cmd != CmdUDPAssociate {
		return Request{}, 0, ErrCmd
	}

	rest := b[HashLen+3:]
	addr, addrLen, err := socks5.Decode(rest)
	if err != nil {
		return Request{}, 0, err
	}

	tail := HashLen + 3 + addrLen
	if len(b) < tail+2 {
		return Request{}, 0, ErrMoreData
	}
	if b[tail] != crlf[0] || b[tail+1] != crlf[1] {
		return Request{}, 0, ErrCRLF
	}

	return Request{HashedPassword: hashed, Cmd: cmd, Addr: addr}, tail + 2, nil
}

// VerifyPassword compares r's hashed password against expectedHash in
// constant time, so a timing side channel cannot leak how many leading
// hex characters a guess got right.
func VerifyPassword(r Request, expectedHash string) bool {
	if len(r.HashedPassword) != len(expectedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.HashedPassword), []byte(expectedHash)) == 1
}
