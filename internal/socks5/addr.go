// Package socks5 implements the SOCKS5-style address codec: the
// {atyp, host, port} triple embedded in both the trojan request and the
// trojan UDP packet header.
package socks5

import (
	"encoding/binary"
	"net"
	"strconv"

	shrouderrors "github.com/ha1tch/shroud/pkg/errors"
)

// AddrType discriminates the address variant, matching the wire atyp byte.
type AddrType byte

const (
	AddrIPv4 AddrType = 0x01
	AddrFQDN AddrType = 0x03
	AddrIPv6 AddrType = 0x04
)

func (t AddrType) String() string {
	switch t {
	case AddrIPv4:
		return "ipv4"
	case AddrFQDN:
		return "fqdn"
	case AddrIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// MaxEncodedLen is the largest an encoded Address can be: atyp(1) +
// longest host field (255-byte FQDN name plus its own length byte) + port(2).
const MaxEncodedLen = 1 + 1 + 255 + 2

// Sentinel errors returned by Decode. ErrMoreData is a control signal, not
// a failure: the caller should read more bytes and retry.
var (
	ErrMoreData = shrouderrors.New(shrouderrors.ErrCodeMoreData, "socks5: need more data").Err()
	ErrAtyp     = shrouderrors.New(shrouderrors.ErrCodeAtyp, "socks5: unknown address type").Err()
	ErrFqdnLen  = shrouderrors.New(shrouderrors.ErrCodeFqdnLen, "socks5: zero-length FQDN").Err()
)

// Address is the decoded {atyp, host, port} triple. Exactly one of IP or
// Host is meaningful, selected by Type: one struct with an explicit
// discriminant, dispatched by a type switch on Type rather than a sum-type
// match.
type Address struct {
	Type AddrType
	IP   net.IP // valid when Type is AddrIPv4 or AddrIPv6
	Host string // valid when Type is AddrFQDN
	Port uint16
}

// EncodedLen returns the exact number of bytes Encode will write for a.
func (a Address) EncodedLen() int {
	switch a.Type {
	case AddrIPv4:
		return 1 + 4 + 2
	case AddrIPv6:
		return 1 + 16 + 2
	case AddrFQDN:
		return 1 + 1 + len(a.Host) + 2
	default:
		return 0
	}
}

// Encode writes a into dst and returns the number of bytes written. dst
// must have at least MaxEncodedLen bytes free.
func (a Address) Encode(dst []byte) (int, error) {
	switch a.Type {
	case AddrIPv4:
		ip4 := a.IP.To4()
		if ip4 == nil {
			return 0, shrouderrors.New(shrouderrors.ErrCodeInternal, "socks5: IPv4 address missing 4-byte form").Err()
		}
		dst[0] = byte(AddrIPv4)
		copy(dst[1:5], ip4)
		binary.BigEndian.PutUint16(dst[5:7], a.Port)
		return 7, nil

	case AddrIPv6:
		ip16 := a.IP.To16()
		if ip16 == nil {
			return 0, shrouderrors.New(shrouderrors.ErrCodeInternal, "socks5: IPv6 address missing 16-byte form").Err()
		}
		dst[0] = byte(AddrIPv6)
		copy(dst[1:17], ip16)
		binary.BigEndian.PutUint16(dst[17:19], a.Port)
		return 19, nil

	case AddrFQDN:
		if len(a.Host) == 0 || len(a.Host) > 255 {
			return 0, ErrFqdnLen
		}
		dst[0] = byte(AddrFQDN)
		dst[1] = byte(len(a.Host))
		n := copy(dst[2:], a.Host)
		binary.BigEndian.PutUint16(dst[2+n:2+n+2], a.Port)
		return 2 + n + 2, nil

	default:
		return 0, ErrAtyp
	}
}

// Decode parses an Address from the front of b, returning the number of
// bytes consumed. It returns ErrMoreData when b is a valid but incomplete
// prefix, ErrAtyp for an unrecognised atyp byte, and ErrFqdnLen when an
// FQDN's length byte is zero.
func Decode(b []byte) (Address, int, error) {
	if len(b) < 1 {
		return Address{}, 0, ErrMoreData
	}

	switch AddrType(b[0]) {
	case AddrIPv4:
		const n = 1 + 4 + 2
		if len(b) < n {
			return Address{}, 0, ErrMoreData
		}
		ip := make(net.IP, 4)
		copy(ip, b[1:5])
		port := binary.BigEndian.Uint16(b[5:7])
		return Address{Type: AddrIPv4, IP: ip, Port: port}, n, nil

	case AddrIPv6:
		const n = 1 + 16 + 2
		if len(b) < n {
			return Address{}, 0, ErrMoreData
		}
		ip := make(net.IP, 16)
		copy(ip, b[1:17])
		port := binary.BigEndian.Uint16(b[17:19])
		return Address{Type: AddrIPv6, IP: ip, Port: port}, n, nil

	case AddrFQDN:
		if len(b) < 2 {
			return Address{}, 0, ErrMoreData
		}
		hostLen := int(b[1])
		if hostLen == 0 {
			return Address{}, 0, ErrFqdnLen
		}
		n := 1 + 1 + hostLen + 2
		if len(b) < n {
			return Address{}, 0, ErrMoreData
		}
		host := string(b[2 : 2+hostLen])
		port := binary.BigEndian.Uint16(b[2+hostLen : n])
		return Address{Type: AddrFQDN, Host: host, Port: port}, n, nil

	default:
		return Address{}, 0, ErrAtyp
	}
}

// FromUDPAddr builds an Address from a resolved net.UDPAddr, choosing
// AddrIPv4 or AddrIPv6 by the address's actual byte length.
func FromUDPAddr(a *net.UDPAddr) Address {
	if ip4 := a.IP.To4(); ip4 != nil {
		return Address{Type: AddrIPv4, IP: ip4, Port: uint16(a.Port)}
	}
	return Address{Type: AddrIPv6, IP: a.IP.To16(), Port: uint16(a.Port)}
}

// String renders the address as host:port, the form net.Dial expects.
func (a Address) String() string {
	port := strconv.Itoa(int(a.Port))
	switch a.Type {
	case AddrFQDN:
		return net.JoinHostPort(a.Host, port)
	default:
		return net.JoinHostPort(a.IP.String(), port)
	}
}
