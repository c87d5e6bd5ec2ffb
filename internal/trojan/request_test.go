package trojan

import (
	"errors"
	"net"
	"testing"

	"github.com/ha1tch/shroud/internal/socks5"
)

func encodeRequest(t *testing.T, hashed string, cmd Command, addr socks5.Address) []byte {
	t.Helper()
	buf := make([]byte, 0, HashLen+2+1+socks5.MaxEncodedLen+2)
	buf = append(buf, []byte(hashed)...)
	buf = append(buf, crlf[0], crlf[1])
	buf = append(buf, byte(cmd))

	addrBuf := make([]byte, socks5.MaxEncodedLen)
	n, err := addr.Encode(addrBuf)
	if err != nil {
		t.Fatalf("Encode addr: %v", err)
	}
	buf = append(buf, addrBuf[:n]...)
	buf = append(buf, crlf[0], crlf[1])
	return buf
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrFQDN, Host: "example.com", Port: 443}
	wire := encodeRequest(t, hashed, CmdConnect, addr)

	req, n, err := DecodeRequest(wire)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if req.HashedPassword != hashed {
		t.Fatalf("HashedPassword = %q, want %q", req.HashedPassword, hashed)
	}
	if req.Cmd != CmdConnect {
		t.Fatalf("Cmd = %v, want connect", req.Cmd)
	}
	if req.Addr.Host != addr.Host || req.Addr.Port != addr.Port {
		t.Fatalf("Addr = %+v, want %+v", req.Addr, addr)
	}
}

func TestDecodeRequestUDPAssociate(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrIPv4, IP: net.ParseIP("0.0.0.0").To4(), Port: 0}
	wire := encodeRequest(t, hashed, CmdUDPAssociate, addr)

	req, _, err := DecodeRequest(wire)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Cmd != CmdUDPAssociate {
		t.Fatalf("Cmd = %v, want udp-associate", req.Cmd)
	}
}

func TestDecodeRequestPartialIsMoreData(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrFQDN, Host: "example.com", Port: 443}
	wire := encodeRequest(t, hashed, CmdConnect, addr)

	for i := 0; i < len(wire); i++ {
		_, _, err := DecodeRequest(wire[:i])
		if !errors.Is(err, ErrMoreData) {
			t.Fatalf("DecodeRequest(%d bytes) = %v, want ErrMoreData", i, err)
		}
	}
}

func TestDecodeRequestBadFirstCRLF(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrFQDN, Host: "example.com", Port: 443}
	wire := encodeRequest(t, hashed, CmdConnect, addr)
	wire[HashLen] = 'X'

	_, _, err := DecodeRequest(wire)
	if !errors.Is(err, ErrCRLF) {
		t.Fatalf("DecodeRequest = %v, want ErrCRLF", err)
	}
}

func TestDecodeRequestUnknownCmd(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrFQDN, Host: "example.com", Port: 443}
	wire := encodeRequest(t, hashed, CmdConnect, addr)
	wire[HashLen+2] = 0x7f

	_, _, err := DecodeRequest(wire)
	if !errors.Is(err, ErrCmd) {
		t.Fatalf("DecodeRequest = %v, want ErrCmd", err)
	}
}

func TestDecodeRequestBadTrailingCRLF(t *testing.T) {
	hashed := HashPassword("hunter2")
	addr := socks5.Address{Type: socks5.AddrFQDN, Host: "example.com", Port: 443}
	wire := encodeRequest(t, hashed, CmdConnect, addr)
	wire[len(wire)-1] = 'X'

	_, _, err := DecodeRequest(wire)
	if !errors.Is(err, ErrCRLF) {
		t.Fatalf("DecodeRequest = %v, want ErrCRLF", err)
	}
}

func TestVerifyPasswordConstantTime(t *testing.T) {
	hashed := HashPassword("correct")
	req := Request{HashedPassword: hashed}

	if !VerifyPassword(req, hashed) {
		t.Fatal("VerifyPassword rejected the correct hash")
	}
	if VerifyPassword(req, HashPassword("wrong")) {
		t.Fatal("VerifyPassword accepted an incorrect hash")
	}
}

func TestVerifyPasswordRejectsLengthMismatch(t *testing.T) {
	req := Request{HashedPassword: "short"}
	if VerifyPassword(req, HashPassword("anything")) {
		t.Fatal("VerifyPassword accepted a mismatched-length hash")
	}
}
