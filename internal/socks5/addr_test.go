package socks5

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestEncodeDecodeIPv4RoundTrip(t *testing.T) {
	a := Address{Type: AddrIPv4, IP: net.ParseIP("192.0.2.1").To4(), Port: 443}
	buf := make([]byte, MaxEncodedLen)

	n, err := a.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != a.EncodedLen() {
		t.Fatalf("Encode wrote %d bytes, EncodedLen() = %d", n, a.EncodedLen())
	}

	got, consumed, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("Decode consumed %d, want %d", consumed, n)
	}
	if got.Type != AddrIPv4 || !got.IP.Equal(a.IP) || got.Port != a.Port {
		t.Fatalf("Decode = %+v, want %+v", got, a)
	}
}

func TestEncodeDecodeIPv6RoundTrip(t *testing.T) {
	a := Address{Type: AddrIPv6, IP: net.ParseIP("2001:db8::1"), Port: 8443}
	buf := make([]byte, MaxEncodedLen)

	n, err := a.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, consumed, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("Decode consumed %d, want %d", consumed, n)
	}
	if got.Type != AddrIPv6 || !got.IP.Equal(a.IP) || got.Port != a.Port {
		t.Fatalf("Decode = %+v, want %+v", got, a)
	}
}

func TestEncodeDecodeFQDNRoundTrip(t *testing.T) {
	a := Address{Type: AddrFQDN, Host: "example.com", Port: 80}
	buf := make([]byte, MaxEncodedLen)

	n, err := a.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, consumed, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("Decode consumed %d, want %d", consumed, n)
	}
	if got.Type != AddrFQDN || got.Host != a.Host || got.Port != a.Port {
		t.Fatalf("Decode = %+v, want %+v", got, a)
	}
}

func TestDecodePartialInputReturnsMoreData(t *testing.T) {
	a := Address{Type: AddrFQDN, Host: "example.com", Port: 80}
	buf := make([]byte, MaxEncodedLen)
	n, err := a.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for i := 0; i < n; i++ {
		_, _, err := Decode(buf[:i])
		if !errors.Is(err, ErrMoreData) {
			t.Fatalf("Decode(%d bytes) = %v, want ErrMoreData", i, err)
		}
	}
}

func TestDecodeUnknownAtyp(t *testing.T) {
	_, _, err := Decode([]byte{0x7f, 0, 0, 0})
	if !errors.Is(err, ErrAtyp) {
		t.Fatalf("Decode = %v, want ErrAtyp", err)
	}
}

func TestDecodeZeroLengthFQDN(t *testing.T) {
	_, _, err := Decode([]byte{byte(AddrFQDN), 0x00})
	if !errors.Is(err, ErrFqdnLen) {
		t.Fatalf("Decode = %v, want ErrFqdnLen", err)
	}
}

func TestEncodeZeroLengthFQDNRejected(t *testing.T) {
	a := Address{Type: AddrFQDN, Host: ""}
	_, err := a.Encode(make([]byte, MaxEncodedLen))
	if !errors.Is(err, ErrFqdnLen) {
		t.Fatalf("Encode = %v, want ErrFqdnLen", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	a := Address{Type: AddrIPv4, IP: net.ParseIP("10.0.0.1").To4(), Port: 1}
	buf := make([]byte, MaxEncodedLen+10)
	n, _ := a.Encode(buf)
	copy(buf[n:], bytes.Repeat([]byte{0xAA}, 10))

	got, consumed, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed = %d, want %d", consumed, n)
	}
	if !got.IP.Equal(a.IP) {
		t.Fatalf("IP = %v, want %v", got.IP, a.IP)
	}
}
