package server

import (
	"bufio"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/ha1tch/shroud/internal/socks5"
	"github.com/ha1tch/shroud/internal/trojan"
	"github.com/ha1tch/shroud/pkg/tlsutil"
)

// echoOnce accepts a single TCP connection and echoes everything it reads
// back to the sender, closing once the peer closes its write side.
func echoOnce(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func TestServerConnectRelaysToEchoBackend(t *testing.T) {
	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen echo: %v", err)
	}
	defer echoLn.Close()
	go echoOnce(t, echoLn)

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Password = "integration-test-password"
	cfg.TLS = tlsutil.Source{Dev: true}
	cfg.LogLevel = "error"

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	echoAddr := echoLn.Addr().(*net.TCPAddr)

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer conn.Close()

	req := trojan.Request{
		HashedPassword: trojan.HashPassword(cfg.Password),
		Cmd:            trojan.CmdConnect,
		Addr: socks5.Address{
			Type: socks5.AddrIPv4,
			IP:   echoAddr.IP.To4(),
			Port: uint16(echoAddr.Port),
		},
	}
	wire := encodeTestRequest(t, req)
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write request: %v", err)
	}

	payload := []byte("hello through the tunnel")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, len(payload))
	if _, err := readFull(conn, got); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("echoed = %q, want %q", got, payload)
	}
}

func TestServerRejectsWrongPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Password = "the-real-password"
	cfg.TLS = tlsutil.Source{Dev: true}
	cfg.LogLevel = "error"

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer conn.Close()

	req := trojan.Request{
		HashedPassword: trojan.HashPassword("wrong-password"),
		Cmd:            trojan.CmdConnect,
		Addr:           socks5.Address{Type: socks5.AddrIPv4, IP: net.ParseIP("127.0.0.1").To4(), Port: 1},
	}
	if _, err := conn.Write(encodeTestRequest(t, req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, _ := conn.Read(buf)
	if n != 0 {
		t.Fatalf("expected the server to close without relaying data, got %d bytes", n)
	}
}

func encodeTestRequest(t *testing.T, req trojan.Request) []byte {
	t.Helper()
	buf := make([]byte, 0, trojan.HashLen+2+1+socks5.MaxEncodedLen+2)
	buf = append(buf, []byte(req.HashedPassword)...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, byte(req.Cmd))

	addrBuf := make([]byte, socks5.MaxEncodedLen)
	n, err := req.Addr.Encode(addrBuf)
	if err != nil {
		t.Fatalf("encode addr: %v", err)
	}
	buf = append(buf, addrBuf[:n]...)
	buf = append(buf, '\r', '\n')
	return buf
}

func readFull(r *tls.Conn, dst []byte) (int, error) {
	br := bufio.NewReaderSize(r, len(dst))
	total := 0
	for total < len(dst) {
		n, err := br.Read(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
