package resolver

import (
	"context"
	"net"
	"testing"

	"github.com/ha1tch/shroud/internal/socks5"
)

func TestResolveIPv4SkipsLookup(t *testing.T) {
	r := New(nil)
	addr := socks5.Address{Type: socks5.AddrIPv4, IP: net.ParseIP("203.0.113.5").To4(), Port: 8080}

	targets, err := r.Resolve(context.Background(), addr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"203.0.113.5:8080"}
	if len(targets) != 1 || targets[0] != want[0] {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
}

func TestResolveIPv6SkipsLookup(t *testing.T) {
	r := New(nil)
	addr := socks5.Address{Type: socks5.AddrIPv6, IP: net.ParseIP("2001:db8::5"), Port: 443}

	targets, err := r.Resolve(context.Background(), addr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("targets = %v, want 1 entry", targets)
	}
}

func TestResolveUnknownTypeErrors(t *testing.T) {
	r := New(nil)
	addr := socks5.Address{Type: socks5.AddrType(0xff), Port: 1}

	if _, err := r.Resolve(context.Background(), addr); err == nil {
		t.Fatal("expected an error for an unresolvable address type")
	}
}
