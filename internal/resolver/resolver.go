// Package resolver adapts a socks5.Address to a dialable network address,
// short-circuiting the numeric-IP case and deferring FQDNs to DNS.
package resolver

import (
	"context"
	"net"
	"strconv"

	"github.com/ha1tch/shroud/internal/socks5"
	shrouderrors "github.com/ha1tch/shroud/pkg/errors"
)

// Resolver resolves a socks5.Address to one or more dialable IPs. The zero
// value wraps net.DefaultResolver.
type Resolver struct {
	net *net.Resolver
}

// New wraps r, or net.DefaultResolver if r is nil.
func New(r *net.Resolver) *Resolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Resolver{net: r}
}

// Resolve returns the dial targets ("ip:port" strings) for addr. IPv4 and
// IPv6 addresses are returned as-is without a DNS round trip; FQDNs are
// looked up and every returned address is paired with addr's port, so the
// caller can try them in order.
func (r *Resolver) Resolve(ctx context.Context, addr socks5.Address) ([]string, error) {
	port := strconv.Itoa(int(addr.Port))

	switch addr.Type {
	case socks5.AddrIPv4, socks5.AddrIPv6:
		return []string{net.JoinHostPort(addr.IP.String(), port)}, nil

	case socks5.AddrFQDN:
		ips, err := r.net.LookupIPAddr(ctx, addr.Host)
		if err != nil {
			return nil, shrouderrors.Wrap(err, shrouderrors.ErrCodeResolve, "resolver: lookup failed").
				WithField("host", addr.Host).Err()
		}
		if len(ips) == 0 {
			return nil, shrouderrors.New(shrouderrors.ErrCodeResolve, "resolver: no addresses returned").
				WithField("host", addr.Host).Err()
		}
		targets := make([]string, 0, len(ips))
		for _, ip := range ips {
			targets = append(targets, net.JoinHostPort(ip.String(), port))
		}
		return targets, nil

	default:
		return nil, shrouderrors.New(shrouderrors.ErrCodeResolve, "resolver: unresolvable address type").Err()
	}
}
