// Package netutil provides low-level socket setup the standard net package
// does not expose directly: setting SO_REUSEADDR on the UDP associate
// socket before bind.
package netutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenUDPReuseAddr binds a UDP socket on the given address with
// SO_REUSEADDR set before bind. network is "udp", "udp4", or "udp6".
func ListenUDPReuseAddr(ctx context.Context, network, address string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
