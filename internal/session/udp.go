package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/ha1tch/shroud/internal/buf"
	"github.com/ha1tch/shroud/internal/metrics"
	"github.com/ha1tch/shroud/internal/netutil"
	"github.com/ha1tch/shroud/internal/socks5"
	"github.com/ha1tch/shroud/internal/streamio"
	"github.com/ha1tch/shroud/internal/trojan"
)

// handleUDPAssociate serves a CmdUDPAssociate session. The TCP connection
// carries a stream of length-framed UDP datagrams in both directions (the
// trojan "UDP over TLS" convention); this side relays each one to and from
// a single outbound UDP socket, resolving each packet's destination
// independently since UDP associate has no single fixed target.
func handleUDPAssociate(ctx context.Context, conn net.Conn, pipelined []byte, cfg Config) error {
	udpConn, err := netutil.ListenUDPReuseAddr(ctx, "udp", ":0")
	if err != nil {
		return err
	}
	defer udpConn.Close()

	br := bufio.NewReaderSize(prependReader(pipelined, conn), buf.BufSize)

	return streamio.Race(ctx,
		func() error {
			err := tcpToUDP(ctx, br, udpConn, cfg)
			udpConn.Close()
			return err
		},
		func() error {
			err := udpToTCP(conn, udpConn, cfg)
			conn.Close()
			return err
		},
	)
}

// tcpToUDP reads framed datagrams from the client's TCP stream and sends
// each payload to the packet's own destination over udpConn. Any header,
// read, resolve, or send failure aborts the pair rather than skipping the
// datagram.
func tcpToUDP(ctx context.Context, br *bufio.Reader, udpConn *net.UDPConn, cfg Config) error {
	for {
		header, err := readUDPHeader(br)
		if err != nil {
			return err
		}
		if int(header.Length) > trojan.MaxUDPPayload {
			return trojan.ErrUDPOverflow
		}

		payload := make([]byte, header.Length)
		if err := streamio.ReadExact(br, payload); err != nil {
			return err
		}

		targets, err := cfg.Resolver.Resolve(ctx, header.Addr)
		if err != nil {
			cfg.Metrics.IncResolveFailure()
			return err
		}
		raddr, err := net.ResolveUDPAddr("udp", targets[0])
		if err != nil {
			cfg.Metrics.IncResolveFailure()
			return err
		}

		if _, err := udpConn.WriteToUDP(payload, raddr); err != nil {
			cfg.Metrics.IncDialFailure()
			return err
		}
		cfg.Metrics.AddBytes(metrics.DirectionUpload, len(payload))
	}
}

// udpToTCP reads replies arriving on udpConn and frames each one back onto
// conn with the sending address as the packet's socks5-addr.
func udpToTCP(conn net.Conn, udpConn *net.UDPConn, cfg Config) error {
	payload := make([]byte, trojan.MaxUDPPayload)
	header := make([]byte, socks5.MaxEncodedLen+4)

	for {
		n, raddr, err := udpConn.ReadFromUDP(payload)
		if err != nil {
			return err
		}

		h := trojan.UDPHeader{Addr: socks5.FromUDPAddr(raddr), Length: uint16(n)}
		hn, err := h.Encode(header)
		if err != nil {
			continue
		}

		if err := streamio.WriteAll(conn, header[:hn]); err != nil {
			return err
		}
		if err := streamio.WriteAll(conn, payload[:n]); err != nil {
			return err
		}
		cfg.Metrics.AddBytes(metrics.DirectionDownload, n)
	}
}

// readUDPHeader grows its peek window over br until trojan.DecodeUDPHeader
// succeeds, then discards exactly the header bytes consumed. It is
// ReadUntilParsed's logic specialised to a bufio.Reader, since a UDP
// associate session frames many packets back-to-back on one stream instead
// of parsing a single header once per connection.
func readUDPHeader(br *bufio.Reader) (trojan.UDPHeader, error) {
	for size := 4; ; size++ {
		b, err := br.Peek(size)
		if len(b) > 0 {
			h, consumed, derr := trojan.DecodeUDPHeader(b)
			if derr == nil {
				br.Discard(consumed)
				return h, nil
			}
			if !errors.Is(derr, socks5.ErrMoreData) {
				return trojan.UDPHeader{}, derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(b) == 0 {
					return trojan.UDPHeader{}, io.EOF
				}
				return trojan.UDPHeader{}, io.ErrUnexpectedEOF
			}
			return trojan.UDPHeader{}, err
		}
	}
}
