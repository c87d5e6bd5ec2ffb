package session

import (
	"bytes"
	"context"
	"io"
	"net"

	"github.com/ha1tch/shroud/internal/buf"
	"github.com/ha1tch/shroud/internal/metrics"
	"github.com/ha1tch/shroud/internal/streamio"
	"github.com/ha1tch/shroud/internal/trojan"
)

// readRequest reads and decodes the trojan request header from conn,
// returning a copy of the bytes the client pipelined immediately behind it
// (the first chunk of upload data, or the first framed UDP packet) —
// copied out of the scratch buffer so it outlives this call.
func readRequest(conn net.Conn) (trojan.Request, []byte, error) {
	buffer := buf.New()
	req, rest, err := streamio.ReadUntilParsed(conn, buffer, trojan.DecodeRequest)
	if err != nil {
		return trojan.Request{}, nil, err
	}
	pipelined := append([]byte(nil), rest.Bytes()...)
	return req, pipelined, nil
}

// prependReader serves buffered bytes before falling through to r, the way
// a client's pipelined first chunk is replayed ahead of further reads.
func prependReader(head []byte, r io.Reader) io.Reader {
	if len(head) == 0 {
		return r
	}
	return io.MultiReader(bytes.NewReader(head), r)
}

// handleConnect serves a CmdConnect session: resolve the target, dial it,
// and race a bidirectional copy until either side finishes.
func handleConnect(ctx context.Context, conn net.Conn, req trojan.Request, pipelined []byte, cfg Config) error {
	targets, err := cfg.Resolver.Resolve(ctx, req.Addr)
	if err != nil {
		cfg.Metrics.IncResolveFailure()
		return err
	}

	var remote net.Conn
	var dialErr error
	dialer := net.Dialer{Timeout: cfg.dialTimeout()}
	for _, target := range targets {
		remote, dialErr = dialer.DialContext(ctx, "tcp", target)
		if dialErr == nil {
			break
		}
	}
	if dialErr != nil {
		cfg.Metrics.IncDialFailure()
		return dialErr
	}
	defer remote.Close()

	upload := prependReader(pipelined, conn)

	return streamio.Race(ctx,
		func() error {
			err := streamio.Forward(remote, upload, cfg.Metrics, metrics.DirectionUpload)
			remote.Close()
			return err
		},
		func() error {
			err := streamio.Forward(conn, remote, cfg.Metrics, metrics.DirectionDownload)
			conn.Close()
			return err
		},
	)
}
