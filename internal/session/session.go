// Package session implements the per-connection trojan protocol state
// machine: read the request header, authenticate, and dispatch to a TCP
// relay or a UDP associate tunnel.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ha1tch/shroud/internal/metrics"
	"github.com/ha1tch/shroud/internal/resolver"
	"github.com/ha1tch/shroud/internal/trojan"
	"github.com/ha1tch/shroud/pkg/log"
)

// Config holds the dependencies and tunables a session needs, assembled
// once by the server and shared read-only across every accepted connection.
type Config struct {
	PasswordHash     string
	Resolver         *resolver.Resolver
	Metrics          *metrics.Metrics
	Logger           *log.Logger
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 10 * time.Second
}

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return 5 * time.Second
}

// Handle runs one accepted connection to completion: TLS handshake (if
// conn is a *tls.Conn still awaiting one), request parse, authentication,
// and relay. It always returns once the session ends; it never panics on
// a malformed client.
func Handle(ctx context.Context, conn net.Conn, cfg Config) {
	sessionID := generateSessionID()
	base := []interface{}{"session_id", sessionID, "remote_addr", conn.RemoteAddr().String()}
	sessLog := cfg.Logger.Session().WithFields(base...)

	if err := handshake(conn, cfg.handshakeTimeout()); err != nil {
		sessLog.Debug("tls handshake failed", "error", err.Error())
		cfg.Metrics.IncHandshakeFailure()
		return
	}

	cfg.Metrics.SessionStarted()
	defer cfg.Metrics.SessionEnded()

	if cfg.IdleTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	}

	req, pipelined, err := readRequest(conn)
	if err != nil {
		sessLog.Debug("request parse failed", "error", err.Error())
		return
	}
	conn.SetReadDeadline(time.Time{})

	if !trojan.VerifyPassword(req, cfg.PasswordHash) {
		cfg.Logger.Audit().WithFields(base...).Warn("authentication failed")
		cfg.Metrics.IncAuthFailure()
		return
	}

	sessLog = cfg.Logger.Session().WithFields(append(base, "cmd", req.Cmd.String(), "target", req.Addr.String())...)
	sessLog.Info("session authenticated")

	switch req.Cmd {
	case trojan.CmdConnect:
		if err := handleConnect(ctx, conn, req, pipelined, cfg); err != nil && !isExpectedTeardown(err) {
			sessLog.Debug("relay ended", "error", err.Error())
		}
	case trojan.CmdUDPAssociate:
		if err := handleUDPAssociate(ctx, conn, pipelined, cfg); err != nil && !isExpectedTeardown(err) {
			sessLog.Debug("udp associate ended", "error", err.Error())
		}
	default:
		// DecodeRequest already rejects any other command with ErrCmd.
	}

	sessLog.Info("session closed")
}

func handshake(conn net.Conn, timeout time.Duration) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil
	}
	deadline := time.Now().Add(timeout)
	if err := tlsConn.SetDeadline(deadline); err != nil {
		return err
	}
	defer tlsConn.SetDeadline(time.Time{})
	return tlsConn.HandshakeContext(context.Background())
}

func isExpectedTeardown(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func generateSessionID() string {
	return fmt.Sprintf("sess_%d", time.Now().UnixNano())
}
