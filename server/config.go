// Package server assembles the trojan relay's accept loop: a TLS
// listener, a password hash, a resolver, and per-connection session
// handlers.
package server

import (
	"time"

	"github.com/ha1tch/shroud/pkg/log"
	"github.com/ha1tch/shroud/pkg/tlsutil"
)

// Config holds server configuration.
type Config struct {
	// Name and Version identify this server instance in logs.
	Name    string
	Version string

	// ListenAddr is the TCP address the TLS listener binds, e.g. ":443".
	ListenAddr string

	// Password is the plaintext trojan password; the server hashes it once
	// at startup and never stores or logs the plaintext again.
	Password string

	// TLS selects how the server certificate is obtained.
	TLS tlsutil.Source

	// CertWatch enables fsnotify-based hot reload when TLS.CertFile and
	// TLS.KeyFile are both set.
	CertWatch bool

	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address at /metrics. Empty disables the metrics listener.
	MetricsAddr string

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration

	LogLevel  string
	LogFormat string
	Logger    *log.Logger // optional pre-configured logger, overrides LogLevel/LogFormat
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:             "shroud",
		Version:          "0.1.0",
		ListenAddr:       ":443",
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		IdleTimeout:      2 * time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}
