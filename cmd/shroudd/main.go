package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ha1tch/shroud/pkg/tlsutil"
	"github.com/ha1tch/shroud/pkg/version"
	"github.com/ha1tch/shroud/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shroudd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		listenAddr = fs.String("listen", ":443", "Address to listen on")
		password   = fs.String("password", "", "Trojan password (required)")

		certFile  = fs.String("cert", "", "TLS certificate file (PEM)")
		keyFile   = fs.String("key", "", "TLS private key file (PEM)")
		watchCert = fs.Bool("watch-cert", false, "Hot-reload the certificate when cert/key files change")

		acmeDomain = fs.String("acme-domain", "", "Domain to provision a certificate for via ACME")
		acmeCache  = fs.String("acme-cache", "./acme-cache", "Directory for cached ACME certificates")

		devTLS = fs.Bool("dev", false, "Use an ephemeral self-signed certificate (development only)")

		metricsAddr = fs.String("metrics-listen", "", "Address to serve Prometheus metrics on (empty disables)")

		dialTimeout      = fs.Duration("dial-timeout", 10*time.Second, "Outbound dial timeout")
		handshakeTimeout = fs.Duration("handshake-timeout", 5*time.Second, "TLS handshake timeout")
		idleTimeout      = fs.Duration("idle-timeout", 2*time.Minute, "Idle timeout while waiting for the trojan request header")

		logLevel  = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat = fs.String("log-format", "text", "Log format (text, json)")

		showHelp    = fs.Bool("help", false, "Show help")
		showVersion = fs.Bool("version", false, "Show version")
	)

	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showHelp {
		printUsage(stdout)
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}
	if *password == "" {
		fmt.Fprintln(stderr, "error: -password is required")
		return 2
	}

	cfg := server.DefaultConfig()
	cfg.Version = version.Version
	cfg.ListenAddr = *listenAddr
	cfg.Password = *password
	cfg.TLS = tlsutil.Source{
		CertFile:   *certFile,
		KeyFile:    *keyFile,
		ACMEDomain: *acmeDomain,
		ACMECache:  *acmeCache,
		Dev:        *devTLS,
	}
	cfg.CertWatch = *watchCert
	cfg.MetricsAddr = *metricsAddr
	cfg.DialTimeout = *dialTimeout
	cfg.HandshakeTimeout = *handshakeTimeout
	cfg.IdleTimeout = *idleTimeout
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error creating server: %v\n", err)
		return 1
	}

	logger := srv.Logger()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(stderr, "error starting server: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "shroud server started (version %s)\n", version.Version)
	fmt.Fprintf(stdout, "  Listening: %s\n", srv.Addr())
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(stdout, "  Metrics: %s/metrics\n", cfg.MetricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.System().Info("shutdown signal received", "signal", sig.String())
	fmt.Fprintln(stdout, "\nShutting down...")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(stderr, "error stopping server: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Server stopped")
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `shroudd - TLS-wrapped tunneling proxy server (trojan protocol)

Usage:
  shroudd [options]

Server Options:
  -listen <addr>            Address to listen on (default: :443)
  -password <password>      Trojan password (required)

TLS Options (choose one):
  -cert <file> -key <file>  Static PEM certificate and key
  -watch-cert               Hot-reload -cert/-key when they change on disk
  -acme-domain <domain>     Provision a certificate automatically via ACME
  -acme-cache <dir>         Directory for cached ACME certificates (default: ./acme-cache)
  -dev                      Ephemeral self-signed certificate, development only

Observability:
  -metrics-listen <addr>    Serve Prometheus metrics at <addr>/metrics (default: disabled)
  -log-level <level>        Log level: debug, info, warn, error (default: info)
  -log-format <format>      Log format: text, json (default: text)

Timeouts:
  -dial-timeout <dur>       Outbound dial timeout (default: 10s)
  -handshake-timeout <dur>  TLS handshake timeout (default: 5s)
  -idle-timeout <dur>       Time to wait for the trojan request header (default: 2m)

General:
  -help                     Show help
  -version                  Show version

Examples:
  # Development, self-signed certificate
  shroudd -dev -password hunter2

  # Production, static certificate with hot reload
  shroudd -listen :443 -password hunter2 -cert /etc/shroud/fullchain.pem -key /etc/shroud/privkey.pem -watch-cert

  # Production, ACME-managed certificate
  shroudd -listen :443 -password hunter2 -acme-domain relay.example.com

Exit Codes:
  0  Success
  1  Runtime error
  2  CLI usage error
`)
}
