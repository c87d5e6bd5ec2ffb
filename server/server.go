package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ha1tch/shroud/internal/metrics"
	"github.com/ha1tch/shroud/internal/resolver"
	"github.com/ha1tch/shroud/internal/session"
	"github.com/ha1tch/shroud/internal/trojan"
	"github.com/ha1tch/shroud/pkg/certwatch"
	shrouderrors "github.com/ha1tch/shroud/pkg/errors"
	"github.com/ha1tch/shroud/pkg/log"
	"github.com/ha1tch/shroud/pkg/tlsutil"
)

// State represents the server's current lifecycle state.
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server is the trojan relay server: one TLS listener accepting
// connections and dispatching each to the session state machine.
type Server struct {
	mu sync.RWMutex

	config Config
	logger *log.Logger

	metrics        *metrics.Metrics
	metricsHandler http.Handler
	metricsServer  *http.Server

	listener    net.Listener
	sessionCfg  session.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state     State
	startTime time.Time
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, shrouderrors.New(shrouderrors.ErrCodeConfigMissing, "server: ListenAddr is required").Err()
	}
	if cfg.Password == "" {
		return nil, shrouderrors.New(shrouderrors.ErrCodeConfigMissing, "server: Password is required").Err()
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := cfg.Logger
	if logger == nil {
		level, _ := log.ParseLevel(cfg.LogLevel)
		format := log.FormatText
		if cfg.LogFormat == "json" {
			format = log.FormatJSON
		}
		logger = log.New(log.Config{
			DefaultLevel:  level,
			Format:        format,
			IncludeCaller: level == log.LevelDebug,
		})
	}

	m, metricsHandler := metrics.New()

	s := &Server{
		config:         cfg,
		logger:         logger,
		metrics:        m,
		metricsHandler: metricsHandler,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateNew,
	}

	s.sessionCfg = session.Config{
		PasswordHash:     trojan.HashPassword(cfg.Password),
		Resolver:         resolver.New(nil),
		Metrics:          m,
		Logger:           logger,
		DialTimeout:      cfg.DialTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		IdleTimeout:      cfg.IdleTimeout,
	}
	s.config.Password = ""

	logger.System().Info("server initialised",
		"name", cfg.Name,
		"version", cfg.Version,
		"listen_addr", cfg.ListenAddr,
	)

	return s, nil
}

// Start builds the TLS listener (and the optional metrics listener), then
// begins accepting connections in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != StateNew && s.state != StateStopped {
		s.mu.Unlock()
		return shrouderrors.Newf(shrouderrors.ErrCodeConfigInvalid, "server cannot start from state %s", s.state).Err()
	}
	s.state = StateStarting
	s.mu.Unlock()

	s.logger.System().Info("server starting")

	tlsConfig, watcher, err := s.buildTLSConfig()
	if err != nil {
		return shrouderrors.Wrap(err, shrouderrors.ErrCodeTLSError, "failed to build TLS config").Err()
	}
	if watcher != nil {
		watcher.Start()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-s.ctx.Done()
			watcher.Stop()
		}()
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return shrouderrors.Wrap(err, shrouderrors.ErrCodeConfigInvalid, "failed to bind listener").
			WithField("addr", s.config.ListenAddr).Err()
	}
	s.listener = tls.NewListener(ln, tlsConfig)

	if s.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler)
		s.metricsServer = &http.Server{Addr: s.config.MetricsAddr, Handler: mux}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.System().Error("metrics server failed", err, "addr", s.config.MetricsAddr)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.mu.Lock()
	s.state = StateRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.System().Info("server started", "state", "running", "addr", s.listener.Addr().String())
	return nil
}

// Stop gracefully stops the server, closing the listener and waiting for
// in-flight sessions' background goroutines to notice the context cancel.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateStarting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.System().Info("server stopping")

	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	s.wg.Wait()

	if s.logger != nil {
		s.logger.Close()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.System().Info("server stopped")
	return nil
}

// State returns the current server state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// Logger returns the server's logger.
func (s *Server) Logger() *log.Logger {
	return s.logger
}

// Addr returns the TLS listener's bound address. Valid only after Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// buildTLSConfig constructs the server's tls.Config. When CertWatch is
// enabled and the source is a static cert/key pair, it swaps in a
// certwatch.Watcher's GetCertificate so a renewed file on disk is picked
// up without restarting the listener.
func (s *Server) buildTLSConfig() (*tls.Config, *certwatch.Watcher, error) {
	cfg, err := tlsutil.Build(s.config.TLS)
	if err != nil {
		return nil, nil, err
	}

	if !s.config.CertWatch || s.config.TLS.CertFile == "" || s.config.TLS.KeyFile == "" {
		return cfg, nil, nil
	}

	watcher, err := certwatch.New(s.config.TLS.CertFile, s.config.TLS.KeyFile, s.logger)
	if err != nil {
		return nil, nil, err
	}
	cfg.Certificates = nil
	cfg.GetCertificate = watcher.GetCertificate
	return cfg, watcher, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if err != io.EOF {
					s.logger.System().Error("accept failed", err)
				}
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			session.Handle(s.ctx, conn, s.sessionCfg)
		}()
	}
}
