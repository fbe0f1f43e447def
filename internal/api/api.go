// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api/health"
	"github.com/good-yellow-bee/blazewatch/internal/api/middleware"
	"github.com/good-yellow-bee/blazewatch/internal/api/monitors"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address            string
	JWTSecret          []byte
	HTTPTLSEnabled     bool   // Enable HTTPS for API server
	HTTPTLSCertFile    string // HTTPS certificate file
	HTTPTLSKeyFile     string // HTTPS private key file
	RateLimitPerMinute int    // Per subject, or per IP before authentication
	RateLimitBurst     int
	ExecuteTimeout     time.Duration // Bound for a single _execute call
	Limits             alerting.Limits
	Verbose            bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 600
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = c.RateLimitPerMinute / 10
	}
	if c.ExecuteTimeout == 0 {
		c.ExecuteTimeout = time.Minute
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	storage       storage.Storage
	history       storage.AlertHistoryRepository
	runner        monitors.Runner
	server        *http.Server
	healthHandler *health.Handler
	limiter       *middleware.RateLimiter
}

// New creates a new API server.
// history can be nil, in which case alert history is read from store.
func New(cfg *Config, store storage.Storage, runner monitors.Runner, history storage.AlertHistoryRepository) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}

	cfg.SetDefaults()
	if history == nil {
		history = store.AlertHistory()
	}

	s := &Server{
		config:        cfg,
		storage:       store,
		history:       history,
		runner:        runner,
		healthHandler: health.NewHandler(),
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Execute calls run monitor inputs and actions and are bounded by ExecuteTimeout.
		WriteTimeout: cfg.ExecuteTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
