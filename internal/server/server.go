package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"callbot/internal/service"
)

// Knowledge is the part of the knowledge base the HTTP surface drives.
type Knowledge interface {
	RebuildFromBytes(ctx context.Context, name string, data []byte) (service.IngestReport, error)
	LastReport() (service.IngestReport, bool)
}

// Config holds listener and request limits.
type Config struct {
	Host            string
	Port            int
	RateLimit       float64 // requests per second on chat routes, 0 disables
	RateBurst       int
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Server manages the HTTP server and routes
type Server struct {
	assistant *service.Assistant
	knowledge Knowledge
	logger    *zap.Logger
	cfg       Config
	limiter   *rate.Limiter
	router    *http.ServeMux
	server    *http.Server
}

// New creates a new HTTP server around the assistant.
func New(assistant *service.Assistant, knowledge Knowledge, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		assistant: assistant,
		knowledge: knowledge,
		logger:    logger,
		cfg:       cfg,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.withMiddleware(s.router),
		ReadHeaderTimeout: 15 * time.Second,
		// Generation and transcription can be slow.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.Addr()))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
