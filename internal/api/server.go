// Package api serves job and batch status as JSON over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/pipeline"
)

type Server struct {
	httpServer *http.Server
	batches    *batches
	logger     zerolog.Logger
}

type ServerConfig struct {
	Addr string
	// Jobs is nil when the ledger is disabled.
	Jobs    JobStore
	Runner  BatchRunner
	Tracker *Tracker
	// Batch holds the configured folders and parameters that POST /batch
	// starts from.
	Batch     pipeline.BatchInput
	Logger    zerolog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	cfg.Logger = cfg.Logger.With().Str("component", "api").Logger()
	b := newBatches(cfg.Runner, cfg.Logger)
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, b),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		batches: b,
		logger:  cfg.Logger,
	}
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then cancels a running batch and waits
// for its jobs to hand their videos back.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	s.batches.stop()
	return err
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }
