// Package api exposes voice events, commands, usage queries and reports over
// HTTP, and relays GitHub issue comments to chat.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goodtune/voicetally/internal/command"
	"github.com/goodtune/voicetally/internal/presence"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/rs/zerolog"
)

// ReportRunner runs the idempotent daily report path on demand.
type ReportRunner interface {
	RunOnce(ctx context.Context) (bool, error)
}

// Sender queues a chat notification for asynchronous delivery.
type Sender interface {
	Send(text string)
}

// HealthChecker reports whether storage is reachable.
type HealthChecker func(ctx context.Context) error

// Deps are the services the API delegates to.
type Deps struct {
	Presence  *presence.Handler
	Commands  *command.Handler
	Query     *usage.Query
	Generator *usage.Generator
	Reports   ReportRunner
	Health    HealthChecker
	GitHub    Sender // nil disables the GitHub relay
}

// Server is the API HTTP server
type Server struct {
	deps     Deps
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new API server
func NewServer(addr string, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/voice", s.voiceEvent)
		r.Post("/commands", s.runCommand)
		r.Get("/users/{userID}/usage", s.userTotals)
		r.Get("/users/{userID}/usage/{month}", s.userMonth)
		r.Get("/reports/{month}", s.report)
		r.Post("/reports/dispatch", s.dispatchReport)
		r.Post("/github", s.githubEvent)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated HTTP listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
