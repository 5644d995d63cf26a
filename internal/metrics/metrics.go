package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracker metrics
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetally_transitions_total",
			Help: "Voice channel transitions processed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SessionSecondsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetally_session_seconds_total",
			Help: "Seconds of closed sessions folded into monthly totals",
		},
	)

	NegativeDurationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetally_negative_durations_total",
			Help: "Closed sessions whose leave time preceded their join time",
		},
	)

	// Storage metrics
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetally_store_errors_total",
			Help: "Usage store failures, by operation",
		},
		[]string{"op"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetally_notifications_total",
			Help: "Outbound notifications, by result",
		},
		[]string{"result"},
	)

	// Report metrics
	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetally_reports_total",
			Help: "Scheduled and manual report dispatches, by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TransitionsTotal,
		SessionSecondsTotal,
		NegativeDurationsTotal,
		StoreErrorsTotal,
		NotificationsTotal,
		ReportsTotal,
	)
}

// HealthChecker reports whether the service's dependencies are reachable.
type HealthChecker func(ctx context.Context) error

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. A nil checker always reports healthy.
func NewServer(addr string, checker HealthChecker, logger zerolog.Logger) *Server {
	l := logger.With().Str("component", "metrics").Logger()
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           newMux(checker, l),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: l,
	}
}

func newMux(checker HealthChecker, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker(ctx); err != nil {
				logger.Warn().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
