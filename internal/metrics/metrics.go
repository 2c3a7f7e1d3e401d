package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracker loop metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ttw_ticks_total",
			Help: "Total tracker polling ticks",
		},
	)

	IdleTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ttw_idle_ticks_total",
			Help: "Ticks on which the user was idle",
		},
	)

	ObservationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttw_observation_failures_total",
			Help: "Failed desktop observations",
		},
		[]string{"source"},
	)

	// Session metrics
	SessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttw_sessions_opened_total",
			Help: "Focus sessions opened",
		},
		[]string{"class"},
	)

	FocusSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttw_focus_seconds_total",
			Help: "Seconds of focus recorded per window class",
		},
		[]string{"class"},
	)

	// Store metrics
	StoreWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ttw_store_write_duration_seconds",
			Help:    "Session store write duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"op"},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttw_store_errors_total",
			Help: "Session store write failures",
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TicksTotal,
		IdleTicksTotal,
		ObservationFailures,
		SessionsOpened,
		FocusSeconds,
		StoreWriteDuration,
		StoreErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
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
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
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
