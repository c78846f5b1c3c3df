package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Idle detection metrics
	IdleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activityd_idle_transitions_total",
			Help: "Idle state transitions by direction",
		},
		[]string{"direction"},
	)

	IdleCheckErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activityd_idle_check_errors_total",
			Help: "Idle checks skipped because a collaborator failed",
		},
		[]string{"source"},
	)

	HookInstallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activityd_hook_install_failures_total",
			Help: "Input hook installations refused by the OS",
		},
		[]string{"kind"},
	)

	SubscriberPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activityd_subscriber_panics_total",
			Help: "Idle notification subscribers that panicked",
		},
		[]string{"event"},
	)

	// Usage journal metrics
	UsageClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activityd_usage_closed_total",
			Help: "Usage records closed and persisted",
		},
		[]string{"category"},
	)

	UsageOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "activityd_usage_open",
			Help: "Usage records currently open",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IdleTransitions,
		IdleCheckErrors,
		HookInstallFailures,
		SubscriberPanics,
		UsageClosed,
		UsageOpen,
	)
}

// Server is the metrics HTTP server
type Server struct {
	mux      *http.ServeMux
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
		mux: mux,
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

// Handle mounts an additional handler. It must be called before Start.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Handler returns the HTTP handler serving metrics and health.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
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
