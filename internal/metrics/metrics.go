// Package metrics exposes Prometheus counters/histograms/gauges for
// pipeline steps, exchange latency, websocket health, and dispatch
// outcomes, adapted from internal/interfaces/http.MetricsRegistry (same
// construction shape, this system's own metric names and label sets).
// Only SignalsEmitted, DispatchOutcomes and UniverseSize are updated by the
// pipeline; StepDuration, ExchangeRequests, ExchangeLatency and
// WSReconnects are registered and exported but nothing records into them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds every Prometheus metric this system publishes.
type Registry struct {
	StepDuration     *prometheus.HistogramVec
	ExchangeRequests *prometheus.CounterVec
	ExchangeLatency  *prometheus.HistogramVec
	WSReconnects     prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec
	DispatchOutcomes *prometheus.CounterVec
	UniverseSize     prometheus.Gauge
}

// NewRegistry constructs every metric and registers it on Prometheus's
// default registry (the one promhttp.Handler serves), following
// NewMetricsRegistry's construction shape. A second call in the same
// process panics on duplicate registration.
func NewRegistry() *Registry {
	r := &Registry{
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingpulse_step_duration_seconds",
			Help:    "Duration of each pipeline step in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step", "result"}),

		ExchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingpulse_exchange_requests_total",
			Help: "Total exchange REST requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		ExchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingpulse_exchange_latency_ms",
			Help:    "Exchange REST request latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"endpoint"}),

		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundingpulse_ws_reconnects_total",
			Help: "Total streaming transport reconnect attempts",
		}),

		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingpulse_signals_emitted_total",
			Help: "Total candidate signals emitted by the rule evaluator, by type",
		}, []string{"type", "bias"}),

		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingpulse_dispatch_outcomes_total",
			Help: "Total dispatch governor outcomes by result",
		}, []string{"outcome"}),

		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingpulse_universe_size",
			Help: "Number of symbols currently monitored",
		}),
	}

	prometheus.MustRegister(
		r.StepDuration, r.ExchangeRequests, r.ExchangeLatency,
		r.WSReconnects, r.SignalsEmitted, r.DispatchOutcomes, r.UniverseSize,
	)
	return r
}

// Server exposes /metrics and /health over a local-only HTTP server,
// following the router-per-concern shape of internal/interfaces/http's use
// of gorilla/mux.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to port.
func NewServer(port int) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addrFor(port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func addrFor(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}

// Run starts the server in the background and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
}
