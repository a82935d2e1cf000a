// Package http exposes the read-only ops surface: health, stats, and
// Prometheus metrics. It never mutates scanner state.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/batch"
	"github.com/gemscan/gemscan/internal/cache"
	"github.com/gemscan/gemscan/internal/ratelimit"
	"github.com/gemscan/gemscan/internal/validation"
)

// Config holds server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Deps are the read-only views the handlers serve.
type Deps struct {
	ProviderName string
	Manager      *batch.Manager
	Store        cache.Store
	Scheduler    StrategyLister
	Registry     *prometheus.Registry
}

// StrategyLister is the slice of the scheduler the ops surface needs.
type StrategyLister interface {
	Strategies() []string
}

// Server is the read-only HTTP server.
type Server struct {
	server  *http.Server
	deps    Deps
	started time.Time
}

// NewServer builds the server and its routes.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{deps: deps, started: time.Now()}

	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet)

	if deps.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Registry,
			promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Ops HTTP server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Ops HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

type healthResponse struct {
	Status   string             `json:"status"`
	Provider string             `json:"provider"`
	Uptime   string             `json:"uptime"`
	Throttle ratelimit.Snapshot `json:"throttle"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Provider: s.deps.ProviderName,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Manager != nil {
		resp.Throttle = s.deps.Manager.ThrottleSnapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Batch      batch.PerformanceStats `json:"batch"`
	Validation validation.Stats       `json:"validation"`
	Cache      cache.Stats            `json:"cache"`
	CacheHit   float64                `json:"cache_hit_rate"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	if s.deps.Manager != nil {
		resp.Batch = s.deps.Manager.PerformanceStats()
		resp.Validation = s.deps.Manager.Validator().Stats()
	}
	if s.deps.Store != nil {
		resp.Cache = s.deps.Store.Stats()
		resp.CacheHit = resp.Cache.HitRate()
	}
	writeJSON(w, http.StatusOK, resp)
}

type strategiesResponse struct {
	Strategies []string `json:"strategies"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	resp := strategiesResponse{Strategies: []string{}}
	if s.deps.Scheduler != nil {
		if names := s.deps.Scheduler.Strategies(); names != nil {
			resp.Strategies = names
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
