package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"muse/internal/core"
	"muse/internal/flood"
	"muse/pkg/text"
)

const shutdownTimeout = 10 * time.Second

// Limiter decides whether a requester may resolve another query.
type Limiter interface {
	Allow(key string) bool
}

// CacheStats reports cumulative cache hits and misses and the number of entries held.
type CacheStats interface {
	Stats() (hits, misses int64)
	Len() int
}

type floodStats interface {
	GetStats() flood.Stats
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	registry *prometheus.Registry
	resolver core.SongResolver
	limiter  Limiter
	parser   *text.Parser
}

type Option func(*Server)

// WithLimiter rejects requesters the limiter refuses. A flood.Floodgate also
// exports its active requester count.
func WithLimiter(limiter Limiter) Option {
	return func(s *Server) {
		s.limiter = limiter
		if stats, ok := limiter.(floodStats); ok {
			s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "muse_flood_active_requesters",
				Help: "Number of requesters currently tracked by the flood limit",
			}, func() float64 {
				return float64(stats.GetStats().ActiveRequesters)
			}))
		}
	}
}

// WithCacheStats exports the cache's hit and miss counters.
func WithCacheStats(stats CacheStats) Option {
	return func(s *Server) {
		s.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "muse_cache_hits_total",
				Help: "Total number of cache hits",
			}, func() float64 {
				hits, _ := stats.Stats()
				return float64(hits)
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "muse_cache_misses_total",
				Help: "Total number of cache misses",
			}, func() float64 {
				_, misses := stats.Stats()
				return float64(misses)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "muse_cache_entries",
				Help: "Number of entries in the in-memory cache",
			}, func() float64 {
				return float64(stats.Len())
			}),
		)
	}
}

type Metrics struct {
	ResolutionsTotal *prometheus.CounterVec
	ResolveDuration  *prometheus.HistogramVec
	NotFoundTotal    prometheus.Counter
	RateLimitedTotal prometheus.Counter
}

func newMetrics(registry prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "muse_resolutions_total",
				Help: "Total number of resolve requests by query kind and outcome",
			},
			[]string{"kind", "status"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "muse_resolve_duration_seconds",
				Help:    "Time spent resolving a query",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		NotFoundTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "muse_fanout_not_found_total",
				Help: "Total number of Spotify tracks without a YouTube match",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "muse_rate_limited_total",
				Help: "Total number of resolve requests rejected by the flood limit",
			},
		),
	}

	registry.MustRegister(
		metrics.ResolutionsTotal,
		metrics.ResolveDuration,
		metrics.NotFoundTotal,
		metrics.RateLimitedTotal,
	)
	return metrics
}

// NewServer wires the resolve API and the metrics endpoint on a private
// registry so several servers can coexist in one process.
func NewServer(config *core.ServerConfig, resolver core.SongResolver, logger *zap.Logger, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:   config,
		logger:   logger.Named("http"),
		metrics:  newMetrics(registry),
		registry: registry,
		resolver: resolver,
		parser:   text.NewParser(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "muse"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "muse"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /resolve", s.handleResolve)

	return mux
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	req := core.ResolveRequest{Query: query}
	if raw := r.URL.Query().Get("split"); raw != "" {
		split, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "split must be a boolean"})
			return
		}
		req.SplitChapters = split
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		req.PlaylistLimit = limit
	}

	kind := s.parser.Classify(query).Kind.String()

	if s.limiter != nil && !s.limiter.Allow(requesterKey(r, s.config.TrustProxy)) {
		s.metrics.RateLimitedTotal.Inc()
		s.metrics.ResolutionsTotal.WithLabelValues(kind, "rate_limited").Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}

	start := time.Now()
	result, err := s.resolver.Resolve(r.Context(), req)
	s.metrics.ResolveDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		status, label := statusFor(err)
		s.metrics.ResolutionsTotal.WithLabelValues(kind, label).Inc()
		s.logger.Info("Resolve failed",
			zap.String("kind", kind),
			zap.String("query", query),
			zap.Error(err))
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.metrics.ResolutionsTotal.WithLabelValues(kind, "ok").Inc()
	s.metrics.NotFoundTotal.Add(float64(result.NotFound))
	if result.Tracks == nil {
		result.Tracks = []core.TrackDescriptor{}
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps resolver errors to an HTTP status and a metrics label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrAuth):
		return http.StatusBadGateway, "auth"
	case errors.Is(err, core.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "error"
	}
}

// requesterKey identifies the client by its remote host. Behind a trusted
// proxy the first X-Forwarded-For hop is used instead.
func requesterKey(r *http.Request, trustProxy bool) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); trustProxy && forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
