// Package api serves the upload and analysis endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/metrics"
	"github.com/ConfabulousDev/confab-insights/internal/ratelimit"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
)

// DefaultMaxUploadSize bounds request bodies after decompression.
const DefaultMaxUploadSize = 100 << 20

// Insights is the service the handlers drive.
type Insights interface {
	Upload(ctx context.Context, req insights.UploadRequest) (*insights.UploadResult, error)
	Analyze(ctx context.Context, req insights.AnalyzeRequest) (*insights.Insight, error)
	Export(ctx context.Context, key string) ([]byte, error)
	ListExports(ctx context.Context) ([]storage.ObjectInfo, error)
}

// Config holds HTTP-layer settings.
type Config struct {
	Version        string
	AllowedOrigins []string // "*" allows any origin and disables the cross-origin check
	MaxUploadSize  int64    // Bytes, after decompression; <= 0 uses DefaultMaxUploadSize
	KeyPrefix      string   // Storage prefix of uploads; "" uses insights.DefaultKeyPrefix

	// AnalyzeLimiter throttles the insights endpoint per client. Nil disables it.
	AnalyzeLimiter ratelimit.RateLimiter

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Server holds dependencies for API handlers
type Server struct {
	svc       Insights
	cfg       Config
	crossSite *csrf.Protection
}

// NewServer creates a new API server
func NewServer(svc Insights, cfg Config) (*Server, error) {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = insights.DefaultKeyPrefix
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{svc: svc, cfg: cfg}
	if !slices.Contains(cfg.AllowedOrigins, "*") {
		s.crossSite = csrf.New()
		for _, origin := range cfg.AllowedOrigins {
			if err := s.crossSite.AddTrustedOrigin(origin); err != nil {
				return nil, fmt.Errorf("invalid allowed origin %q: %w", origin, err)
			}
		}
	}
	return s, nil
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.cfg.Metrics.Middleware)
	r.Use(spanEnricher)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Encoding", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", headerKey, headerTruncated, headerConversation},
		MaxAge:         300,
	}))
	r.Use(responseCompressor())

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.crossOriginCheck)
		r.Use(decompressMiddleware())

		r.Post("/upload", s.handleUpload)

		r.Group(func(r chi.Router) {
			if s.cfg.AnalyzeLimiter != nil {
				r.Use(ratelimit.Middleware(s.cfg.AnalyzeLimiter, rejectRateLimited))
			}
			r.Get("/insights", s.handleInsights)
			r.Post("/insights", s.handleInsights)
		})

		r.Get("/exports", s.handleListExports)
		r.Get("/exports/*", s.handleGetExport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found", false)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", false)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleRoot returns API info
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "confab-insights",
		"version": s.cfg.Version,
		"endpoints": []string{
			"POST /api/v1/upload",
			"GET|POST /api/v1/insights",
			"GET /api/v1/exports",
			"GET /api/v1/exports/{key}",
		},
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}
