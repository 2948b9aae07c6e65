package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ConfabulousDev/confab-insights/internal/anthropic"
	"github.com/ConfabulousDev/confab-insights/internal/api"
	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/llm"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/metrics"
	"github.com/ConfabulousDev/confab-insights/internal/openai"
	"github.com/ConfabulousDev/confab-insights/internal/ratelimit"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
)

var version string

func main() {
	// A missing .env is fine; the environment wins over the file.
	_ = godotenv.Load(".env")

	if os.Getenv("ENABLE_PPROF") == "true" {
		go startPprofServer()
	}

	// Configured via OTEL_SERVICE_NAME, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_HEADERS
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry", "error", err)
		// Non-fatal: continue without tracing if OTEL env vars not set
	} else {
		defer otelShutdown()
	}

	config, err := loadConfig(os.Getenv)
	if err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			logger.Fatal("invalid configuration", cfgErr.attrs()...)
		}
		logger.Fatal("invalid configuration", "error", err)
	}

	store, closeStore, err := openStorage(config)
	if err != nil {
		logger.Fatal("failed to initialize storage", "backend", config.StorageBackend, "error", err)
	}
	defer closeStore.Close()

	requester := newRequester(config.LLM)
	logger.Info("llm configured",
		"provider", config.LLM.Provider,
		"model", config.LLM.Model,
		"max_payload_chars", humanize.Comma(int64(config.Insights.MaxPayloadChars)))

	svc := insights.NewService(store, requester, config.Insights)

	var limiter *ratelimit.InMemoryRateLimiter
	apiConfig := api.Config{
		Version:        version,
		AllowedOrigins: config.AllowedOrigins,
		MaxUploadSize:  config.MaxUploadSize,
		KeyPrefix:      svc.Config().KeyPrefix,
		Metrics:        metrics.New(),
	}
	if config.RateLimitRPS > 0 {
		limiter = ratelimit.NewInMemoryRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
		defer limiter.Stop()
		apiConfig.AnalyzeLimiter = limiter
	}

	server, err := api.NewServer(svc, apiConfig)
	if err != nil {
		logger.Fatal("failed to create API server", "error", err)
	}
	router := server.SetupRoutes()

	handler := otelhttp.NewHandler(router, "confab-insights")

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,  // HTTP_READ_TIMEOUT (default: 30s)
		WriteTimeout: config.WriteTimeout, // HTTP_WRITE_TIMEOUT (default: 150s)
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			"port", config.Port,
			"version", version,
			"storage", config.StorageBackend,
			"max_upload_size", humanize.IBytes(uint64(config.MaxUploadSize)))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStorage returns the configured blob store and what to close on exit.
func openStorage(config Config) (insights.BlobStore, io.Closer, error) {
	switch config.StorageBackend {
	case backendBolt:
		store, err := storage.NewBoltStorage(config.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using bolt storage", "path", config.BoltPath)
		return store, store, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), config.Insights.StorageTimeout)
		defer cancel()
		store, err := storage.NewS3Storage(ctx, config.S3Config)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using s3 storage", "endpoint", config.S3Config.Endpoint, "bucket", config.S3Config.BucketName)
		return store, nopCloser{}, nil
	}
}

// newRequester builds the configured model client. Outbound calls are traced.
func newRequester(config LLMConfig) llm.Requester {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	if config.Provider == providerOpenAI {
		return openai.NewClient(config.APIKey, config.BaseURL, config.Model, config.MaxOutputTokens, config.Timeout,
			openai.WithTransport(transport))
	}
	client := anthropic.NewClient(config.APIKey,
		anthropic.WithBaseURL(config.BaseURL),
		anthropic.WithHTTPClient(&http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		}),
	)
	return anthropic.NewRequester(client, config.Model, config.MaxOutputTokens)
}

// startPprofServer starts a pprof debug server on localhost:6060.
// This server is only accessible locally (127.0.0.1).
//
// Available endpoints:
//   - /debug/pprof/heap      - heap memory profile
//   - /debug/pprof/goroutine - goroutine stack traces
//   - /debug/pprof/profile   - CPU profile (30s default)
//   - /debug/pprof/trace     - execution trace
func startPprofServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))

	addr := "127.0.0.1:6060"
	logger.Info("pprof debug server starting", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("pprof server failed", "error", err)
	}
}
