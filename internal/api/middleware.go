package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ConfabulousDev/confab-insights/internal/logger"
)

// decompressMiddleware handles decompression of request bodies based on Content-Encoding header
// Supports: zstd
// Falls back to uncompressed if no Content-Encoding header
func decompressMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := r.Header.Get("Content-Encoding")
			if encoding == "" || strings.EqualFold(encoding, "identity") {
				next.ServeHTTP(w, r)
				return
			}

			if strings.EqualFold(encoding, "zstd") {
				decoder, err := zstd.NewReader(r.Body)
				if err != nil {
					respondError(w, http.StatusBadRequest, "failed to create zstd decoder", false)
					return
				}
				defer decoder.Close()

				r.Body = io.NopCloser(decoder)
				// Downstream sees the uncompressed body of unknown length
				r.Header.Del("Content-Encoding")
				r.Header.Del("Content-Length")
				r.ContentLength = -1

				next.ServeHTTP(w, r)
				return
			}

			respondError(w, http.StatusUnsupportedMediaType,
				"unsupported Content-Encoding: "+encoding, false)
		})
	}
}

// responseCompressor negotiates brotli, then gzip/deflate.
func responseCompressor() func(http.Handler) http.Handler {
	c := middleware.NewCompressor(5, "application/json", "text/plain", "text/markdown")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c.Handler
}

// crossOriginCheck rejects cross-site browser requests on state-changing
// methods. Non-browser clients send no Sec-Fetch-Site or Origin and pass.
func (s *Server) crossOriginCheck(next http.Handler) http.Handler {
	if s.crossSite == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.crossSite.Check(r); err != nil {
			logger.Ctx(r.Context()).Info("cross-origin request rejected",
				"origin", r.Header.Get("Origin"),
				"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
				"path", r.URL.Path)
			respondError(w, http.StatusForbidden, "cross-origin request rejected", false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog logs one line per request with the request-scoped logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log := logger.Ctx(r.Context())
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		}
		if status >= 500 {
			log.Warn("request completed", args...)
			return
		}
		log.Info("request completed", args...)
	})
}

// spanEnricher adds the request id and, after routing, the route pattern to
// the span started by otelhttp.
func spanEnricher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			span.SetAttributes(attribute.String("request.id", reqID))
		}
		next.ServeHTTP(w, r)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
	})
}
