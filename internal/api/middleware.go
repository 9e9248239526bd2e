package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	requestIDHeader = "X-Request-ID"

	// Registration bodies are a single name.
	maxRequestBodySize = 64 << 10

	corsMaxAgeSeconds = 86400
)

// echoRequestID returns the ID assigned by middleware.RequestID to the
// client. A client-supplied X-Request-ID is kept as is.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs method, route, status and duration. Toggle paths
// are logged by pattern so access keys stay out of the log.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func redactPath(p string) string {
	if strings.HasPrefix(p, "/toggle/") {
		return "/toggle/{key}"
	}
	return p
}

// recoveryMiddleware turns a handler panic into a logged 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // net/http sentinel
				panic(rec)
			}
			s.logger.Error("panic recovered in HTTP handler",
				"error", rec,
				"method", r.Method,
				"path", redactPath(r.URL.Path),
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware applies the configured CORS policy. No allowed origins
// means every origin is accepted.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	c := s.cfg.CORS
	return cors.Handler(cors.Options{
		AllowedOrigins: c.AllowedOrigins,
		AllowedMethods: orDefault(c.AllowedMethods, http.MethodGet, http.MethodPost, http.MethodOptions),
		AllowedHeaders: orDefault(c.AllowedHeaders, "Content-Type", requestIDHeader),
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         corsMaxAgeSeconds,
	})
}

func orDefault(values []string, fallback ...string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}
