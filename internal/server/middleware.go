package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/surebet/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logging registra cada request con slog y alimenta las métricas HTTP con el
// patrón de ruta de chi (no el path, para acotar la cardinalidad).
func Logging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			if m != nil {
				m.RecordHTTP(route, r.Method, rw.statusCode, elapsed)
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case route == "/health" || route == "/metrics":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", elapsed),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the HTTP status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap permite a http.ResponseController llegar al writer original.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
