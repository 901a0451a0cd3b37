// Package server expone el Service por HTTP con chi.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/surebet/internal/application/settlement"
	"github.com/alejandrodnm/surebet/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config contiene la configuración del servidor HTTP.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Server monta el router y gestiona el ciclo de vida del http.Server.
type Server struct {
	cfg     Config
	svc     *settlement.Service
	metrics *metrics.Metrics
	router  chi.Router
}

func New(cfg Config, svc *settlement.Service, m *metrics.Metrics) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, svc: svc, metrics: m}
	s.router = s.routes()
	return s
}

// Handler devuelve el router (tests con httptest).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	h := &handlers{svc: s.svc, timeout: s.cfg.RequestTimeout, maxBody: s.cfg.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(slog.Default(), s.metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sets", h.createSet)
		r.Get("/sets", h.listSets)
		r.Route("/sets/{setID}", func(r chi.Router) {
			r.Get("/", h.getSet)
			r.Delete("/", h.deleteSet)
			r.Post("/reset", h.resetSet)
			r.Patch("/legs/{legID}", h.updateLeg)
			r.Put("/legs/{legID}/outcome", h.applyOutcome)
		})

		r.Get("/dashboard", h.dashboard)
		r.Post("/preview", h.preview)
		r.Post("/extract", h.extract)
	})
	return r
}

// Run sirve hasta que ctx se cancele y luego apaga con un margen de 10s.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.RequestTimeout + 5*time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server.Run: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Run: shutdown: %w", err)
	}
	return nil
}
