// Package api provides the HTTP surface of the risk engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/shrike/internal/domain"
)

// Server owns the chi router and the http.Server lifecycle.
type Server struct {
	router  *chi.Mux
	handler *Handler
	httpSrv *http.Server
	cfg     domain.ServerConfig
}

// NewServer wires the middleware stack and routes. Health probes sit
// outside the tenant scope; everything else requires X-Tenant-ID.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	r := chi.NewRouter()

	r.Use(CORSMiddleware)
	r.Use(RecoverMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready)

	r.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/assess", handler.Assess)
		r.Get("/assessments/{id}", handler.GetAssessment)

		r.Get("/customers/{id}/risk-profile", handler.CustomerRiskProfile)

		r.Get("/analytics/summary", handler.AnalyticsSummary)

		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		r.Get("/models", handler.GetModels)
		r.Post("/models/train", handler.TrainModels)
		r.Post("/models/reload", handler.ReloadModels)
	})

	return &Server{
		router:  r,
		handler: handler,
		cfg:     cfg,
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the mux so tests can drive it directly.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler exposes the handler set.
func (s *Server) Handler() *Handler {
	return s.handler
}
