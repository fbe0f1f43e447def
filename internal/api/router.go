package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/api/alerts"
	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/middleware"
	"github.com/good-yellow-bee/blazewatch/internal/api/monitors"
	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret)
	limiter := middleware.NewRateLimiter(s.config.RateLimitPerMinute, s.config.RateLimitBurst)
	s.limiter = limiter

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtService))
		r.Use(middleware.RateLimitByClient(limiter))

		monitorHandler := monitors.NewHandler(s.storage.Monitors(), s.runner, s.config.Limits, s.config.ExecuteTimeout)
		r.Route("/monitors", func(r chi.Router) {
			r.Get("/", monitorHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWrite)
				r.Post("/", monitorHandler.Create)
				r.Post("/_execute", monitorHandler.ExecuteUnsaved)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", monitorHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireWrite)
					r.Put("/", monitorHandler.Update)
					r.Delete("/", monitorHandler.Delete)
					r.Post("/_execute", monitorHandler.Execute)
					r.Post("/_acknowledge/alerts", monitorHandler.Acknowledge)
				})
			})
		})

		alertHandler := alerts.NewHandler(s.storage.Alerts(), s.history)
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/history", alertHandler.History)
			r.Get("/{id}", alertHandler.Get)
		})
	})

	// Health checks and version (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		OK(w, config.GetBuildInfo())
	})

	return r
}
