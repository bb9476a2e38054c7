package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/stockbot/app"
	"github.com/upb/stockbot/middleware"
	"github.com/upb/stockbot/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config.Server
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLog(deps.Logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           int((5 * time.Minute).Seconds()),
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.RequireAllowed)

		r.Post("/messages", deps.AssistantHandler.HandleMessage)
		r.Post("/questions", deps.AssistantHandler.HandleAsk)
		r.Post("/confirmations", deps.AssistantHandler.HandleConfirm)
		r.Get("/usage", deps.AssistantHandler.HandleUsage)
		r.Get("/tickers/resolve", deps.AssistantHandler.HandleResolve)
		r.Get("/aliases", deps.AssistantHandler.HandleListAliases)
		r.Get("/history", deps.AssistantHandler.HandleHistory)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAdmin)
			r.Post("/aliases", deps.AdminHandler.HandleAddAlias)
			r.Delete("/aliases/{name}", deps.AdminHandler.HandleRemoveAlias)
			r.Get("/users", deps.AdminHandler.HandleListUsers)
			r.Post("/users/{id}", deps.AdminHandler.HandleGrantUser)
			r.Delete("/users/{id}", deps.AdminHandler.HandleRevokeUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
