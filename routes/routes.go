package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/identity-gateway/app"
	"github.com/upb/identity-gateway/handlers"
	"github.com/upb/identity-gateway/utils"
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(deps.Metrics.HTTPMiddleware)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.Users, deps.Accounts, deps.Logger)
	tenantHandler := handlers.NewTenantHandler(deps.Logger)

	// Health check endpoints
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public, optionally authenticated
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.OptionalAuth)
			r.Get("/status", handlers.StatusHandler(deps.Config.Environment))
		})

		// Authenticated self-service
		r.Route("/users", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", userHandler.HandleMe)
			r.Delete("/me", userHandler.HandleDeleteAccount)
		})

		// Administration (require admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAdmin)
			r.Get("/users", userHandler.HandleList)
		})

		// Machine-to-machine surface (require tenant API key)
		r.Route("/tenant", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAPIKey)
			r.Get("/context", tenantHandler.HandleContext)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteErrorCode(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
	})

	return r
}
