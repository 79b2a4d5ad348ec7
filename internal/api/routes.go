package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router
func NewRouter(handlers *Handlers, authMiddleware *AuthMiddleware, loggingMiddleware *LoggingMiddleware) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - ORDER MATTERS!
	r.Use(middleware.RequestID)      // Generate request ID first
	r.Use(middleware.RealIP)         // Extract real IP
	r.Use(loggingMiddleware.Handler) // Add logger to context with request ID
	r.Use(middleware.Recoverer)      // Panic recovery
	// Pipeline invocations block for the full build/run duration, so the
	// request timeout has to cover the run timeout plus the build.
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"}, // Expose request ID
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", handlers.Health)

	// API v1 routes (with authentication)
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Pipeline invocations
		r.Post("/pipeline/build", handlers.TriggerBuild)
		r.Post("/pipeline/run", handlers.TriggerRun)
		r.Post("/pipeline/validate", handlers.TriggerValidate)
		r.Post("/pipeline/test/{scenario}", handlers.TriggerScenario)

		// Reports and discovery
		r.Get("/reports/latest", handlers.LatestReport)
		r.Get("/scenarios", handlers.ListScenarios)
	})

	return r
}
