package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/nip-auth/internal/api/handlers"
	"github.com/isdelr/nip-auth/internal/api/response"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/services"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(authService services.AuthServiceProvider, tokens auth.TokenResolver, eventService services.EventServiceProvider, db handlers.Pinger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger())
	r.Use(recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Failure(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Failure(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	eventHandler := handlers.NewEventHandler(eventService)
	healthHandler := handlers.NewHealthHandler(db)

	r.Get("/healthz", healthHandler.Check)

	authRoutes := func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.BearerMiddleware(tokens))
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
			r.Get("/events", eventHandler.GetMine)
		})
	}

	r.Route("/auth", authRoutes)
	// same routes under the /api prefix used by API clients
	r.Route("/api/auth", authRoutes)

	return r
}
