package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"copenhagenbuzz/internal/delivery/http/controllers"
	"copenhagenbuzz/internal/delivery/http/middleware"
	"copenhagenbuzz/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(authController *controllers.AuthController, eventController *controllers.EventController, verifier domain.TokenVerifier, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth(verifier, logger)
	optionalAuth := middleware.OptionalAuth(verifier, logger)

	// Auth
	mux.HandleFunc("POST /auth/signup", authController.SignUp)
	mux.HandleFunc("POST /auth/login", authController.Login)

	// Events
	mux.HandleFunc("GET /events", optionalAuth(eventController.ListEvents))
	mux.HandleFunc("GET /events/closest", optionalAuth(eventController.ClosestEvent))
	mux.HandleFunc("GET /events/stream", optionalAuth(eventController.StreamEvents))
	mux.HandleFunc("GET /events/{eventID}", optionalAuth(eventController.GetEvent))
	mux.HandleFunc("POST /events", optionalAuth(eventController.CreateEvent))
	mux.HandleFunc("PUT /events/{eventID}", requireAuth(eventController.UpdateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", requireAuth(eventController.DeleteEvent))

	// Favorites
	mux.HandleFunc("POST /events/{eventID}/favorite", requireAuth(eventController.ToggleFavorite))
	mux.HandleFunc("GET /favorites", requireAuth(eventController.ListFavorites))

	mux.HandleFunc("GET /errors/latest", eventController.LatestError)

	// Maintenance
	mux.HandleFunc("POST /maintenance/seed", requireAuth(eventController.SeedSampleEvents))
	mux.HandleFunc("POST /maintenance/dedupe", requireAuth(eventController.RemoveDuplicates))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
