package rest

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"partyquiz/internal/service"
	"partyquiz/internal/transport/rest/handler"
	"partyquiz/internal/transport/rest/middleware"
	"partyquiz/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	GameService    *service.GameService
	Tracker        handler.Tracker
	WSHub          *ws.Hub
	HealthChecks   map[string]handler.Checker
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.GameService, c.Tracker)
	playerHandler := handler.NewPlayerHandler(c.GameService, c.Logger)
	adminHandler := handler.NewAdminHandler(c.GameService, c.Logger)
	healthHandler := handler.NewHealthHandler(c.Logger, c.HealthChecks)
	wsHandler := ws.NewHandler(c.WSHub, c.GameService, c.AuthService, c.Logger)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(c.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(c.AllowedOrigins))

	// Health check and metrics
	r.Handle("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/anonymous", authHandler.SignIn).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/links", sessionHandler.Links).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/qr", sessionHandler.QR).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/leaderboard", sessionHandler.Leaderboard).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/join", playerHandler.Join).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/players/{playerId}", playerHandler.Standing).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/players/{playerId}/ready", playerHandler.Ready).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/players/{playerId}/answers", playerHandler.Answer).Methods("POST", "OPTIONS")

	// Session snapshot (admin view needs a host token)
	v1.Handle("/sessions/{id}", authMW.IdentifyHost(http.HandlerFunc(sessionHandler.Get))).Methods("GET", "OPTIONS")

	// WebSocket route (host token in query param for the admin role)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.Session).Methods("GET")

	// Host routes (require host auth)
	hostRoutes := v1.NewRoute().Subrouter()
	hostRoutes.Use(authMW.RequireHost)

	hostRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/start", adminHandler.Start()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/pause", adminHandler.Pause()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/resume", adminHandler.Resume()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/toggle-pause", adminHandler.TogglePause()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/next", adminHandler.Next()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/end", adminHandler.End()).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/timer", adminHandler.Timer).Methods("POST", "OPTIONS")

	return r
}
