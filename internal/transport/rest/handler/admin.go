package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"partyquiz/internal/coordinator"
	"partyquiz/internal/model"
	"partyquiz/internal/service"
	"partyquiz/internal/transport/rest/middleware"
)

// AdminHandler handles the host's game controls
type AdminHandler struct {
	game   *service.GameService
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(game *service.GameService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{game: game, logger: logger}
}

type command func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error)

func (h *AdminHandler) run(cmd command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostID := middleware.GetHostID(r.Context())
		if hostID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		admin := coordinator.NewAdmin(h.game, mux.Vars(r)["id"], hostID, h.logger)
		session, err := cmd(r.Context(), admin)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, service.BuildView(h.game.Engine(), session, service.RoleAdmin, "", time.Now()))
	}
}

// Start handles POST /v1/sessions/{id}/start
func (h *AdminHandler) Start() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.Start(ctx)
	})
}

// Pause handles POST /v1/sessions/{id}/pause
func (h *AdminHandler) Pause() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.Pause(ctx)
	})
}

// Resume handles POST /v1/sessions/{id}/resume
func (h *AdminHandler) Resume() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.Resume(ctx)
	})
}

// TogglePause handles POST /v1/sessions/{id}/toggle-pause
func (h *AdminHandler) TogglePause() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.TogglePause(ctx)
	})
}

// Next handles POST /v1/sessions/{id}/next
func (h *AdminHandler) Next() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.ForceNext(ctx)
	})
}

// End handles POST /v1/sessions/{id}/end
func (h *AdminHandler) End() http.HandlerFunc {
	return h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.EndGame(ctx)
	})
}

// TimerRequest is the request body for overriding the countdown
type TimerRequest struct {
	Seconds *int `json:"seconds"`
}

// Timer handles POST /v1/sessions/{id}/timer
func (h *AdminHandler) Timer(w http.ResponseWriter, r *http.Request) {
	var req TimerRequest
	if err := decodeBody(r, &req); err != nil || req.Seconds == nil {
		writeError(w, http.StatusBadRequest, "seconds is required")
		return
	}

	h.run(func(ctx context.Context, a *coordinator.Admin) (*model.GameSession, error) {
		return a.SetTimer(ctx, *req.Seconds)
	})(w, r)
}
