package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"partyquiz/internal/coordinator"
	"partyquiz/internal/service"
)

// PlayerHandler handles player endpoints
type PlayerHandler struct {
	game   *service.GameService
	logger *slog.Logger
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(game *service.GameService, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{game: game, logger: logger}
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	Name string `json:"name"`
}

// Join handles POST /v1/sessions/{id}/join
func (h *PlayerHandler) Join(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req JoinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.game.Join(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ReadyRequest is the request body for the lobby ready flag
type ReadyRequest struct {
	Ready bool `json:"ready"`
}

// Ready handles POST /v1/sessions/{id}/players/{playerId}/ready
func (h *PlayerHandler) Ready(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req ReadyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := h.game.SetReady(r.Context(), vars["id"], vars["playerId"], req.Ready)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, player)
}

// AnswerRequest is the request body for submitting an answer
type AnswerRequest struct {
	OptionIndex *int `json:"optionIndex"`
}

// Answer handles POST /v1/sessions/{id}/players/{playerId}/answers
func (h *PlayerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req AnswerRequest
	if err := decodeBody(r, &req); err != nil || req.OptionIndex == nil {
		writeError(w, http.StatusBadRequest, "optionIndex is required")
		return
	}

	player := coordinator.NewPlayer(h.game, vars["id"], vars["playerId"], h.logger)
	me, err := player.Answer(r.Context(), *req.OptionIndex)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, me)
}

// Standing handles GET /v1/sessions/{id}/players/{playerId}
func (h *PlayerHandler) Standing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	standing, err := h.game.PlayerStanding(r.Context(), vars["id"], vars["playerId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, standing)
}
