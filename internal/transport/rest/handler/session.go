package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"

	"partyquiz/internal/model"
	"partyquiz/internal/service"
	"partyquiz/internal/transport/rest/middleware"
)

const qrSize = 320

// Tracker starts server-side progression for a session
type Tracker interface {
	Track(sessionID string)
}

// SessionHandler handles session endpoints
type SessionHandler struct {
	game    *service.GameService
	tracker Tracker
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(game *service.GameService, tracker Tracker) *SessionHandler {
	return &SessionHandler{game: game, tracker: tracker}
}

// CreateSessionResponse is returned when a session is created
type CreateSessionResponse struct {
	SessionID string             `json:"sessionId"`
	Session   *model.GameSession `json:"session"`
	Links     model.Links        `json:"links"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	hostID := middleware.GetHostID(r.Context())
	if hostID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.game.CreateSession(r.Context(), hostID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if h.tracker != nil {
		h.tracker.Track(session.ID)
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Session:   session,
		Links:     h.game.Links(session.ID, ""),
	})
}

// Get handles GET /v1/sessions/{id}?role=display|player|admin&playerId=
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.game.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	role := service.Role(r.URL.Query().Get("role"))
	playerID := r.URL.Query().Get("playerId")
	switch role {
	case service.RoleAdmin:
		if hostID := middleware.GetHostID(r.Context()); hostID == "" || hostID != session.HostID {
			writeError(w, http.StatusForbidden, model.ErrForbidden.Error())
			return
		}
	case service.RolePlayer:
		if session.Player(playerID) == nil {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
	default:
		role = service.RoleDisplay
	}

	writeJSON(w, http.StatusOK, service.BuildView(h.game.Engine(), session, role, playerID, time.Now()))
}

// Links handles GET /v1/sessions/{id}/links
func (h *SessionHandler) Links(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.game.GetSession(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.game.Links(id, r.URL.Query().Get("playerId")))
}

// QR handles GET /v1/sessions/{id}/qr with a PNG of the join link
func (h *SessionHandler) QR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.game.GetSession(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	url := h.game.Links(id, "").Join
	if strings.HasPrefix(url, "/") {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		url = scheme + "://" + r.Host + url
	}

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// Leaderboard handles GET /v1/sessions/{id}/leaderboard
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	topStr := r.URL.Query().Get("top")
	top := 20
	if topStr != "" {
		if n, err := strconv.Atoi(topStr); err == nil && n > 0 {
			top = n
		}
	}

	entries, err := h.game.Leaderboard(r.Context(), id, top)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}
