package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"partyquiz/internal/coordinator"
	"partyquiz/internal/model"
	"partyquiz/internal/service"
	"partyquiz/internal/transport/rest/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub     *Hub
	game    *service.GameService
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, game *service.GameService, authSvc *service.AuthService, logger *slog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		game:    game,
		authSvc: authSvc,
		logger:  logger,
	}
}

// clientMessage is what clients send: answers from players, commands from
// the host.
type clientMessage struct {
	Type        MessageType `json:"type"`
	OptionIndex *int        `json:"optionIndex,omitempty"`
	Seconds     *int        `json:"seconds,omitempty"`
}

// session is the per-connection coordinator plus the way to act on its
// client's messages.
type session struct {
	run    func(ctx context.Context) error
	handle func(ctx context.Context, msg clientMessage)
}

// Session handles GET /v1/ws/sessions/{id}?role=display|player|admin
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()
	role := service.Role(q.Get("role"))
	if role == "" {
		role = service.RoleDisplay
	}

	gs, err := h.game.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	conn := &Connection{
		SessionID: id,
		Role:      role,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}
	render := coordinator.WithRenderer(func(v *service.View) {
		h.hub.Send(conn, MsgSnapshot, v)
	})

	var s session
	switch role {
	case service.RoleDisplay:
		d := coordinator.NewDisplay(h.game, id, h.logger, render)
		s = session{run: d.Run, handle: func(context.Context, clientMessage) {}}

	case service.RolePlayer:
		playerID := q.Get("playerId")
		if gs.Player(playerID) == nil {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		conn.PlayerID = playerID
		p := coordinator.NewPlayer(h.game, id, playerID, h.logger, render)
		s = session{run: p.Run, handle: func(ctx context.Context, msg clientMessage) {
			h.handlePlayer(ctx, conn, p, msg)
		}}

	case service.RoleAdmin:
		claims, err := h.authSvc.ValidateHostToken(middleware.ExtractBearerToken(r))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.HostID != gs.HostID {
			http.Error(w, "not the session host", http.StatusForbidden)
			return
		}
		a := coordinator.NewAdmin(h.game, id, claims.HostID, h.logger, render)
		s = session{run: a.Run, handle: func(ctx context.Context, msg clientMessage) {
			h.handleAdmin(ctx, conn, a, msg)
		}}

	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if !h.hub.Register(conn) {
		wsConn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := s.run(ctx); err != nil {
			h.logger.Warn("coordinator stopped", "session", id, "role", role, "error", err)
		}
	}()

	go h.writePump(wsConn, conn)
	go h.readPump(ctx, cancel, wsConn, conn, s.handle)
}

func (h *Handler) handlePlayer(ctx context.Context, conn *Connection, p *coordinator.Player, msg clientMessage) {
	if msg.Type != MsgAnswer || msg.OptionIndex == nil {
		h.hub.Send(conn, MsgError, map[string]string{"error": "expected an answer with optionIndex"})
		return
	}

	me, err := p.Answer(ctx, *msg.OptionIndex)
	if err != nil {
		h.hub.Send(conn, MsgError, map[string]string{"error": err.Error()})
		return
	}
	h.hub.Send(conn, MsgAnswerResult, me)
}

func (h *Handler) handleAdmin(ctx context.Context, conn *Connection, a *coordinator.Admin, msg clientMessage) {
	var err error
	switch msg.Type {
	case MsgStart:
		_, err = a.Start(ctx)
	case MsgPause:
		_, err = a.Pause(ctx)
	case MsgResume:
		_, err = a.Resume(ctx)
	case MsgTogglePause:
		_, err = a.TogglePause(ctx)
	case MsgNext:
		_, err = a.ForceNext(ctx)
	case MsgEnd:
		_, err = a.EndGame(ctx)
	case MsgSetTimer:
		if msg.Seconds == nil {
			h.hub.Send(conn, MsgError, map[string]string{"error": "set_timer needs seconds"})
			return
		}
		_, err = a.SetTimer(ctx, *msg.Seconds)
	default:
		h.hub.Send(conn, MsgError, map[string]string{"error": "unknown command " + string(msg.Type)})
		return
	}

	if err != nil {
		h.hub.Send(conn, MsgError, map[string]string{"error": err.Error()})
		return
	}
	h.hub.Send(conn, MsgCommandResult, map[string]string{"command": string(msg.Type)})
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, wsConn *websocket.Conn, conn *Connection, handle func(context.Context, clientMessage)) {
	defer func() {
		cancel()
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", "session", conn.SessionID, "error", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.Send(conn, MsgError, map[string]string{"error": "invalid message"})
			continue
		}
		handle(ctx, msg)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
