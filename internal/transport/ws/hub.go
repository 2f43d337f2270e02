package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"partyquiz/internal/metrics"
	"partyquiz/internal/service"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server message types
const (
	MsgSnapshot       MessageType = "snapshot"
	MsgPlayerJoined   MessageType = "player_joined"
	MsgPlayerLeft     MessageType = "player_left"
	MsgAnswerRecorded MessageType = "answer_recorded"
	MsgAnswerResult   MessageType = "answer_result"
	MsgCommandResult  MessageType = "command_result"
	MsgError          MessageType = "error"
)

// Client message types
const (
	MsgAnswer      MessageType = "answer"
	MsgStart       MessageType = "start"
	MsgPause       MessageType = "pause"
	MsgResume      MessageType = "resume"
	MsgTogglePause MessageType = "toggle_pause"
	MsgNext        MessageType = "next"
	MsgSetTimer    MessageType = "set_timer"
	MsgEnd         MessageType = "end"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Tracker starts server-side progression for a session
type Tracker interface {
	Track(sessionID string)
}

// Hub manages WebSocket connections for sessions
type Hub struct {
	// session -> connections
	conns   map[string]map[*Connection]struct{}
	tracker Tracker
	logger  *slog.Logger

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
}

// Connection represents a WebSocket connection
type Connection struct {
	SessionID string
	PlayerID  string // set for player connections
	Role      service.Role
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message to broadcast. Conn targets one connection;
// otherwise ToPlayer targets one player and Role (when set) one role.
type BroadcastMessage struct {
	SessionID string
	Role      service.Role
	ToPlayer  string
	Conn      *Connection
	Message   *Message
}

// NewHub creates a new WebSocket hub. tracker may be nil.
func NewHub(tracker Tracker, logger *slog.Logger) *Hub {
	return &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		tracker:    tracker,
		logger:     logger,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.conns {
				for conn := range conns {
					h.drop(conn)
				}
			}
			return nil

		case conn := <-h.register:
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[*Connection]struct{})
			}
			h.conns[conn.SessionID][conn] = struct{}{}
			metrics.WSConnections.WithLabelValues(string(conn.Role)).Inc()
			h.logger.Info("client connected", "session", conn.SessionID, "role", conn.Role, "player", conn.PlayerID)

			if h.tracker != nil {
				h.tracker.Track(conn.SessionID)
			}

		case conn := <-h.unregister:
			if _, ok := h.conns[conn.SessionID][conn]; !ok {
				continue
			}
			h.drop(conn)
			h.logger.Info("client disconnected", "session", conn.SessionID, "role", conn.Role, "player", conn.PlayerID)

			if conn.Role == service.RolePlayer {
				h.deliver(&BroadcastMessage{
					SessionID: conn.SessionID,
					Role:      service.RoleAdmin,
					Message:   newMessage(MsgPlayerLeft, map[string]string{"playerId": conn.PlayerID}),
				})
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) drop(conn *Connection) {
	delete(h.conns[conn.SessionID], conn)
	if len(h.conns[conn.SessionID]) == 0 {
		delete(h.conns, conn.SessionID)
	}
	close(conn.Send)
	metrics.WSConnections.WithLabelValues(string(conn.Role)).Dec()
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	data, err := json.Marshal(msg.Message)
	if err != nil {
		h.logger.Error("failed to encode ws message", "type", msg.Message.Type, "error", err)
		return
	}

	send := func(conn *Connection) {
		select {
		case conn.Send <- data:
		default:
			// Drop message if buffer full
		}
	}

	if msg.Conn != nil {
		if _, ok := h.conns[msg.Conn.SessionID][msg.Conn]; ok {
			send(msg.Conn)
		}
		return
	}
	for conn := range h.conns[msg.SessionID] {
		switch {
		case msg.ToPlayer != "":
			if conn.Role == service.RolePlayer && conn.PlayerID == msg.ToPlayer {
				send(conn)
			}
		case msg.Role == "" || conn.Role == msg.Role:
			send(conn)
		}
	}
}

// Register adds a connection. It reports false once the hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Send queues a message for one connection
func (h *Hub) Send(conn *Connection, msgType MessageType, payload interface{}) {
	h.enqueue(&BroadcastMessage{SessionID: conn.SessionID, Conn: conn, Message: newMessage(msgType, payload)})
}

// BroadcastToRole sends a message to every connection of one role (implements service.Broadcaster)
func (h *Hub) BroadcastToRole(sessionID string, role service.Role, msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{SessionID: sessionID, Role: role, Message: newMessage(MessageType(msgType), payload)})
}

// BroadcastToPlayer sends a message to a specific player (implements service.Broadcaster)
func (h *Hub) BroadcastToPlayer(sessionID, playerID string, msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{SessionID: sessionID, ToPlayer: playerID, Message: newMessage(MessageType(msgType), payload)})
}

func newMessage(msgType MessageType, payload interface{}) *Message {
	data, _ := json.Marshal(payload)
	return &Message{Type: msgType, Payload: data}
}
