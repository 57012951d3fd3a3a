// Package display pushes game state to connected browsers over WebSockets.
package display

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/hangman/internal/game"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Conn is the part of a WebSocket connection the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// StateMessage carries a rendered session to the browser.
type StateMessage struct {
	Type string     `json:"type"`
	Game *game.View `json:"game,omitempty"`
}

// ErrorMessage reports a rejected interaction to the browser.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Hub tracks the active connection of every player tab. It implements game.Sink.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]Conn),
	}
}

// Active returns the connection registered for key, or nil.
func (h *Hub) Active(key game.Key) Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[key.PlayerID]; ok {
		return sessions[key.SessionID]
	}
	return nil
}

// Register adds conn for key, closing any connection it replaces.
func (h *Hub) Register(key game.Key, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[key.PlayerID]; !exists {
		h.active[key.PlayerID] = make(map[string]Conn)
	}

	if existing, exists := h.active[key.PlayerID][key.SessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	h.active[key.PlayerID][key.SessionID] = conn
	slog.Info("Game socket registered", "player_id", key.PlayerID, "session_id", key.SessionID)
}

// Unregister removes conn for key if it is still the active one.
func (h *Hub) Unregister(key game.Key, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[key.PlayerID]; ok {
		if current, exists := sessions[key.SessionID]; exists && current == conn {
			delete(sessions, key.SessionID)
			if len(sessions) == 0 {
				delete(h.active, key.PlayerID)
			}
			slog.Info("Game socket unregistered", "player_id", key.PlayerID, "session_id", key.SessionID)
		}
	}
}

// ClosePlayer closes every connection of a player.
func (h *Hub) ClosePlayer(playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid, conn := range h.active[playerID] {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Game socket closed", "player_id", playerID, "session_id", sid)
	}
	delete(h.active, playerID)
}

// CloseAll closes every connection, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for playerID, sessions := range h.active {
		for _, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.active, playerID)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.active {
		n += len(sessions)
	}
	return n
}

// Render sends view to the connection of key. Tabs without a connection
// are skipped; they fetch state over HTTP instead.
func (h *Hub) Render(key game.Key, view game.View) {
	conn := h.Active(key)
	if conn == nil {
		return
	}
	if err := writeJSON(conn, StateMessage{Type: "state", Game: &view}); err != nil {
		slog.Debug("Failed to push game state", "error", err, "player_id", key.PlayerID, "session_id", key.SessionID)
	}
}

func writeJSON(conn Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
