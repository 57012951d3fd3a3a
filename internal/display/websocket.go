package display

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/ashureev/hangman/internal/game"
	"github.com/ashureev/hangman/internal/identity"
	"github.com/coder/websocket"
)

const maxMessageBytes = 4096

// Games is the game manager as seen by the socket handler.
type Games interface {
	Start(ctx context.Context, key game.Key, length int) (game.View, error)
	GuessLetter(ctx context.Context, key game.Key, input string) (game.View, error)
	GuessWord(ctx context.Context, key game.Key, input string) (game.View, error)
	Current(key game.Key) (game.View, bool)
}

// LastSeenUpdater records player activity.
type LastSeenUpdater interface {
	UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error
}

// WebSocketHandler serves the interactive game socket.
type WebSocketHandler struct {
	games          Games
	hub            *Hub
	players        LastSeenUpdater
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler. players may be nil.
func NewWebSocketHandler(games Games, hub *Hub, players LastSeenUpdater, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		games:          games,
		hub:            hub,
		players:        players,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// wsMessage is a client request.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Length  int    `json:"length,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := game.Key{
		PlayerID:  identity.PlayerIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}
	slog.Info("WebSocket connection request", "player_id", key.PlayerID, "session_id", key.SessionID, "ip", identity.IPFromRequest(r))

	if key.PlayerID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "player_id", key.PlayerID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "player_id", key.PlayerID)
		}
	}()
	ws.SetReadLimit(maxMessageBytes)

	h.hub.Register(key, ws)
	defer h.hub.Unregister(key, ws)

	if view, ok := h.games.Current(key); ok {
		if err := writeJSON(ws, StateMessage{Type: "state", Game: &view}); err != nil {
			slog.Debug("Failed to send initial state", "error", err)
			return
		}
	}

	h.readLoop(r.Context(), ws, key)
	slog.Info("Game socket ended", "player_id", key.PlayerID, "session_id", key.SessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, key game.Key) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "player_id", key.PlayerID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "player_id", key.PlayerID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ws, game.CodeInvalidInput, "malformed message")
			continue
		}

		switch msg.Type {
		case "new_game":
			_, err = h.games.Start(ctx, key, msg.Length)
		case "guess_letter":
			_, err = h.games.GuessLetter(ctx, key, msg.Content)
		case "guess_word":
			_, err = h.games.GuessWord(ctx, key, msg.Content)
		case "ping":
			if err := writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
			continue
		default:
			h.sendError(ws, "unknown_type", "unknown message type "+msg.Type)
			continue
		}

		// Duplicates are rendered with a warning; there is nothing else to report.
		if err != nil && !errors.Is(err, domain.ErrDuplicateGuess) {
			h.sendError(ws, game.ErrorCode(err), game.ErrorMessage(err))
		}

		h.touch(key.PlayerID)
	}
}

func (h *WebSocketHandler) sendError(ws Conn, code, message string) {
	if err := writeJSON(ws, ErrorMessage{Type: "error", Error: message, Code: code}); err != nil {
		slog.Debug("Failed to send error", "error", err, "code", code)
	}
}

// touch updates last seen asynchronously with a timeout.
func (h *WebSocketHandler) touch(playerID string) {
	if h.players == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.players.UpdateLastSeen(ctx, playerID, time.Now()); err != nil {
			slog.Warn("Failed to update last seen", "error", err, "player_id", playerID)
		}
	}()
}
