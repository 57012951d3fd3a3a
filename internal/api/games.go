package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/ashureev/hangman/internal/game"
	"github.com/ashureev/hangman/internal/identity"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Games is the game manager as seen by the HTTP handlers.
type Games interface {
	Start(ctx context.Context, key game.Key, length int) (game.View, error)
	GuessLetter(ctx context.Context, key game.Key, input string) (game.View, error)
	GuessWord(ctx context.Context, key game.Key, input string) (game.View, error)
	Current(key game.Key) (game.View, bool)
	Config() game.Config
}

// GameHandler handles game endpoints.
type GameHandler struct {
	*Handler
	games Games
}

// NewGameHandler creates a new game handler.
func NewGameHandler(base *Handler, games Games) *GameHandler {
	return &GameHandler{Handler: base, games: games}
}

// RegisterRoutes registers game routes.
func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Post("/games", h.NewGame)
		r.Get("/games/current", h.CurrentGame)
		r.Post("/games/current/letter", h.GuessLetter)
		r.Post("/games/current/word", h.GuessWord)
		r.Get("/history", h.History)
		r.Get("/stats", h.Stats)
	})
}

func keyFromRequest(r *http.Request) game.Key {
	return game.Key{
		PlayerID:  identity.PlayerIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}
}

// GetMe returns the current player's information.
func (h *GameHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())
	if playerID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	player, err := h.repo.GetPlayer(r.Context(), playerID)
	if err != nil || player == nil {
		Error(w, http.StatusUnauthorized, "player not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"player_id":  player.PlayerID,
		"username":   player.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
		"created_at": player.CreatedAt,
	})
}

// GetConfig returns the game limits for the frontend.
func (h *GameHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.games.Config()
	JSON(w, http.StatusOK, map[string]interface{}{
		"max_attempts":        cfg.MaxAttempts,
		"min_word_length":     cfg.MinWordLength,
		"max_word_length":     cfg.MaxWordLength,
		"default_word_length": cfg.DefaultWordLength,
		"stages":              domain.StageCount,
	})
}

type newGameRequest struct {
	Length int `json:"length"`
}

// NewGame starts a game for the current tab.
func (h *GameHandler) NewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameRequest
	// An empty body starts a game of the default length.
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		ErrorWithCode(w, http.StatusBadRequest, game.CodeInvalidInput, "invalid request body")
		return
	}

	view, err := h.games.Start(r.Context(), keyFromRequest(r), req.Length)
	if err != nil {
		writeGameError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, view)
}

// CurrentGame returns the current tab's game.
func (h *GameHandler) CurrentGame(w http.ResponseWriter, r *http.Request) {
	view, ok := h.games.Current(keyFromRequest(r))
	if !ok {
		writeGameError(w, r, game.ErrNoGame)
		return
	}
	JSON(w, http.StatusOK, view)
}

type letterRequest struct {
	Letter string `json:"letter"`
}

// GuessLetter applies a letter guess to the current tab's game.
func (h *GameHandler) GuessLetter(w http.ResponseWriter, r *http.Request) {
	var req letterRequest
	if err := decode(w, r, &req); err != nil {
		ErrorWithCode(w, http.StatusBadRequest, game.CodeInvalidInput, "invalid request body")
		return
	}
	view, err := h.games.GuessLetter(r.Context(), keyFromRequest(r), req.Letter)
	h.writeGuess(w, r, view, err)
}

type wordRequest struct {
	Word string `json:"word"`
}

// GuessWord applies a whole-word guess to the current tab's game.
func (h *GameHandler) GuessWord(w http.ResponseWriter, r *http.Request) {
	var req wordRequest
	if err := decode(w, r, &req); err != nil {
		ErrorWithCode(w, http.StatusBadRequest, game.CodeInvalidInput, "invalid request body")
		return
	}
	view, err := h.games.GuessWord(r.Context(), keyFromRequest(r), req.Word)
	h.writeGuess(w, r, view, err)
}

func (h *GameHandler) writeGuess(w http.ResponseWriter, r *http.Request, view game.View, err error) {
	if err != nil && !errors.Is(err, domain.ErrDuplicateGuess) {
		writeGameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// History returns the player's finished games, newest first.
func (h *GameHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ErrorWithCode(w, http.StatusBadRequest, game.CodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	playerID := identity.PlayerIDFromContext(r.Context())
	records, err := h.repo.ListGames(r.Context(), playerID, limit)
	if err != nil {
		slog.Error("Failed to list games", "error", err, "player_id", playerID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []*domain.GameRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"games": records})
}

// Stats returns the player's win/loss summary.
func (h *GameHandler) Stats(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())
	stats, err := h.repo.GetStats(r.Context(), playerID)
	if err != nil {
		slog.Error("Failed to load stats", "error", err, "player_id", playerID)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

func writeGameError(w http.ResponseWriter, r *http.Request, err error) {
	code := game.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case game.CodeInvalidInput, game.CodeInvalidLength:
		status = http.StatusBadRequest
	case game.CodeGameOver:
		status = http.StatusConflict
	case game.CodeNoGame:
		status = http.StatusNotFound
	case game.CodeWordUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("Game request failed", "error", err, "path", r.URL.Path,
			"player_id", identity.PlayerIDFromContext(r.Context()))
	}
	ErrorWithCode(w, status, code, game.ErrorMessage(err))
}
