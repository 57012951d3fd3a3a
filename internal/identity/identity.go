// Package identity provides anonymous per-device player identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/hangman/internal/domain"
)

const (
	PlayerCookieName      = "hangman_player_id"
	SessionHeaderName     = "X-Hangman-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"

	// PlayerCookieMaxAge is the lifetime of an issued cookie.
	PlayerCookieMaxAge = 30 * 24 * time.Hour
	// PlayerCookieRefreshAfter is the cookie age after which it is re-issued
	// with a fresh expiry. Younger cookies are not sent again.
	PlayerCookieRefreshAfter = 7 * 24 * time.Hour
)

type contextKey int

const (
	playerIDKey contextKey = iota
	usernameKey
	sessionIDKey
)

var (
	playerIDPattern  = regexp.MustCompile(`^player_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// PlayerStore is the subset of the repository the middleware needs.
type PlayerStore interface {
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	UpsertPlayer(ctx context.Context, player *domain.Player) error
}

// PlayerIDFromContext extracts the player ID from the request context.
func PlayerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(playerIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithPlayer returns a context carrying the given identity.
func WithPlayer(ctx context.Context, playerID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, playerIDKey, playerID)
	ctx = context.WithValue(ctx, usernameKey, DeriveUsername(playerID))
	return context.WithValue(ctx, sessionIDKey, SanitizeSessionID(sessionID))
}

// IsValidPlayerID reports whether id has the player ID format.
func IsValidPlayerID(id string) bool {
	return playerIDPattern.MatchString(id)
}

// SanitizeSessionID returns id, or the default session ID when id is unusable.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// DeriveUsername returns the display name for a player ID.
func DeriveUsername(playerID string) string {
	if len(playerID) > 15 {
		return "player-" + playerID[len(playerID)-8:]
	}
	return "player"
}

// PlayerCookie is the decoded value of the player cookie: the player ID and
// when the cookie was issued, joined as "<id>.<unix seconds>".
type PlayerCookie struct {
	PlayerID string
	IssuedAt time.Time
}

// String encodes c as a cookie value.
func (c PlayerCookie) String() string {
	return c.PlayerID + "." + strconv.FormatInt(c.IssuedAt.Unix(), 10)
}

// ParsePlayerCookie decodes a cookie value. A bare player ID without an
// issue time is accepted with a zero IssuedAt so it gets re-issued.
func ParsePlayerCookie(value string) (PlayerCookie, bool) {
	id, issued, found := strings.Cut(value, ".")
	if !IsValidPlayerID(id) {
		return PlayerCookie{}, false
	}
	if !found {
		return PlayerCookie{PlayerID: id}, true
	}
	secs, err := strconv.ParseInt(issued, 10, 64)
	if err != nil || secs <= 0 {
		return PlayerCookie{PlayerID: id}, true
	}
	return PlayerCookie{PlayerID: id, IssuedAt: time.Unix(secs, 0)}, true
}

func newPlayerID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate player id: %w", err)
	}
	return "player_" + hex.EncodeToString(buf), nil
}

// Resolver establishes the player behind each request: it reads or issues the
// player cookie, makes sure the player row exists and tags the request
// context with the player and tab.
type Resolver struct {
	repo  PlayerStore
	isDev bool
	now   func() time.Time
	newID func() (string, error)
}

// NewResolver creates a Resolver. isDev drops the Secure cookie flag.
func NewResolver(repo PlayerStore, isDev bool) *Resolver {
	return &Resolver{repo: repo, isDev: isDev, now: time.Now, newID: newPlayerID}
}

// Middleware injects the anonymous player identity and per-tab session ID.
func Middleware(repo PlayerStore, isDev bool) func(http.Handler) http.Handler {
	return NewResolver(repo, isDev).Handler
}

// Handler wraps next with identity resolution.
func (res *Resolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID, err := res.playerID(w, r)
		if err != nil {
			slog.Error("Failed to establish player identity", "error", err)
			http.Error(w, `{"error":"failed to establish player identity"}`, http.StatusInternalServerError)
			return
		}

		if err := res.ensurePlayer(r.Context(), playerID); err != nil {
			slog.Error("Failed to initialize player", "error", err, "player_id", playerID)
			http.Error(w, `{"error":"failed to initialize player"}`, http.StatusInternalServerError)
			return
		}

		ctx := WithPlayer(r.Context(), playerID, sessionIDFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// playerID returns the request's player, issuing a cookie for new players and
// re-issuing one that is older than PlayerCookieRefreshAfter.
func (res *Resolver) playerID(w http.ResponseWriter, r *http.Request) (string, error) {
	now := res.now()
	if c, err := r.Cookie(PlayerCookieName); err == nil {
		if pc, ok := ParsePlayerCookie(c.Value); ok {
			if now.Sub(pc.IssuedAt) >= PlayerCookieRefreshAfter {
				res.setCookie(w, PlayerCookie{PlayerID: pc.PlayerID, IssuedAt: now})
			}
			return pc.PlayerID, nil
		}
		slog.Warn("Discarding malformed player cookie", "ip", IPFromRequest(r))
	}

	id, err := res.newID()
	if err != nil {
		return "", err
	}
	res.setCookie(w, PlayerCookie{PlayerID: id, IssuedAt: now})
	return id, nil
}

func (res *Resolver) setCookie(w http.ResponseWriter, c PlayerCookie) {
	http.SetCookie(w, &http.Cookie{
		Name:     PlayerCookieName,
		Value:    c.String(),
		Path:     "/",
		MaxAge:   int(PlayerCookieMaxAge.Seconds()),
		Expires:  c.IssuedAt.Add(PlayerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !res.isDev,
	})
}

func (res *Resolver) ensurePlayer(ctx context.Context, playerID string) error {
	player, err := res.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if player != nil {
		return nil
	}

	now := res.now()
	slog.Info("New player", "player_id", playerID)
	return res.repo.UpsertPlayer(ctx, &domain.Player{
		PlayerID:   playerID,
		Username:   DeriveUsername(playerID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return SanitizeSessionID(sid)
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
