// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/hangman/internal/domain"
)

// Repository defines the interface for persisting players and finished games.
type Repository interface {
	// GetPlayer retrieves a player by ID. Returns nil, nil when not found.
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)

	// UpsertPlayer creates or updates a player record.
	UpsertPlayer(ctx context.Context, player *domain.Player) error

	// UpdateLastSeen updates the last_seen_at timestamp for a player.
	UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error

	// SaveGame stores a finished game. Saving the same game ID twice is a no-op.
	SaveGame(ctx context.Context, record *domain.GameRecord) error

	// ListGames returns a player's finished games, newest first.
	ListGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error)

	// GetStats summarizes the player's most recent StatsWindow finished games.
	GetStats(ctx context.Context, playerID string) (*domain.PlayerStats, error)

	// MarkWordUsed remembers that a player has been given word.
	MarkWordUsed(ctx context.Context, playerID, word string, usedAt time.Time) error

	// IsWordUsed reports whether a player has been given word before.
	IsWordUsed(ctx context.Context, playerID, word string) (bool, error)

	// PurgeUsedWords forgets used words recorded before cutoff.
	PurgeUsedWords(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository for driver: "sqlite" uses path, "postgres" uses url.
func Open(ctx context.Context, driver, path, url string) (Repository, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(ctx, url)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// StatsWindow is how many recent games GetStats looks at. Streaks and the
// win rate are computed over this window only.
const StatsWindow = 1000

type gameLister interface {
	ListGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error)
}

func statsFromGames(ctx context.Context, repo gameLister, playerID string) (*domain.PlayerStats, error) {
	records, err := repo.ListGames(ctx, playerID, StatsWindow)
	if err != nil {
		return nil, err
	}
	return domain.ComputeStats(records), nil
}
