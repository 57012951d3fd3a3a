package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Repository using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connStr and prepares the schema.
func NewPostgres(ctx context.Context, connStr string) (Repository, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres connection string is empty")
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			word TEXT NOT NULL,
			status TEXT NOT NULL,
			max_attempts INTEGER NOT NULL,
			remaining_attempts INTEGER NOT NULL,
			guessed TEXT NOT NULL DEFAULT '',
			wrong TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_player_finished ON games(player_id, finished_at)`,
		`CREATE TABLE IF NOT EXISTS used_words (
			player_id TEXT NOT NULL,
			word TEXT NOT NULL,
			used_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (player_id, word)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_used_words_used_at ON used_words(used_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetPlayer retrieves a player by ID.
func (s *PostgresStore) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var player domain.Player
	err := s.pool.QueryRow(ctx, `
		SELECT player_id, username, last_seen_at, created_at, updated_at
		FROM players WHERE player_id = $1`, playerID,
	).Scan(&player.PlayerID, &player.Username, &player.LastSeenAt, &player.CreatedAt, &player.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan player row: %w", err)
	}
	return &player, nil
}

// UpsertPlayer creates or updates a player record.
func (s *PostgresStore) UpsertPlayer(ctx context.Context, player *domain.Player) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (player_id, username, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id) DO UPDATE SET
			username = EXCLUDED.username,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at`,
		player.PlayerID, player.Username, player.LastSeenAt, player.CreatedAt, player.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a player.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET last_seen_at = $1, updated_at = $2 WHERE player_id = $3`,
		lastSeen, time.Now(), playerID,
	)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "player_id", playerID)
	}
	return nil
}

// SaveGame stores a finished game.
func (s *PostgresStore) SaveGame(ctx context.Context, record *domain.GameRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (
			game_id, player_id, word, status, max_attempts, remaining_attempts,
			guessed, wrong, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (game_id) DO NOTHING`,
		record.GameID, record.PlayerID, record.Word, string(record.Status),
		record.MaxAttempts, record.RemainingAttempts,
		record.Guessed, record.Wrong, record.StartedAt, record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

// ListGames returns a player's finished games, newest first.
func (s *PostgresStore) ListGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, player_id, word, status, max_attempts, remaining_attempts,
		       guessed, wrong, started_at, finished_at
		FROM games WHERE player_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`, playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var records []*domain.GameRecord
	for rows.Next() {
		var rec domain.GameRecord
		var status string
		if err := rows.Scan(
			&rec.GameID, &rec.PlayerID, &rec.Word, &status,
			&rec.MaxAttempts, &rec.RemainingAttempts,
			&rec.Guessed, &rec.Wrong, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		rec.Status = domain.Status(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return records, nil
}

// GetStats summarizes a player's most recent StatsWindow finished games.
func (s *PostgresStore) GetStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	return statsFromGames(ctx, s, playerID)
}

// MarkWordUsed remembers that a player has been given word.
func (s *PostgresStore) MarkWordUsed(ctx context.Context, playerID, word string, usedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO used_words (player_id, word, used_at) VALUES ($1, $2, $3)
		ON CONFLICT (player_id, word) DO UPDATE SET used_at = EXCLUDED.used_at`,
		playerID, word, usedAt,
	)
	if err != nil {
		return fmt.Errorf("mark word used: %w", err)
	}
	return nil
}

// IsWordUsed reports whether a player has been given word before.
func (s *PostgresStore) IsWordUsed(ctx context.Context, playerID, word string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM used_words WHERE player_id = $1 AND word = $2)`,
		playerID, word,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("query used word: %w", err)
	}
	return used, nil
}

// PurgeUsedWords forgets used words recorded before cutoff.
func (s *PostgresStore) PurgeUsedWords(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM used_words WHERE used_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge used words: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
