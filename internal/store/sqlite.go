package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/hangman/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS players (
		player_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS games (
		game_id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		word TEXT NOT NULL,
		status TEXT NOT NULL,
		max_attempts INTEGER NOT NULL,
		remaining_attempts INTEGER NOT NULL,
		guessed TEXT NOT NULL DEFAULT '',
		wrong TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_games_player_finished ON games(player_id, finished_at);

	CREATE TABLE IF NOT EXISTS used_words (
		player_id TEXT NOT NULL,
		word TEXT NOT NULL,
		used_at INTEGER NOT NULL,
		PRIMARY KEY (player_id, word)
	);
	CREATE INDEX IF NOT EXISTS idx_used_words_used_at ON used_words(used_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetPlayer retrieves a player by ID.
func (s *SQLiteStore) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `
		SELECT player_id, username, last_seen_at, created_at, updated_at
		FROM players WHERE player_id = ?`

	var player domain.Player
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, playerID).Scan(
		&player.PlayerID, &player.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan player row: %w", err)
	}

	player.LastSeenAt = time.Unix(lastSeen, 0)
	player.CreatedAt = time.Unix(createdAt, 0)
	player.UpdatedAt = time.Unix(updatedAt, 0)
	return &player, nil
}

// UpsertPlayer creates or updates a player record.
func (s *SQLiteStore) UpsertPlayer(ctx context.Context, player *domain.Player) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO players (player_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(player_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		player.PlayerID, player.Username,
		player.LastSeenAt.Unix(), player.CreatedAt.Unix(), player.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a player.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `UPDATE players SET last_seen_at = ?, updated_at = ? WHERE player_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), playerID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "player_id", playerID)
	}
	return nil
}

// SaveGame stores a finished game.
func (s *SQLiteStore) SaveGame(ctx context.Context, record *domain.GameRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO games (
		game_id, player_id, word, status, max_attempts, remaining_attempts,
		guessed, wrong, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(game_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		record.GameID, record.PlayerID, record.Word, string(record.Status),
		record.MaxAttempts, record.RemainingAttempts,
		record.Guessed, record.Wrong,
		record.StartedAt.Unix(), record.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

// ListGames returns a player's finished games, newest first.
func (s *SQLiteStore) ListGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT game_id, player_id, word, status, max_attempts, remaining_attempts,
		       guessed, wrong, started_at, finished_at
		FROM games WHERE player_id = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close games rows", "error", closeErr)
		}
	}()

	var records []*domain.GameRecord
	for rows.Next() {
		var rec domain.GameRecord
		var status string
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&rec.GameID, &rec.PlayerID, &rec.Word, &status,
			&rec.MaxAttempts, &rec.RemainingAttempts,
			&rec.Guessed, &rec.Wrong, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		rec.Status = domain.Status(status)
		rec.StartedAt = time.Unix(startedAt, 0)
		rec.FinishedAt = time.Unix(finishedAt, 0)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return records, nil
}

// GetStats summarizes a player's most recent StatsWindow finished games.
func (s *SQLiteStore) GetStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	return statsFromGames(ctx, s, playerID)
}

// MarkWordUsed remembers that a player has been given word.
func (s *SQLiteStore) MarkWordUsed(ctx context.Context, playerID, word string, usedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO used_words (player_id, word, used_at) VALUES (?, ?, ?)
	ON CONFLICT(player_id, word) DO UPDATE SET used_at = excluded.used_at`
	if _, err := s.db.ExecContext(ctx, query, playerID, word, usedAt.Unix()); err != nil {
		return fmt.Errorf("mark word used: %w", err)
	}
	return nil
}

// IsWordUsed reports whether a player has been given word before.
func (s *SQLiteStore) IsWordUsed(ctx context.Context, playerID, word string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM used_words WHERE player_id = ? AND word = ?`, playerID, word,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query used word: %w", err)
	}
	return n > 0, nil
}

// PurgeUsedWords forgets used words recorded before cutoff.
func (s *SQLiteStore) PurgeUsedWords(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM used_words WHERE used_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge used words: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
