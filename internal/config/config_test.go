package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/hangman.db", cfg.Database.Path)
	assert.Equal(t, 60*time.Minute, cfg.SessionTTL)
	assert.Equal(t, GameConfig{MaxAttempts: 6, DefaultWordLength: 5, MinWordLength: 3, MaxWordLength: 12}, cfg.Game)
	assert.Equal(t, "api+embedded", cfg.Words.Source)
	assert.Equal(t, "zipf", cfg.Words.Filter)
	assert.InDelta(t, 3.5, cfg.Words.MinZipf, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Words.APITimeout)
	assert.Equal(t, 3, cfg.Retry.DatabaseMaxRetries)
	assert.Empty(t, cfg.GRPCPort)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_ATTEMPTS", "8")
	t.Setenv("WORD_SOURCE", "Embedded")
	t.Setenv("WORD_FILTER", "none")
	t.Setenv("WORD_CACHE_TTL", "90s")
	t.Setenv("MIN_ZIPF", "4.2")
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("FRONTEND_URL", "https://hangman.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 8, cfg.Game.MaxAttempts)
	assert.Equal(t, "embedded", cfg.Words.Source)
	assert.Equal(t, "none", cfg.Words.Filter)
	assert.Equal(t, 90*time.Second, cfg.Words.CacheTTL)
	assert.InDelta(t, 4.2, cfg.Words.MinZipf, 1e-9)
	assert.Equal(t, 60*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.AllowedOrigins(), "https://hangman.example.com")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "empty port", env: map[string]string{"PORT": ""}},
		{name: "unknown driver", env: map[string]string{"DB_DRIVER": "mysql"}},
		{name: "postgres without url", env: map[string]string{"DB_DRIVER": "postgres"}},
		{name: "zero attempts", env: map[string]string{"MAX_ATTEMPTS": "0"}},
		{name: "default length out of range", env: map[string]string{"DEFAULT_WORD_LENGTH": "20"}},
		{name: "inverted bounds", env: map[string]string{"MIN_WORD_LENGTH": "9", "MAX_WORD_LENGTH": "4"}},
		{name: "unknown source", env: map[string]string{"WORD_SOURCE": "dictionary"}},
		{name: "unknown filter", env: map[string]string{"WORD_FILTER": "bloom"}},
		{name: "zero fetch rate", env: map[string]string{"WORD_FETCH_RATE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestPostgresWithURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/hangman")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}
