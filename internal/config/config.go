// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    slog.Level
	GRPCPort    string // empty disables the gRPC health server
	SessionTTL  time.Duration
	UsedWordTTL time.Duration

	Database DatabaseConfig
	Game     GameConfig
	Words    WordsConfig
	Retry    RetryConfig
	Timeout  TimeoutConfig
}

// DatabaseConfig selects and locates the repository.
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string
	URL    string
}

// GameConfig holds gameplay limits.
type GameConfig struct {
	MaxAttempts       int
	DefaultWordLength int
	MinWordLength     int
	MaxWordLength     int
}

// WordsConfig controls where secret words come from.
type WordsConfig struct {
	Source     string // "api", "embedded" or "api+embedded"
	APIURL     string
	APITimeout time.Duration
	CacheTTL   time.Duration
	FetchRate  float64
	Filter     string // "zipf" or "none"
	MinZipf    float64
	FreqFile   string
}

// RetryConfig bounds retries of busy database writes.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TimeoutConfig holds operation timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		UsedWordTTL: getEnvDuration("USED_WORD_TTL", 30*24*time.Hour),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:   getEnv("DB_PATH", "./data/hangman.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Game: GameConfig{
			MaxAttempts:       getEnvInt("MAX_ATTEMPTS", 6),
			DefaultWordLength: getEnvInt("DEFAULT_WORD_LENGTH", 5),
			MinWordLength:     getEnvInt("MIN_WORD_LENGTH", 3),
			MaxWordLength:     getEnvInt("MAX_WORD_LENGTH", 12),
		},
		Words: WordsConfig{
			Source:     strings.ToLower(getEnv("WORD_SOURCE", "api+embedded")),
			APIURL:     getEnv("WORD_API_URL", "https://random-word-api.herokuapp.com/word"),
			APITimeout: getEnvDuration("WORD_API_TIMEOUT", 5*time.Second),
			CacheTTL:   getEnvDuration("WORD_CACHE_TTL", 10*time.Minute),
			FetchRate:  getEnvFloat("WORD_FETCH_RATE", 2),
			Filter:     strings.ToLower(getEnv("WORD_FILTER", "zipf")),
			MinZipf:    getEnvFloat("MIN_ZIPF", 3.5),
			FreqFile:   getEnv("WORD_FREQ_FILE", ""),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}

	g := c.Game
	if g.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1")
	}
	if g.MinWordLength < 1 || g.MinWordLength > g.MaxWordLength {
		return fmt.Errorf("word length bounds %d..%d are invalid", g.MinWordLength, g.MaxWordLength)
	}
	if g.DefaultWordLength < g.MinWordLength || g.DefaultWordLength > g.MaxWordLength {
		return fmt.Errorf("DEFAULT_WORD_LENGTH must be within %d..%d", g.MinWordLength, g.MaxWordLength)
	}

	switch c.Words.Source {
	case "api", "embedded", "api+embedded":
	default:
		return fmt.Errorf("WORD_SOURCE must be api, embedded or api+embedded, got %q", c.Words.Source)
	}
	switch c.Words.Filter {
	case "zipf", "none":
	default:
		return fmt.Errorf("WORD_FILTER must be zipf or none, got %q", c.Words.Filter)
	}
	if c.Words.APITimeout <= 0 {
		return fmt.Errorf("WORD_API_TIMEOUT must be > 0")
	}
	if c.Words.FetchRate <= 0 {
		return fmt.Errorf("WORD_FETCH_RATE must be > 0")
	}

	if c.Retry.DatabaseMaxRetries < 1 {
		return fmt.Errorf("DB_MAX_RETRIES must be >= 1")
	}
	if c.Timeout.HealthCheck <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:5173", "http://localhost:" + c.Port}
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
