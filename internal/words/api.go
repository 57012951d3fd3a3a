package words

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the random word endpoint the game was designed around.
	DefaultAPIURL = "https://random-word-api.herokuapp.com/word"

	defaultBatchSize = 100
	defaultTimeout   = 5 * time.Second
	defaultCacheTTL  = 10 * time.Minute
	defaultEmptyTTL  = 30 * time.Second
	minAPILength     = 3
	maxResponseBytes = 1 << 20
)

// APIConfig configures an APISource.
type APIConfig struct {
	// URL of the word endpoint; number and length are sent as query parameters.
	URL string
	// BatchSize is how many words are requested per fetch (default 100).
	BatchSize int
	// Timeout bounds a single fetch (default 5s).
	Timeout time.Duration
	// CacheTTL is how long filtered candidates are reused per length (default 10m).
	CacheTTL time.Duration
	// EmptyTTL is how long a fetch that yielded no common word suppresses
	// further fetches for that length (default 30s).
	EmptyTTL time.Duration
	// RatePerSecond throttles outbound fetches. Zero disables throttling.
	RatePerSecond float64
	// Accept filters sanitized candidates. Nil accepts everything.
	Accept Predicate
	// Client overrides the HTTP client.
	Client *http.Client
}

type cacheEntry struct {
	words     []string
	fetchedAt time.Time
}

// APISource fetches batches of random words over HTTP, keeps the common ones
// and serves random picks from a per-length cache.
type APISource struct {
	cfg     APIConfig
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[int]cacheEntry
	pick  func(n int) int
}

// NewAPISource creates an API-backed word source.
func NewAPISource(cfg APIConfig, logger *slog.Logger) *APISource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultAPIURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.EmptyTTL <= 0 {
		cfg.EmptyTTL = min(defaultEmptyTTL, cfg.CacheTTL)
	}
	if cfg.Accept == nil {
		cfg.Accept = AcceptAll
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &APISource{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[int]cacheEntry),
		pick:    rand.IntN,
	}
}

// Word returns a random common word of the given length.
func (s *APISource) Word(ctx context.Context, length int) (string, error) {
	candidates, err := s.Candidates(ctx, length)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return candidates[s.pick(len(candidates))], nil
}

// Candidates returns the filtered candidate list for length, fetching it when
// the cached copy is missing or stale. The result must not be modified.
//
// Concurrent misses share one fetch. The fetch is detached from the caller
// that started it, so a caller giving up does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (s *APISource) Candidates(ctx context.Context, length int) ([]string, error) {
	if length < 1 {
		return nil, unavailable("invalid length %d", length)
	}

	if words, ok := s.cached(length); ok {
		return nonEmpty(words, length)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.Itoa(length), func() (interface{}, error) {
		if words, ok := s.cached(length); ok {
			return words, nil
		}
		words, err := s.fetch(fetchCtx, length)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[length] = cacheEntry{words: words, fetchedAt: s.now()}
		s.mu.Unlock()
		return words, nil
	})

	select {
	case <-ctx.Done():
		return nil, unavailable("waiting for candidates: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("word candidates shared with concurrent fetch", "length", length)
		}
		return nonEmpty(res.Val.([]string), length)
	}
}

func nonEmpty(words []string, length int) ([]string, error) {
	if len(words) == 0 {
		return nil, unavailable("no common words of length %d", length)
	}
	return words, nil
}

// Invalidate drops every cached candidate list.
func (s *APISource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[int]cacheEntry)
}

func (s *APISource) cached(length int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[length]
	if !ok {
		return nil, false
	}
	ttl := s.cfg.CacheTTL
	if len(entry.words) == 0 {
		ttl = s.cfg.EmptyTTL
	}
	if s.now().Sub(entry.fetchedAt) >= ttl {
		return nil, false
	}
	return entry.words, true
}

// fetch requests one batch. An empty result is not an error: it is cached
// for EmptyTTL so the caller can fall back without hitting the API again.
func (s *APISource) fetch(ctx context.Context, length int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, unavailable("rate limit wait: %v", err)
	}

	endpoint, err := s.endpoint(length)
	if err != nil {
		return nil, unavailable("build url: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unavailable("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	start := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Word API request failed", "error", err, "length", length)
		return nil, unavailable("request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Debug("failed to close word API body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("Word API returned error status", "status", resp.StatusCode, "length", length)
		return nil, unavailable("status %d", resp.StatusCode)
	}

	var items []interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&items); err != nil {
		return nil, unavailable("decode response: %v", err)
	}

	words := s.filter(items, length)
	s.logger.Info("Word candidates fetched",
		"length", length,
		"received", len(items),
		"accepted", len(words),
		"duration", s.now().Sub(start),
	)
	return words, nil
}

func (s *APISource) filter(items []interface{}, length int) []string {
	seen := make(map[string]struct{}, len(items))
	var words []string
	for _, item := range items {
		w := Sanitize(fmt.Sprint(item))
		if w == "" || len(w) != length {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		if !s.cfg.Accept(w) {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

func (s *APISource) endpoint(length int) (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("number", strconv.Itoa(s.cfg.BatchSize))
	q.Set("length", strconv.Itoa(max(minAPILength, length)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
