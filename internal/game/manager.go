// Package game owns the active hangman session of every player tab and
// threads it through each interaction.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/ashureev/hangman/internal/shared"
	"github.com/ashureev/hangman/internal/words"
	"github.com/google/uuid"
)

var (
	// ErrNoGame is returned when guessing without an active game.
	ErrNoGame = errors.New("no active game")
	// ErrInvalidLength is returned for a word length outside the configured bounds.
	ErrInvalidLength = errors.New("invalid word length")
)

const (
	defaultUsedWordTries = 30
	persistTimeout       = 10 * time.Second
)

// Key identifies one player tab.
type Key struct {
	PlayerID  string
	SessionID string
}

func (k Key) String() string {
	return k.PlayerID + "/" + k.SessionID
}

// Sink receives the view after every change of a session.
type Sink interface {
	Render(key Key, view View)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(key Key, view View)

// Render calls f.
func (f SinkFunc) Render(key Key, view View) { f(key, view) }

// Store is the persistence the manager needs.
type Store interface {
	SaveGame(ctx context.Context, record *domain.GameRecord) error
	MarkWordUsed(ctx context.Context, playerID, word string, usedAt time.Time) error
	IsWordUsed(ctx context.Context, playerID, word string) (bool, error)
	PurgeUsedWords(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds gameplay limits for a Manager.
type Config struct {
	MaxAttempts       int
	DefaultWordLength int
	MinWordLength     int
	MaxWordLength     int
	// UsedWordTries bounds how many words are drawn to avoid repeats (default 30).
	UsedWordTries int
	// UsedWordTTL is how long a given word is remembered per player. Zero keeps it forever.
	UsedWordTTL time.Duration
	Retry       shared.RetryPolicy
}

type slot struct {
	mu         sync.Mutex
	session    domain.Session
	active     bool
	warning    string
	startedAt  time.Time
	lastActive time.Time
	evicted    bool
}

// Manager holds one session slot per player tab.
type Manager struct {
	cfg    Config
	source words.Source
	store  Store
	sink   Sink
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	slots map[Key]*slot
}

// NewManager creates a manager. store and sink may be nil.
func NewManager(cfg Config, source words.Source, store Store, sink Sink) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.MinWordLength <= 0 {
		cfg.MinWordLength = 3
	}
	if cfg.MaxWordLength < cfg.MinWordLength {
		cfg.MaxWordLength = 12
	}
	if cfg.DefaultWordLength < cfg.MinWordLength || cfg.DefaultWordLength > cfg.MaxWordLength {
		cfg.DefaultWordLength = cfg.MinWordLength
	}
	if cfg.UsedWordTries <= 0 {
		cfg.UsedWordTries = defaultUsedWordTries
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = shared.DefaultRetryPolicy
	}
	if sink == nil {
		sink = SinkFunc(func(Key, View) {})
	}
	return &Manager{
		cfg:    cfg,
		source: source,
		store:  store,
		sink:   sink,
		now:    time.Now,
		newID:  uuid.NewString,
		slots:  make(map[Key]*slot),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// acquire returns the locked slot for key. With create unset a missing slot is nil.
func (m *Manager) acquire(key Key, create bool) *slot {
	for {
		m.mu.Lock()
		s, ok := m.slots[key]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil
			}
			s = &slot{}
			m.slots[key] = s
		}
		m.mu.Unlock()

		s.mu.Lock()
		if !s.evicted {
			s.lastActive = m.now()
			return s
		}
		s.mu.Unlock()
	}
}

// Start begins a new game of the given length for key, replacing any
// previous session. A zero length selects the default. The word is drawn
// before the slot is locked, so a slow source never blocks guesses on the
// current game. When the word source fails the previous session is left
// untouched and no slot is created.
func (m *Manager) Start(ctx context.Context, key Key, length int) (View, error) {
	if length == 0 {
		length = m.cfg.DefaultWordLength
	}
	if length < m.cfg.MinWordLength || length > m.cfg.MaxWordLength {
		return View{}, fmt.Errorf("%w: %d not in %d..%d",
			ErrInvalidLength, length, m.cfg.MinWordLength, m.cfg.MaxWordLength)
	}

	word, err := m.pickWord(ctx, key.PlayerID, length)
	if err != nil {
		slog.Warn("Word source failed", "error", err, "player_id", key.PlayerID, "length", length)
		return View{}, fmt.Errorf("start game: %w", err)
	}

	session, err := domain.StartGame(word, m.cfg.MaxAttempts)
	if err != nil {
		slog.Error("Word source returned an unusable word", "error", err, "word", word)
		return View{}, fmt.Errorf("start game: %w: bad word %q: %v", words.ErrUnavailable, word, err)
	}
	session.ID = m.newID()

	s := m.acquire(key, true)
	defer s.mu.Unlock()

	now := m.now()
	s.session = session
	s.active = true
	s.warning = ""
	s.startedAt = now

	m.markUsed(ctx, key.PlayerID, session.SecretWord, now)

	slog.Info("Game started",
		"player_id", key.PlayerID,
		"session_id", key.SessionID,
		"game_id", session.ID,
		"length", length)

	view := NewView(s.session, "")
	m.sink.Render(key, view)
	return view, nil
}

// GuessLetter applies a single-letter guess to the session of key.
func (m *Manager) GuessLetter(ctx context.Context, key Key, input string) (View, error) {
	input = strings.TrimSpace(input)
	if utf8.RuneCountInString(input) != 1 {
		return m.rejectInput(key, fmt.Errorf("%w: enter exactly one letter", domain.ErrInvalidGuess))
	}
	letter, _ := utf8.DecodeRuneInString(input)
	warning := fmt.Sprintf("'%c' was already tried.", unicode.ToLower(letter))

	return m.apply(ctx, key, warning, func(s domain.Session) (domain.Session, error) {
		return s.GuessLetter(letter)
	})
}

// GuessWord applies a whole-word guess to the session of key.
func (m *Manager) GuessWord(ctx context.Context, key Key, input string) (View, error) {
	return m.apply(ctx, key, "", func(s domain.Session) (domain.Session, error) {
		return s.GuessWord(input)
	})
}

func (m *Manager) rejectInput(key Key, err error) (View, error) {
	view, ok := m.Current(key)
	if !ok {
		return View{}, ErrNoGame
	}
	return view, err
}

// apply runs one transition on key's session. duplicate is the warning shown
// when the guess repeats an earlier one.
func (m *Manager) apply(ctx context.Context, key Key, duplicate string, guess func(domain.Session) (domain.Session, error)) (View, error) {
	s := m.acquire(key, false)
	if s == nil {
		return View{}, ErrNoGame
	}
	defer s.mu.Unlock()
	if !s.active {
		return View{}, ErrNoGame
	}

	next, err := guess(s.session)
	switch {
	case errors.Is(err, domain.ErrDuplicateGuess):
		s.warning = duplicate
		view := NewView(s.session, s.warning)
		m.sink.Render(key, view)
		return view, err
	case err != nil:
		return NewView(s.session, s.warning), err
	}

	wasOver := s.session.IsOver()
	s.session = next
	s.warning = ""

	if next.IsOver() && !wasOver {
		m.finish(ctx, key, s)
	}

	view := NewView(s.session, "")
	m.sink.Render(key, view)
	return view, nil
}

// Current returns the view of key's session, if any.
func (m *Manager) Current(key Key) (View, bool) {
	s := m.acquire(key, false)
	if s == nil {
		return View{}, false
	}
	defer s.mu.Unlock()
	if !s.active {
		return View{}, false
	}
	return NewView(s.session, s.warning), true
}

// Forget drops the slot of key.
func (m *Manager) Forget(key Key) {
	m.mu.Lock()
	s, ok := m.slots[key]
	delete(m.slots, key)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.evicted = true
		s.mu.Unlock()
	}
}

// Len returns the number of slots held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *Manager) pickWord(ctx context.Context, playerID string, length int) (string, error) {
	var last string
	for i := 0; i < m.cfg.UsedWordTries; i++ {
		word, err := m.source.Word(ctx, length)
		if err != nil {
			if last != "" {
				break
			}
			return "", err
		}
		last = word

		if m.store == nil {
			return word, nil
		}
		used, err := m.store.IsWordUsed(ctx, playerID, word)
		if err != nil {
			slog.Warn("Failed to check used word", "error", err, "player_id", playerID)
			return word, nil
		}
		if !used {
			return word, nil
		}
	}
	slog.Debug("No unused word found, repeating", "player_id", playerID, "length", length)
	return last, nil
}

func (m *Manager) markUsed(ctx context.Context, playerID, word string, at time.Time) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := shared.RetryOnConflict(ctx, m.cfg.Retry, "mark word used", func(ctx context.Context) error {
		return m.store.MarkWordUsed(ctx, playerID, word, at)
	})
	if err != nil {
		slog.Warn("Failed to record used word", "error", err, "player_id", playerID)
	}
}

// finish persists a session that just reached a terminal status. Failures
// are logged and never change the outcome.
func (m *Manager) finish(ctx context.Context, key Key, s *slot) {
	slog.Info("Game finished",
		"player_id", key.PlayerID,
		"session_id", key.SessionID,
		"game_id", s.session.ID,
		"status", s.session.Status)

	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	record := domain.NewGameRecord(key.PlayerID, s.session, s.startedAt, m.now())
	err := shared.RetryOnConflict(ctx, m.cfg.Retry, "save game", func(ctx context.Context) error {
		return m.store.SaveGame(ctx, record)
	})
	if err != nil {
		slog.Error("Failed to save finished game",
			"error", err,
			"player_id", key.PlayerID,
			"game_id", record.GameID)
	}
}
