package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/ashureev/hangman/internal/shared"
	"github.com/ashureev/hangman/internal/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqSource hands out words in order and then repeats the last one.
type seqSource struct {
	mu    sync.Mutex
	words []string
	calls int
	err   error
}

func (s *seqSource) Word(_ context.Context, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.words) {
		i = len(s.words) - 1
	}
	return s.words[i], nil
}

type memStore struct {
	mu        sync.Mutex
	games     []*domain.GameRecord
	used      map[string]time.Time
	saveErrs  []error
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{used: make(map[string]time.Time)}
}

func (s *memStore) SaveGame(_ context.Context, rec *domain.GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.games = append(s.games, rec)
	return nil
}

func (s *memStore) MarkWordUsed(_ context.Context, playerID, word string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[playerID+":"+word] = at
	return nil
}

func (s *memStore) IsWordUsed(_ context.Context, playerID, word string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.used[playerID+":"+word]
	return ok, nil
}

func (s *memStore) PurgeUsedWords(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.used {
		if at.Before(cutoff) {
			delete(s.used, k)
			n++
		}
	}
	return n, nil
}

type recordingSink struct {
	mu    sync.Mutex
	views []View
}

func (r *recordingSink) Render(_ Key, v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingSink) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

var tab = Key{PlayerID: "player_1", SessionID: "default"}

func newTestManager(src words.Source, store Store, sink Sink) *Manager {
	m := NewManager(Config{
		MaxAttempts:       6,
		DefaultWordLength: 5,
		MinWordLength:     3,
		MaxWordLength:     12,
		Retry:             shared.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond},
	}, src, store, sink)
	ids := 0
	m.newID = func() string {
		ids++
		return fmt.Sprintf("game-%d", ids)
	}
	return m
}

func TestStartRendersNewGame(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(&seqSource{words: []string{"apple"}}, newMemStore(), sink)

	view, err := m.Start(context.Background(), tab, 0)
	require.NoError(t, err)

	assert.Equal(t, "game-1", view.GameID)
	assert.Equal(t, "_ _ _ _ _", view.Masked)
	assert.Equal(t, 5, view.Length)
	assert.Equal(t, 6, view.RemainingAttempts)
	assert.Equal(t, domain.StatusInProgress, view.Status)
	assert.Empty(t, view.Answer)
	assert.Equal(t, view, sink.last())
}

func TestStartRejectsLength(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	for _, n := range []int{2, 13, -1} {
		_, err := m.Start(context.Background(), tab, n)
		require.ErrorIs(t, err, ErrInvalidLength, "length %d", n)
	}
}

func TestStartSourceFailureKeepsPreviousGame(t *testing.T) {
	src := &seqSource{words: []string{"apple"}}
	m := newTestManager(src, nil, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)
	_, err = m.GuessLetter(ctx, tab, "a")
	require.NoError(t, err)

	src.err = fmt.Errorf("%w: timeout", words.ErrUnavailable)
	_, err = m.Start(ctx, tab, 5)
	require.ErrorIs(t, err, words.ErrUnavailable)

	view, ok := m.Current(tab)
	require.True(t, ok)
	assert.Equal(t, "a _ _ _ _", view.Masked)
}

func TestStartFailureLeavesNoSlot(t *testing.T) {
	src := &seqSource{err: fmt.Errorf("%w: timeout", words.ErrUnavailable)}
	m := newTestManager(src, nil, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 5)
	require.ErrorIs(t, err, words.ErrUnavailable)
	assert.Equal(t, 0, m.Len())

	_, ok := m.Current(tab)
	assert.False(t, ok)
	_, err = m.GuessLetter(ctx, tab, "a")
	require.ErrorIs(t, err, ErrNoGame)

	src.err = nil
	src.words = []string{"apple"}
	_, err = m.Start(ctx, tab, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestStartMalformedWordIsUnavailable(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"b4d-w"}}, nil, nil)

	_, err := m.Start(context.Background(), tab, 5)
	require.ErrorIs(t, err, words.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrInvalidWord)
	assert.Equal(t, CodeWordUnavailable, ErrorCode(err))
	assert.Equal(t, 0, m.Len())
}

// gateSource blocks every Word call after the first until release is closed.
type gateSource struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gateSource) Word(ctx context.Context, _ int) (string, error) {
	if g.calls.Add(1) == 1 {
		return "apple", nil
	}
	close(g.entered)
	select {
	case <-g.release:
		return "grape", nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", words.ErrUnavailable, ctx.Err())
	}
}

func TestStartDoesNotBlockGuessesWhileFetching(t *testing.T) {
	src := &gateSource{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(src, nil, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		_, err := m.Start(ctx, tab, 5)
		started <- err
	}()
	<-src.entered

	guessed := make(chan View, 1)
	go func() {
		view, _ := m.GuessLetter(ctx, tab, "p")
		guessed <- view
	}()
	select {
	case view := <-guessed:
		assert.Equal(t, "_ p p _ _", view.Masked)
	case <-time.After(2 * time.Second):
		t.Fatal("guess blocked behind a pending Start")
	}

	close(src.release)
	require.NoError(t, <-started)
	view, ok := m.Current(tab)
	require.True(t, ok)
	assert.Equal(t, "_ _ _ _ _", view.Masked)
}

func TestStartWithoutCommonAPIWordsFallsBackOffline(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]string{"silver", "travel", "button", "jungle", "zymase"})
	}))
	t.Cleanup(srv.Close)

	table := words.FrequencyTable{"planet": 5, "orange": 5}
	api := words.NewAPISource(words.APIConfig{
		URL:           srv.URL,
		Accept:        words.MinZipf(table, words.DefaultMinZipf),
		RatePerSecond: 2,
	}, nil)
	store := newMemStore()
	m := newTestManager(words.Chain(api, words.NewEmbeddedSource(table)), store, nil)
	ctx := context.Background()
	for _, w := range []string{"planet", "orange"} {
		require.NoError(t, store.MarkWordUsed(ctx, tab.PlayerID, w, time.Now()))
	}

	begin := time.Now()
	for i := 0; i < 3; i++ {
		view, err := m.Start(ctx, tab, 6)
		require.NoError(t, err)
		assert.Equal(t, 6, view.Length)
	}
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestStartAvoidsUsedWords(t *testing.T) {
	store := newMemStore()
	src := &seqSource{words: []string{"apple", "apple", "grape"}}
	m := newTestManager(src, store, nil)
	ctx := context.Background()

	first, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)
	second, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	_, _ = m.GuessWord(ctx, tab, "grape")
	view, _ := m.Current(tab)
	assert.Equal(t, "grape", view.Answer)
	assert.NotEqual(t, first.GameID, second.GameID)
	assert.Equal(t, 3, src.calls)
}

func TestStartRepeatsWhenEverythingUsed(t *testing.T) {
	store := newMemStore()
	src := &seqSource{words: []string{"apple"}}
	m := newTestManager(src, store, nil)
	m.cfg.UsedWordTries = 4
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)
	_, err = m.Start(ctx, tab, 5)
	require.NoError(t, err)

	view, err := m.GuessWord(ctx, tab, "apple")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, view.Status)
	assert.Equal(t, 5, src.calls)
}

func TestGuessWithoutGame(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	ctx := context.Background()

	_, err := m.GuessLetter(ctx, tab, "a")
	require.ErrorIs(t, err, ErrNoGame)
	_, err = m.GuessWord(ctx, tab, "apple")
	require.ErrorIs(t, err, ErrNoGame)
	_, ok := m.Current(tab)
	assert.False(t, ok)
}

func TestGuessLetterInput(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	ctx := context.Background()
	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	for _, input := range []string{"", "ab", "1", " ", "é"} {
		view, err := m.GuessLetter(ctx, tab, input)
		require.ErrorIs(t, err, domain.ErrInvalidGuess, "input %q", input)
		assert.Equal(t, 6, view.RemainingAttempts)
	}

	view, err := m.GuessLetter(ctx, tab, " P ")
	require.NoError(t, err)
	assert.Equal(t, "_ p p _ _", view.Masked)
}

func TestDuplicateGuessWarns(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, sink)
	ctx := context.Background()
	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	_, err = m.GuessLetter(ctx, tab, "z")
	require.NoError(t, err)

	view, err := m.GuessLetter(ctx, tab, "Z")
	require.ErrorIs(t, err, domain.ErrDuplicateGuess)
	assert.Equal(t, "'z' was already tried.", view.Warning)
	assert.Equal(t, 5, view.RemainingAttempts)
	assert.Equal(t, view, sink.last())

	current, _ := m.Current(tab)
	assert.Equal(t, "'z' was already tried.", current.Warning)

	view, err = m.GuessLetter(ctx, tab, "a")
	require.NoError(t, err)
	assert.Empty(t, view.Warning)
}

func TestFinishedGameIsPersistedOnce(t *testing.T) {
	store := newMemStore()
	m := newTestManager(&seqSource{words: []string{"cat"}}, store, nil)
	m.cfg.MaxAttempts = 1
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 3)
	require.NoError(t, err)
	view, err := m.GuessLetter(ctx, tab, "x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLost, view.Status)
	assert.Equal(t, "cat", view.Answer)
	assert.Equal(t, domain.StageCount, view.Stage)

	_, err = m.GuessLetter(ctx, tab, "c")
	require.ErrorIs(t, err, domain.ErrGameOver)

	require.Len(t, store.games, 1)
	rec := store.games[0]
	assert.Equal(t, "game-1", rec.GameID)
	assert.Equal(t, "player_1", rec.PlayerID)
	assert.Equal(t, domain.StatusLost, rec.Status)
	assert.Equal(t, "x", rec.Wrong)
}

func TestPersistenceRetriesBusyDatabase(t *testing.T) {
	store := newMemStore()
	store.saveErrs = []error{errors.New("database is locked"), nil}
	m := newTestManager(&seqSource{words: []string{"cat"}}, store, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 3)
	require.NoError(t, err)
	view, err := m.GuessWord(ctx, tab, "CAT")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusWon, view.Status)
	assert.Equal(t, 2, store.saveCalls)
	assert.Len(t, store.games, 1)
}

func TestPersistenceFailureDoesNotChangeOutcome(t *testing.T) {
	store := newMemStore()
	store.saveErrs = []error{errors.New("disk I/O error")}
	m := newTestManager(&seqSource{words: []string{"cat"}}, store, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 3)
	require.NoError(t, err)
	view, err := m.GuessWord(ctx, tab, "cat")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, view.Status)
	assert.Empty(t, store.games)
}

func TestAppleScenario(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	ctx := context.Background()
	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	view, err := m.GuessLetter(ctx, tab, "a")
	require.NoError(t, err)
	assert.Equal(t, 6, view.RemainingAttempts)
	assert.Equal(t, domain.StatusInProgress, view.Status)

	view, err = m.GuessLetter(ctx, tab, "z")
	require.NoError(t, err)
	assert.Equal(t, 5, view.RemainingAttempts)
	assert.Equal(t, []string{"z"}, view.Wrong)

	view, err = m.GuessWord(ctx, tab, "apple")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, view.Status)
	assert.Equal(t, "apple", view.Revealed)
}

func TestTabsAreIndependent(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple", "grape"}}, nil, nil)
	ctx := context.Background()
	other := Key{PlayerID: "player_1", SessionID: "tab-2"}

	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)
	_, err = m.Start(ctx, other, 5)
	require.NoError(t, err)

	_, err = m.GuessLetter(ctx, tab, "a")
	require.NoError(t, err)

	a, _ := m.Current(tab)
	b, _ := m.Current(other)
	assert.Equal(t, "a _ _ _ _", a.Masked)
	assert.Equal(t, "_ _ _ _ _", b.Masked)
}

func TestConcurrentGuessesAreSequential(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"abcdefghij"}}, nil, nil)
	m.cfg.MaxAttempts = 26
	ctx := context.Background()
	_, err := m.Start(ctx, tab, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for r := 'a'; r <= 'z'; r++ {
		wg.Add(1)
		go func(r rune) {
			defer wg.Done()
			_, _ = m.GuessLetter(ctx, tab, string(r))
		}(r)
	}
	wg.Wait()

	view, ok := m.Current(tab)
	require.True(t, ok)
	assert.Equal(t, "abcdefghij", view.Revealed)
	assert.Equal(t, domain.StatusWon, view.Status)
	assert.GreaterOrEqual(t, view.RemainingAttempts, 0)
}

func TestSweepEvictsIdleSlots(t *testing.T) {
	store := newMemStore()
	m := newTestManager(&seqSource{words: []string{"apple"}}, store, nil)
	m.cfg.UsedWordTTL = time.Hour
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	now = now.Add(30 * time.Minute)
	assert.Zero(t, m.Sweep(time.Hour))

	now = now.Add(2 * time.Hour)
	m.sweepOnce(ctx, time.Hour)
	assert.Zero(t, m.Len())
	assert.Empty(t, store.used)

	_, err = m.GuessLetter(ctx, tab, "a")
	require.ErrorIs(t, err, ErrNoGame)
}

func TestForget(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	_, err := m.Start(context.Background(), tab, 5)
	require.NoError(t, err)

	m.Forget(tab)
	_, ok := m.Current(tab)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestStartSweeperStops(t *testing.T) {
	m := newTestManager(&seqSource{words: []string{"apple"}}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Start(ctx, tab, 5)
	require.NoError(t, err)

	m.StartSweeper(ctx, time.Nanosecond, time.Millisecond)
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
