package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the state of a game session.
type Status string

const (
	// StatusInProgress is the initial state; guesses are accepted.
	StatusInProgress Status = "in_progress"
	// StatusWon is terminal: every letter of the secret word was guessed.
	StatusWon Status = "won"
	// StatusLost is terminal: attempts ran out before the word was found.
	StatusLost Status = "lost"
)

// IsTerminal reports whether no further guesses are accepted in this state.
func (s Status) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// StageCount is the number of hangman drawing stages after the empty gallows.
const StageCount = 6

var (
	// ErrInvalidWord is returned when a secret word is empty or not made of letters.
	ErrInvalidWord = errors.New("invalid word")
	// ErrInvalidAttempts is returned when a game is started with fewer than one attempt.
	ErrInvalidAttempts = errors.New("max attempts must be positive")
	// ErrInvalidGuess is returned for empty or non-letter guesses.
	ErrInvalidGuess = errors.New("invalid guess")
	// ErrDuplicateGuess signals a letter that was already tried. The session is unchanged.
	ErrDuplicateGuess = errors.New("letter already guessed")
	// ErrGameOver is returned when guessing after the game has been won or lost.
	ErrGameOver = errors.New("game is over")
)

// LetterSet is a set of the lowercase letters a..z.
type LetterSet uint32

// Add returns the set with letter added.
func (s LetterSet) Add(letter rune) LetterSet {
	return s | 1<<(letter-'a')
}

// Has reports whether letter is in the set.
func (s LetterSet) Has(letter rune) bool {
	if letter < 'a' || letter > 'z' {
		return false
	}
	return s&(1<<(letter-'a')) != 0
}

// Len returns the number of letters in the set.
func (s LetterSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Letters returns the letters in alphabetical order.
func (s LetterSet) Letters() []rune {
	letters := make([]rune, 0, s.Len())
	for r := 'a'; r <= 'z'; r++ {
		if s.Has(r) {
			letters = append(letters, r)
		}
	}
	return letters
}

// String returns the letters as one alphabetical string.
func (s LetterSet) String() string {
	return string(s.Letters())
}

// ParseLetterSet builds a set from a string of letters, ignoring anything else.
func ParseLetterSet(letters string) LetterSet {
	var s LetterSet
	for _, r := range strings.ToLower(letters) {
		if r >= 'a' && r <= 'z' {
			s = s.Add(r)
		}
	}
	return s
}

// Session is one hangman game. It is a value: every transition returns an
// updated copy and leaves the receiver untouched.
type Session struct {
	ID                string
	SecretWord        string
	Guessed           LetterSet
	Wrong             []rune
	RemainingAttempts int
	MaxAttempts       int
	Status            Status
}

// StartGame creates an in-progress session for word.
func StartGame(word string, maxAttempts int) (Session, error) {
	normalized, ok := normalizeWord(word)
	if !ok {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidWord, word)
	}
	if maxAttempts < 1 {
		return Session{}, fmt.Errorf("%w: %d", ErrInvalidAttempts, maxAttempts)
	}

	return Session{
		SecretWord:        normalized,
		RemainingAttempts: maxAttempts,
		MaxAttempts:       maxAttempts,
		Status:            StatusInProgress,
	}, nil
}

// GuessLetter applies a single-letter guess.
func (s Session) GuessLetter(letter rune) (Session, error) {
	if s.Status.IsTerminal() {
		return s, ErrGameOver
	}

	letter = toLowerASCII(letter)
	if letter < 'a' || letter > 'z' {
		return s, fmt.Errorf("%w: %q is not a letter", ErrInvalidGuess, letter)
	}
	if s.Guessed.Has(letter) {
		return s, fmt.Errorf("%w: %q", ErrDuplicateGuess, letter)
	}

	next := s
	next.Guessed = s.Guessed.Add(letter)
	if !strings.ContainsRune(s.SecretWord, letter) {
		next.Wrong = append(append(make([]rune, 0, len(s.Wrong)+1), s.Wrong...), letter)
		next.RemainingAttempts--
	}
	next.Status = next.evaluate()
	return next, nil
}

// GuessWord applies a whole-word guess. A match wins the game and reveals every
// letter; a miss costs one attempt.
func (s Session) GuessWord(candidate string) (Session, error) {
	if s.Status.IsTerminal() {
		return s, ErrGameOver
	}

	normalized, ok := normalizeWord(candidate)
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrInvalidGuess, candidate)
	}

	next := s
	if normalized == s.SecretWord {
		next.Guessed = s.Guessed | ParseLetterSet(s.SecretWord)
		next.Status = StatusWon
		return next, nil
	}

	next.RemainingAttempts--
	next.Status = next.evaluate()
	return next, nil
}

func (s Session) evaluate() Status {
	if s.solved() {
		return StatusWon
	}
	if s.RemainingAttempts <= 0 {
		return StatusLost
	}
	return StatusInProgress
}

func (s Session) solved() bool {
	for _, r := range s.SecretWord {
		if !s.Guessed.Has(r) {
			return false
		}
	}
	return true
}

// IsOver reports whether the session reached a terminal status.
func (s Session) IsOver() bool {
	return s.Status.IsTerminal()
}

// Revealed returns the secret word with unguessed letters replaced by '_'.
func (s Session) Revealed() string {
	var b strings.Builder
	b.Grow(len(s.SecretWord))
	for _, r := range s.SecretWord {
		if s.Guessed.Has(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Masked returns Revealed with a space between letters, e.g. "_ a _ _ e".
func (s Session) Masked() string {
	revealed := s.Revealed()
	parts := make([]string, 0, len(revealed))
	for _, r := range revealed {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}

// Stage maps used attempts onto the 0..StageCount hangman drawing.
func (s Session) Stage() int {
	if s.MaxAttempts <= 0 {
		return 0
	}
	used := s.MaxAttempts - s.RemainingAttempts
	if used <= 0 {
		return 0
	}
	if s.RemainingAttempts <= 0 {
		return StageCount
	}
	stage := used * StageCount / s.MaxAttempts
	if stage == 0 {
		stage = 1
	}
	return stage
}

// Tried returns every guessed letter in alphabetical order.
func (s Session) Tried() []rune {
	return s.Guessed.Letters()
}

func normalizeWord(word string) (string, bool) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range word {
		r = toLowerASCII(r)
		if r < 'a' || r > 'z' {
			return "", false
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

func toLowerASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
