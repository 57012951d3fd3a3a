package game

import (
	"errors"

	"github.com/ashureev/hangman/internal/domain"
	"github.com/ashureev/hangman/internal/words"
)

// Error codes reported to clients.
const (
	CodeInvalidInput    = "invalid_input"
	CodeInvalidLength   = "invalid_length"
	CodeDuplicateGuess  = "duplicate_guess"
	CodeGameOver        = "game_over"
	CodeNoGame          = "no_game"
	CodeWordUnavailable = "word_unavailable"
	CodeInternal        = "internal"
)

// ErrorCode classifies err for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidGuess), errors.Is(err, domain.ErrInvalidWord):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidLength):
		return CodeInvalidLength
	case errors.Is(err, domain.ErrDuplicateGuess):
		return CodeDuplicateGuess
	case errors.Is(err, domain.ErrGameOver):
		return CodeGameOver
	case errors.Is(err, ErrNoGame):
		return CodeNoGame
	case errors.Is(err, words.ErrUnavailable):
		return CodeWordUnavailable
	default:
		return CodeInternal
	}
}

// ErrorMessage returns a user-facing message for err.
func ErrorMessage(err error) string {
	switch ErrorCode(err) {
	case CodeInvalidInput:
		return "Please enter letters only."
	case CodeInvalidLength:
		return err.Error()
	case CodeDuplicateGuess:
		return "That letter was already tried."
	case CodeGameOver:
		return "The game is over. Start a new game."
	case CodeNoGame:
		return "No game in progress. Start a new game."
	case CodeWordUnavailable:
		return "Could not fetch a word. Please try again."
	default:
		return "internal error"
	}
}
