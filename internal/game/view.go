package game

import (
	"github.com/ashureev/hangman/internal/domain"
)

// View is what the display sink shows for one session.
type View struct {
	GameID            string        `json:"game_id"`
	Masked            string        `json:"masked"`
	Revealed          string        `json:"revealed"`
	Length            int           `json:"length"`
	Status            domain.Status `json:"status"`
	RemainingAttempts int           `json:"remaining_attempts"`
	MaxAttempts       int           `json:"max_attempts"`
	Wrong             []string      `json:"wrong"`
	Tried             []string      `json:"tried"`
	Stage             int           `json:"stage"`
	Answer            string        `json:"answer,omitempty"`
	Warning           string        `json:"warning,omitempty"`
}

// NewView projects s for display. The answer is only included once the game is over.
func NewView(s domain.Session, warning string) View {
	v := View{
		GameID:            s.ID,
		Masked:            s.Masked(),
		Revealed:          s.Revealed(),
		Length:            len(s.SecretWord),
		Status:            s.Status,
		RemainingAttempts: s.RemainingAttempts,
		MaxAttempts:       s.MaxAttempts,
		Wrong:             letters(s.Wrong),
		Tried:             letters(s.Tried()),
		Stage:             s.Stage(),
		Warning:           warning,
	}
	if s.IsOver() {
		v.Answer = s.SecretWord
	}
	return v
}

func letters(rs []rune) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
