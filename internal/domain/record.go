package domain

import (
	"time"
)

// GameRecord is a finished session as it is persisted.
type GameRecord struct {
	GameID            string    `json:"game_id"`
	PlayerID          string    `json:"player_id"`
	Word              string    `json:"word"`
	Status            Status    `json:"status"`
	MaxAttempts       int       `json:"max_attempts"`
	RemainingAttempts int       `json:"remaining_attempts"`
	Guessed           string    `json:"guessed"`
	Wrong             string    `json:"wrong"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// NewGameRecord captures a finished session for playerID.
func NewGameRecord(playerID string, s Session, startedAt, finishedAt time.Time) *GameRecord {
	return &GameRecord{
		GameID:            s.ID,
		PlayerID:          playerID,
		Word:              s.SecretWord,
		Status:            s.Status,
		MaxAttempts:       s.MaxAttempts,
		RemainingAttempts: s.RemainingAttempts,
		Guessed:           s.Guessed.String(),
		Wrong:             string(s.Wrong),
		StartedAt:         startedAt,
		FinishedAt:        finishedAt,
	}
}

// PlayerStats summarizes a player's finished games.
type PlayerStats struct {
	Played        int     `json:"played"`
	Won           int     `json:"won"`
	Lost          int     `json:"lost"`
	WinRate       float64 `json:"win_rate"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

// ComputeStats builds stats from records ordered newest first.
func ComputeStats(records []*GameRecord) *PlayerStats {
	stats := &PlayerStats{}
	run := 0
	currentOpen := true
	for _, r := range records {
		stats.Played++
		if r.Status == StatusWon {
			stats.Won++
			run++
			if run > stats.BestStreak {
				stats.BestStreak = run
			}
			if currentOpen {
				stats.CurrentStreak++
			}
			continue
		}
		stats.Lost++
		run = 0
		currentOpen = false
	}
	if stats.Played > 0 {
		stats.WinRate = float64(stats.Won) / float64(stats.Played)
	}
	return stats
}
