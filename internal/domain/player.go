// Package domain contains core domain types for the hangman server.
package domain

import (
	"time"
)

// Player is an anonymous per-device player.
type Player struct {
	PlayerID   string    `json:"player_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the player has been inactive as of now.
// Returns 0 if the player was seen in the future relative to now.
func (p *Player) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(p.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
