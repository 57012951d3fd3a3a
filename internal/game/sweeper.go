package game

import (
	"context"
	"log/slog"
	"time"
)

// Sweep evicts slots idle for longer than ttl and returns how many were removed.
// Slots busy with a transition are skipped.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, s := range m.slots {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastActive.Before(cutoff) {
			s.evicted = true
			delete(m.slots, key)
			removed++
		}
		s.mu.Unlock()
	}
	return removed
}

// StartSweeper runs a background goroutine that periodically evicts idle
// slots and forgets expired used words until ctx is canceled.
func (m *Manager) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				m.sweepOnce(ctx, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (m *Manager) sweepOnce(ctx context.Context, ttl time.Duration) {
	if removed := m.Sweep(ttl); removed > 0 {
		slog.Info("Session sweeper evicted idle games", "count", removed, "remaining", m.Len())
	}

	if m.store == nil || m.cfg.UsedWordTTL <= 0 {
		return
	}
	purged, err := m.store.PurgeUsedWords(ctx, m.now().Add(-m.cfg.UsedWordTTL))
	if err != nil {
		slog.Error("Session sweeper failed to purge used words", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("Session sweeper purged used words", "count", purged)
	}
}
