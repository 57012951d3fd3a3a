package words

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
)

// EmbeddedSource picks words from an in-memory table. It never touches the network.
type EmbeddedSource struct {
	mu       sync.Mutex
	byLength map[int][]string
	pick     func(n int) int
}

// NewEmbeddedSource builds a source over table, or over the embedded
// common-word list when table is nil.
func NewEmbeddedSource(table FrequencyTable) *EmbeddedSource {
	if table == nil {
		table = DefaultFrequencyTable()
	}
	byLength := make(map[int][]string)
	for w := range table {
		byLength[len(w)] = append(byLength[len(w)], w)
	}
	for _, list := range byLength {
		sort.Strings(list)
	}
	return &EmbeddedSource{
		byLength: byLength,
		pick:     rand.IntN,
	}
}

// Word returns a random word of the given length.
func (s *EmbeddedSource) Word(ctx context.Context, length int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("%v", err)
	}
	list := s.byLength[length]
	if len(list) == 0 {
		return "", unavailable("no embedded words of length %d", length)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return list[s.pick(len(list))], nil
}

// Count returns how many words of the given length are available.
func (s *EmbeddedSource) Count(length int) int {
	return len(s.byLength[length])
}
