// Package words provides secret-word sources for new games.
package words

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when no word could be obtained. Callers may retry.
var ErrUnavailable = errors.New("word source unavailable")

// Source provides one lowercase secret word of the requested length.
type Source interface {
	Word(ctx context.Context, length int) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, length int) (string, error)

// Word calls f.
func (f SourceFunc) Word(ctx context.Context, length int) (string, error) {
	return f(ctx, length)
}

type chain []Source

// Chain tries each source in order and moves on only when a source reports
// ErrUnavailable. Any other error is returned as is.
func Chain(sources ...Source) Source {
	return chain(sources)
}

func (c chain) Word(ctx context.Context, length int) (string, error) {
	var errs []error
	for _, src := range c {
		word, err := src.Word(ctx, length)
		if err == nil {
			return word, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no sources configured", ErrUnavailable)
	}
	return "", errors.Join(errs...)
}

// Sanitize strips everything but ASCII letters and lowercases the rest.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
