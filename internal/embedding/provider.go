// Package embedding turns job and resume text into fixed-length vectors.
package embedding

import (
	"context"
)

// Provider embeds text. Implementations must return vectors of
// types.EmbeddingDimension entries; failures are treated as retryable.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f(ctx, text)
func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// truncateRunes shortens s to at most limit runes
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
