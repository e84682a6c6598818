// Package embedding wraps external text-to-vector capabilities behind a
// gateway with lazy initialization, batching, content-fingerprint caching and
// per-text failure degradation.
package embedding

import "context"

// Provider is an external embedding capability: given text, produce a
// fixed-length numeric vector. Implementations must be deterministic for
// identical input, which is what makes embeddings cacheable by fingerprint.
type Provider interface {
	// Name identifies the provider and model; it is part of cache keys, so
	// switching models never reuses stale vectors.
	Name() string
	// Ready verifies the capability is reachable. Called once, lazily, on
	// first use rather than at construction.
	Ready(ctx context.Context) error
	// Embed maps text to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the expected vector length, used for neutral vectors
	// before the first successful embedding reveals the true length.
	Dimensions() int
}
