// Package embedding provides an abstraction for text embedding clients.
package embedding

import "context"

// Embedder turns text into fixed-dimension vectors. Implementations return
// one vector per input, order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ensure Client implements Embedder.
var _ Embedder = (*Client)(nil)
