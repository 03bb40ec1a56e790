// Package llm provides an abstraction for text generation clients.
package llm

import "context"

// Generator defines the single-shot generation capability the chat
// orchestrator depends on. No streaming contract is required.
type Generator interface {
	// Generate produces a completion for the composed prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Ensure Client implements Generator.
var _ Generator = (*Client)(nil)
