package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator is a deterministic Generator for local development and tests.
type MockGenerator struct{}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Ensure MockGenerator implements Generator.
var _ Generator = (*MockGenerator)(nil)

// Generate echoes the last user line of the prompt back.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	lines := strings.Split(prompt, "\n")
	var lastUser string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "User: ") {
			lastUser = strings.TrimPrefix(lines[i], "User: ")
			break
		}
	}
	if lastUser == "" {
		return "[MOCK] This is a mock response.", nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUser, 100)), nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
