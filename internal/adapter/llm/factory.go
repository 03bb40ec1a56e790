package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "DOCTALK_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewGenerator creates a Generator based on the DOCTALK_MODE environment
// variable. If DOCTALK_MODE=MOCK, returns a MockGenerator; otherwise returns
// a real Ollama client.
func NewGenerator(baseURL, model string, timeout time.Duration) Generator {
	if os.Getenv(EnvMode) == ModeMock {
		log.Println("DOCTALK_MODE=MOCK detected, using mock generator")
		return NewMockGenerator()
	}
	return NewClient(baseURL, model, timeout)
}
