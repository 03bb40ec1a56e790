package embedding

import (
	"log"
	"os"
	"time"

	"github.com/doctalk/doctalk/internal/adapter/llm"
)

// NewEmbedder creates an Embedder based on the DOCTALK_MODE environment
// variable. If DOCTALK_MODE=MOCK, returns a MockEmbedder; otherwise returns
// a real Ollama client.
func NewEmbedder(baseURL, model string, timeout time.Duration) Embedder {
	if os.Getenv(llm.EnvMode) == llm.ModeMock {
		log.Println("DOCTALK_MODE=MOCK detected, using mock embedder")
		return NewMockEmbedder()
	}
	return NewClient(baseURL, model, timeout)
}
