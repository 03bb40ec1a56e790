// Package service implements the chat session orchestration and
// retrieval-augmented generation pipeline.
package service

import (
	"sync"

	"github.com/doctalk/doctalk/internal/adapter/embedding"
	"github.com/doctalk/doctalk/internal/adapter/llm"
	"github.com/doctalk/doctalk/internal/config"
	"github.com/doctalk/doctalk/internal/vectorstore"
	"github.com/doctalk/doctalk/policy"
)

// DefaultSystemPrompt is used when a session is started without a custom
// system prompt.
const DefaultSystemPrompt = `You are a helpful and precise assistant.
Use only the provided context to answer questions.
If you cannot find the answer in the context, say honestly that you do not know. Never make up information.
Always answer in the same language as the user's question.`

type Service struct {
	store        vectorstore.Store
	embedder     embedding.Embedder
	generator    llm.Generator
	policyEngine *policy.Engine
	config       *config.Config

	// Process-local system prompt cache. The durable copy lives in the
	// session record.
	promptsMu sync.RWMutex
	prompts   map[string]string

	// Per-session write serialization.
	locks sync.Map // session id -> *sync.Mutex
}

func New(store vectorstore.Store, embedder embedding.Embedder, generator llm.Generator, policyEngine *policy.Engine, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		embedder:     embedder,
		generator:    generator,
		policyEngine: policyEngine,
		config:       cfg,
		prompts:      make(map[string]string),
	}
}

// sessionLock returns the mutex serializing writes for a session.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
