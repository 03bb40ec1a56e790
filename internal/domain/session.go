// Package domain defines the core domain models for the chat service.
package domain

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session binds a chat session to a document collection.
type Session struct {
	SessionID      string    `json:"session_id"`
	CollectionName string    `json:"collection_name"`
	SystemPrompt   string    `json:"system_prompt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is a single message in a session's history. Turns are immutable once
// written; ordering is defined by Timestamp, not by storage order.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RetrievedChunk is a document chunk returned by similarity retrieval,
// computed per request and never persisted.
type RetrievedChunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Score is the store's distance measure; lower means more relevant.
	Score float64 `json:"score"`
}

// Source returns the chunk's source label, empty if none was attached at
// ingestion time.
func (c RetrievedChunk) Source() string {
	return c.Metadata["source"]
}

// ChatResult is the outcome of one successful message exchange.
type ChatResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// CollectionInfo describes a document collection.
type CollectionInfo struct {
	Name     string            `json:"name"`
	Count    int               `json:"count"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DocumentInput is a raw document submitted for ingestion.
type DocumentInput struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
