package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
)

// Metadata keys for records in the chat-history collection.
const (
	metaKind       = "kind"
	metaSessionID  = "sessionId"
	metaCollection = "collectionName"
	metaRole       = "role"
	metaTimestamp  = "timestamp"
	metaPrompt     = "systemPrompt"

	kindSession = "session"
	kindTurn    = "turn"
)

// StartSession creates a session bound to an existing document collection and
// persists a session record so the binding and system prompt survive restarts.
func (s *Service) StartSession(ctx context.Context, collectionName, systemPrompt string) (*domain.Session, error) {
	exists, err := s.store.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collectionName)
	}

	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	session := &domain.Session{
		SessionID:      uuid.New().String(),
		CollectionName: collectionName,
		SystemPrompt:   systemPrompt,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.ensureChatCollection(ctx); err != nil {
		return nil, err
	}
	vectors, err := s.embedder.Embed(ctx, []string{systemPrompt})
	if err != nil {
		return nil, err
	}
	record := vectorstore.Record{
		ID:     session.SessionID,
		Vector: vectors[0],
		Text:   systemPrompt,
		Metadata: map[string]string{
			metaKind:       kindSession,
			metaSessionID:  session.SessionID,
			metaCollection: collectionName,
			metaPrompt:     systemPrompt,
			metaTimestamp:  session.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := s.store.Upsert(ctx, s.config.ChatCollection, []vectorstore.Record{record}); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.promptsMu.Lock()
	s.prompts[session.SessionID] = systemPrompt
	s.promptsMu.Unlock()

	return session, nil
}

// ResolveCollection resolves a session to its bound collection name. The
// session record is consulted first; turn metadata covers histories written
// before session records existed.
func (s *Service) ResolveCollection(ctx context.Context, sessionID string) (string, error) {
	records, err := s.store.GetByMetadata(ctx, s.config.ChatCollection,
		map[string]string{metaSessionID: sessionID})
	if isMissingCollection(err) {
		return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	for _, r := range records {
		if r.Metadata[metaKind] == kindSession && r.Metadata[metaCollection] != "" {
			return r.Metadata[metaCollection], nil
		}
	}
	for _, r := range records {
		if r.Metadata[metaCollection] != "" {
			return r.Metadata[metaCollection], nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
}

// DeleteSession deletes every record tagged with the session id. Deleting an
// unknown or already-empty session succeeds with zero effect.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	records, err := s.store.GetByMetadata(ctx, s.config.ChatCollection,
		map[string]string{metaSessionID: sessionID})
	if isMissingCollection(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session records: %w", err)
	}
	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		if err := s.store.Delete(ctx, s.config.ChatCollection, ids); err != nil {
			return fmt.Errorf("failed to delete session records: %w", err)
		}
	}

	s.promptsMu.Lock()
	delete(s.prompts, sessionID)
	s.promptsMu.Unlock()
	s.locks.Delete(sessionID)
	return nil
}

// systemPrompt returns the session's system prompt, reading through the
// process-local cache to the persisted session record.
func (s *Service) systemPrompt(ctx context.Context, sessionID string) string {
	s.promptsMu.RLock()
	prompt, ok := s.prompts[sessionID]
	s.promptsMu.RUnlock()
	if ok {
		return prompt
	}

	records, err := s.store.GetByMetadata(ctx, s.config.ChatCollection,
		map[string]string{metaSessionID: sessionID, metaKind: kindSession})
	if err == nil {
		for _, r := range records {
			if p := r.Metadata[metaPrompt]; p != "" {
				s.promptsMu.Lock()
				s.prompts[sessionID] = p
				s.promptsMu.Unlock()
				return p
			}
		}
	}
	return DefaultSystemPrompt
}

// isMissingCollection reports whether err means the chat-history collection
// has not been created yet.
func isMissingCollection(err error) bool {
	return errors.Is(err, domain.ErrCollectionNotFound)
}

// ensureChatCollection creates the chat-history collection on first use.
func (s *Service) ensureChatCollection(ctx context.Context) error {
	err := s.store.CreateCollection(ctx, s.config.ChatCollection, nil)
	if err != nil && !errors.Is(err, domain.ErrCollectionExists) {
		return fmt.Errorf("failed to ensure chat collection: %w", err)
	}
	return nil
}
