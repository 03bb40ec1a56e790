package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
	"github.com/doctalk/doctalk/policy"
)

// contextSeparator joins retrieved chunk texts inside the prompt.
const contextSeparator = "\n\n---\n\n"

// SendMessage runs one chat turn: resolve the session, retrieve context, load
// history, compose the prompt, generate, then persist the user and assistant
// turns. A persistence failure after generation is reported to the caller and
// not compensated.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string, k int) (*domain.ChatResult, error) {
	if k <= 0 {
		k = s.config.DefaultK
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	collectionName, err := s.ResolveCollection(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.policyEngine != nil {
		decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
			CollectionName: collectionName,
			K:              k,
			MessageLength:  len(message),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate chat policy: %w", err)
		}
		if decision == policy.DecisionBlock {
			return nil, fmt.Errorf("%w: message rejected", domain.ErrPolicyBlocked)
		}
	}

	chunks, err := s.Retrieve(ctx, collectionName, message, k)
	if err != nil {
		return nil, err
	}
	contextBlock := renderContext(chunks)

	turns, err := s.loadTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	historyBlock := renderHistory(turns, s.config.MaxHistoryTurns)

	prompt := composePrompt(s.systemPrompt(ctx, sessionID), contextBlock, historyBlock, message)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	userAt := time.Now().UTC()
	if err := s.persistTurn(ctx, sessionID, collectionName, domain.RoleUser, message, userAt); err != nil {
		return nil, err
	}
	assistantAt := time.Now().UTC()
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Nanosecond)
	}
	if err := s.persistTurn(ctx, sessionID, collectionName, domain.RoleAssistant, answer, assistantAt); err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if src := c.Source(); src != "" {
			sources = append(sources, src)
		}
	}
	return &domain.ChatResult{Answer: answer, Sources: sources}, nil
}

// GetSessionHistory returns the session's full turn list sorted ascending by
// timestamp. A session with no turns yields an empty list, not an error.
func (s *Service) GetSessionHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	return s.loadTurns(ctx, sessionID)
}

func (s *Service) loadTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	records, err := s.store.GetByMetadata(ctx, s.config.ChatCollection,
		map[string]string{metaSessionID: sessionID, metaKind: kindTurn})
	if isMissingCollection(err) {
		return []domain.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(records))
	for _, r := range records {
		ts, err := time.Parse(time.RFC3339Nano, r.Metadata[metaTimestamp])
		if err != nil {
			return nil, fmt.Errorf("failed to parse turn timestamp %q: %w", r.Metadata[metaTimestamp], err)
		}
		turns = append(turns, domain.Turn{
			ID:        r.ID,
			SessionID: sessionID,
			Role:      domain.Role(r.Metadata[metaRole]),
			Content:   r.Text,
			Timestamp: ts,
		})
	}
	// Storage order is not trusted; order by timestamp, user before assistant
	// on the (theoretical) tie.
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].Timestamp.Equal(turns[j].Timestamp) {
			return turns[i].Role == domain.RoleUser && turns[j].Role == domain.RoleAssistant
		}
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns, nil
}

func (s *Service) persistTurn(ctx context.Context, sessionID, collectionName string, role domain.Role, content string, at time.Time) error {
	if err := s.ensureChatCollection(ctx); err != nil {
		return err
	}
	vectors, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return err
	}
	record := vectorstore.Record{
		ID:     uuid.New().String(),
		Vector: vectors[0],
		Text:   content,
		Metadata: map[string]string{
			metaKind:       kindTurn,
			metaSessionID:  sessionID,
			metaCollection: collectionName,
			metaRole:       string(role),
			metaTimestamp:  at.Format(time.RFC3339Nano),
		},
	}
	if err := s.store.Upsert(ctx, s.config.ChatCollection, []vectorstore.Record{record}); err != nil {
		return fmt.Errorf("failed to persist %s turn: %w", role, err)
	}
	return nil
}

func renderContext(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, contextSeparator)
}

func renderHistory(turns []domain.Turn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		label := "User"
		if t.Role == domain.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// composePrompt assembles the prompt in fixed order, omitting empty sections
// so fresh sessions get minimal prompts.
func composePrompt(systemPrompt, contextBlock, historyBlock, message string) string {
	parts := []string{systemPrompt}
	if contextBlock != "" {
		parts = append(parts, "\nRelevant context:\n"+contextBlock)
	}
	if historyBlock != "" {
		parts = append(parts, "\nConversation history:\n"+historyBlock)
	}
	parts = append(parts, "\nUser: "+message, "Assistant:")
	return strings.Join(parts, "\n")
}
