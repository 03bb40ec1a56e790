package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctalk/doctalk/internal/adapter/embedding"
	"github.com/doctalk/doctalk/internal/config"
	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
	"github.com/doctalk/doctalk/internal/vectorstore/sqlite"
	"github.com/doctalk/doctalk/policy"
)

type fakeGenerator struct {
	response string
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.response != "" {
		return f.response, nil
	}
	return "ok", nil
}

func newTestService(t *testing.T, gen *fakeGenerator) *Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		ChatCollection:  "chat_history",
		DefaultK:        4,
		MaxHistoryTurns: 20,
	}
	return New(store, embedding.NewMockEmbedder(), gen, nil, cfg)
}

func seedCollection(t *testing.T, svc *Service, name string, docs ...domain.DocumentInput) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.CreateCollection(ctx, name, nil))
	if len(docs) > 0 {
		_, err := svc.AddDocuments(ctx, name, docs, 0, 0)
		require.NoError(t, err)
	}
}

func TestStartSessionUnknownCollection(t *testing.T) {
	svc := newTestService(t, &fakeGenerator{})

	_, err := svc.StartSession(context.Background(), "nonexistent-collection", "")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestStartSessionResolvableBeforeFirstTurn(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})
	seedCollection(t, svc, "docs")

	session, err := svc.StartSession(ctx, "docs", "Answer tersely.")
	require.NoError(t, err)

	// The session record makes an empty session resolvable.
	name, err := svc.ResolveCollection(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "docs", name)
	assert.Equal(t, "Answer tersely.", svc.systemPrompt(ctx, session.SessionID))
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc := newTestService(t, &fakeGenerator{})

	_, err := svc.SendMessage(context.Background(), "no-such-session", "hello", 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSendMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{response: "Paris is the capital of France."}
	svc := newTestService(t, gen)
	seedCollection(t, svc, "docs", domain.DocumentInput{
		Content:  "Paris is the capital of France.",
		Metadata: map[string]string{"source": "geo.txt"},
	})

	session, err := svc.StartSession(ctx, "docs", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(ctx, session.SessionID, "What is the capital of France?", 1)
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "Paris")
	assert.Equal(t, []string{"geo.txt"}, result.Sources)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Relevant context:")
	assert.Contains(t, gen.prompts[0], "Paris is the capital of France.")
	assert.Contains(t, gen.prompts[0], "User: What is the capital of France?")

	turns, err := svc.GetSessionHistory(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "What is the capital of France?", turns[0].Content)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Paris is the capital of France.", turns[1].Content)
}

func TestHistoryOrderedByTimestampNotStorageOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Written out of order on purpose.
	require.NoError(t, svc.persistTurn(ctx, "s1", "docs", domain.RoleAssistant, "second", base.Add(2*time.Second)))
	require.NoError(t, svc.persistTurn(ctx, "s1", "docs", domain.RoleUser, "first", base.Add(time.Second)))
	require.NoError(t, svc.persistTurn(ctx, "s1", "docs", domain.RoleUser, "third", base.Add(3*time.Second)))

	turns, err := svc.GetSessionHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	assert.Equal(t, "third", turns[2].Content)
}

func TestSessionIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})

	now := time.Now().UTC()
	require.NoError(t, svc.persistTurn(ctx, "a", "docs", domain.RoleUser, "for a", now))
	require.NoError(t, svc.persistTurn(ctx, "b", "docs", domain.RoleUser, "for b", now))

	turns, err := svc.GetSessionHistory(ctx, "b")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "for b", turns[0].Content)
}

func TestEmptyContextOmitsBlock(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)
	seedCollection(t, svc, "empty")

	session, err := svc.StartSession(ctx, "empty", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(ctx, session.SessionID, "anything in here?", 0)
	require.NoError(t, err)
	assert.Empty(t, result.Sources)

	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0], "Relevant context:")
	assert.NotContains(t, gen.prompts[0], "Conversation history:")
}

func TestDeleteSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})
	seedCollection(t, svc, "docs")

	session, err := svc.StartSession(ctx, "docs", "")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, session.SessionID, "hello", 0)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, session.SessionID))
	require.NoError(t, svc.DeleteSession(ctx, session.SessionID))
	// Deleting a session that never existed succeeds too.
	require.NoError(t, svc.DeleteSession(ctx, "never-created"))

	turns, err := svc.GetSessionHistory(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistoryCappedInPrompt(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)
	svc.config.MaxHistoryTurns = 2
	seedCollection(t, svc, "docs")

	session, err := svc.StartSession(ctx, "docs", "")
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, svc.persistTurn(ctx, session.SessionID, "docs", domain.RoleUser, "oldest question", base))
	require.NoError(t, svc.persistTurn(ctx, session.SessionID, "docs", domain.RoleAssistant, "middle answer", base.Add(time.Second)))
	require.NoError(t, svc.persistTurn(ctx, session.SessionID, "docs", domain.RoleUser, "newest question", base.Add(2*time.Second)))

	_, err = svc.SendMessage(ctx, session.SessionID, "and now?", 0)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0], "oldest question")
	assert.Contains(t, gen.prompts[0], "middle answer")
	assert.Contains(t, gen.prompts[0], "newest question")

	// The full history is still returned uncapped.
	turns, err := svc.GetSessionHistory(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 5)
}

func TestPolicyBlocksMessage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	svc.policyEngine = engine
	seedCollection(t, svc, "docs")

	session, err := svc.StartSession(ctx, "docs", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, session.SessionID, "hello", 51)
	assert.ErrorIs(t, err, domain.ErrPolicyBlocked)

	_, err = svc.SendMessage(ctx, session.SessionID, "hello", 5)
	assert.NoError(t, err)
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{})
	seedCollection(t, svc, "docs",
		domain.DocumentInput{Content: "Paris is the capital of France."},
		domain.DocumentInput{Content: "Bananas are yellow tropical fruit."},
	)

	chunks, err := svc.Retrieve(ctx, "docs", "What is the capital of France?", 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "Paris")
	assert.LessOrEqual(t, chunks[0].Score, chunks[1].Score)
}

func TestRetrieveUnknownCollection(t *testing.T) {
	svc := newTestService(t, &fakeGenerator{})

	_, err := svc.Retrieve(context.Background(), "nope", "query", 3)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

// failingStore wraps a Store and fails Upsert on demand, simulating a
// persistence failure after generation already happened.
type failingStore struct {
	vectorstore.Store
	failUpsert bool
}

var errUpsert = errors.New("disk full")

func (f *failingStore) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	if f.failUpsert {
		return errUpsert
	}
	return f.Store.Upsert(ctx, collection, records)
}

func TestPersistenceFailureSurfacesAfterGeneration(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)
	seedCollection(t, svc, "docs")

	session, err := svc.StartSession(ctx, "docs", "")
	require.NoError(t, err)

	fs := &failingStore{Store: svc.store}
	svc.store = fs
	fs.failUpsert = true

	_, err = svc.SendMessage(ctx, session.SessionID, "hello", 0)
	assert.ErrorIs(t, err, errUpsert)
	// Generation ran; the turn is simply not durable.
	assert.Len(t, gen.prompts, 1)

	fs.failUpsert = false
	turns, err := svc.GetSessionHistory(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestComposePromptSectionOrder(t *testing.T) {
	prompt := composePrompt("SYS", "CTX", "HIST", "question")
	assert.Equal(t, "SYS\n\nRelevant context:\nCTX\n\nConversation history:\nHIST\n\nUser: question\nAssistant:", prompt)

	minimal := composePrompt("SYS", "", "", "question")
	assert.Equal(t, "SYS\n\nUser: question\nAssistant:", minimal)
}
