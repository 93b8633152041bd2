package concierge

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/server/ai"
	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/store"
	"github.com/rasphia/rasphia/store/storetest"
)

const testEmbeddingModel = "test-embedding"

type stubGenerator struct {
	response string
	err      error
	calls    [][]ai.Message
}

func (s *stubGenerator) CompleteJSON(ctx context.Context, messages []ai.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type engineFixture struct {
	driver    *storetest.Driver
	store     *store.Store
	generator *stubGenerator
	engine    *Engine
}

func newEngineFixture(t *testing.T, generator *stubGenerator) *engineFixture {
	t.Helper()
	driver := storetest.NewDriver()
	st := store.New(driver, &profile.Profile{})
	t.Cleanup(func() { _ = st.Close() })

	retriever := NewRetriever(&stubEmbedder{vector: []float32{1, 0}}, st, RetrieverConfig{
		Model: testEmbeddingModel,
	})
	engine := NewEngine(st, retriever, generator, EngineConfig{})
	return &engineFixture{driver: driver, store: st, generator: generator, engine: engine}
}

func (f *engineFixture) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	seed := []struct {
		name   string
		vector []float32
	}{
		{"Rose Water Toner", []float32{1, 0}},
		{"Amber Candle", []float32{0.9, 0.1}},
		{"Vetiver Cologne", []float32{0.5, 0.5}},
	}
	for _, s := range seed {
		p, err := f.store.CreateProduct(ctx, &store.Product{
			UID:         "uid-" + s.name,
			Name:        s.name,
			Description: "test product",
		})
		require.NoError(t, err)
		_, err = f.store.UpsertProductEmbedding(ctx, &store.ProductEmbedding{
			ProductID: p.ID,
			Model:     testEmbeddingModel,
			Embedding: s.vector,
		})
		require.NoError(t, err)
	}
}

func (f *engineFixture) messages(t *testing.T, sessionID int32) []*store.ChatMessage {
	t.Helper()
	list, err := f.store.ListChatMessages(context.Background(), &store.FindChatMessage{SessionID: &sessionID})
	require.NoError(t, err)
	return list
}

func TestProcessTurnHappyPath(t *testing.T) {
	generator := &stubGenerator{
		response: `{"response": "The toner is a lovely start. Want something richer too?", "products": ["Rose Water Toner", "Amber Candle"]}`,
	}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)

	result, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "something gentle for dry skin",
		Title:    "Dry skin picks",
	})
	require.NoError(t, err)
	require.False(t, result.Degraded)
	require.NotEmpty(t, result.Session.UID)
	require.Equal(t, "Dry skin picks", result.Session.Title)

	require.Len(t, result.Reply.Products, 2)
	require.Equal(t, "Rose Water Toner", result.Reply.Products[0].Name)
	require.Equal(t, "Amber Candle", result.Reply.Products[1].Name)

	persisted := f.messages(t, result.Session.ID)
	require.Len(t, persisted, 2)
	require.Equal(t, store.ChatMessageRoleUser, persisted[0].Role)
	require.Equal(t, "something gentle for dry skin", persisted[0].Content)
	require.Equal(t, store.ChatMessageRoleAssistant, persisted[1].Role)
	require.Equal(t, result.Reply.Text, persisted[1].Content)
}

func TestProcessTurnEmptyText(t *testing.T) {
	f := newEngineFixture(t, &stubGenerator{})

	_, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "  ",
	})
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeEmptyQuery))

	sessions, listErr := f.store.ListChatSessions(context.Background(), &store.FindChatSession{})
	require.NoError(t, listErr)
	require.Empty(t, sessions)
}

func TestProcessTurnUnknownSession(t *testing.T) {
	f := newEngineFixture(t, &stubGenerator{})

	_, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		SessionUID: "missing",
		OwnerKey:   "ana@example.com",
		UserText:   "hello",
	})
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
}

func TestProcessTurnSessionOwnershipEnforced(t *testing.T) {
	generator := &stubGenerator{response: `{"response": "Noted. What else?", "products": []}`}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)

	first, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "candles please",
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessTurn(context.Background(), &TurnRequest{
		SessionUID: first.Session.UID,
		OwnerKey:   "mallory@example.com",
		UserText:   "show me ana's chat",
	})
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
}

func TestProcessTurnNoMatch(t *testing.T) {
	generator := &stubGenerator{response: `should never be called`}
	f := newEngineFixture(t, generator)

	result, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "a yacht",
	})
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, noMatchReplyText, result.Reply.Text)
	require.Empty(t, result.Reply.Products)
	require.Empty(t, generator.calls)

	persisted := f.messages(t, result.Session.ID)
	require.Len(t, persisted, 2)
	require.Equal(t, noMatchReplyText, persisted[1].Content)
}

func TestProcessTurnGenerationFailureKeepsUserMessage(t *testing.T) {
	generator := &stubGenerator{err: errors.New("model overloaded")}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)

	result, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "candles please",
	})
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, unavailableReplyText, result.Reply.Text)
	require.Nil(t, result.AssistantMessage)

	persisted := f.messages(t, result.Session.ID)
	require.Len(t, persisted, 1)
	require.Equal(t, store.ChatMessageRoleUser, persisted[0].Role)
}

func TestProcessTurnRetrievalFailureKeepsUserMessage(t *testing.T) {
	generator := &stubGenerator{response: `unused`}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)
	f.driver.VectorSearchErr = errors.New("index offline")

	result, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "candles please",
	})
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, unavailableReplyText, result.Reply.Text)
	require.Empty(t, generator.calls)

	persisted := f.messages(t, result.Session.ID)
	require.Len(t, persisted, 1)
}

func TestProcessTurnMalformedGenerationPersistsClarification(t *testing.T) {
	generator := &stubGenerator{response: `sure! here are my picks`}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)

	result, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "candles please",
	})
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, clarificationReplyText, result.Reply.Text)

	persisted := f.messages(t, result.Session.ID)
	require.Len(t, persisted, 2)
	require.Equal(t, clarificationReplyText, persisted[1].Content)
}

func TestProcessTurnPersistenceFailurePropagates(t *testing.T) {
	generator := &stubGenerator{
		response: `{"response": "Here you go. More?", "products": ["Amber Candle"]}`,
	}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)
	f.driver.CreateChatMessageErr = errors.New("disk full")

	_, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "candles please",
	})
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodePersistenceUnavailable))
}

func TestProcessTurnCarriesHistoryIntoPrompt(t *testing.T) {
	generator := &stubGenerator{
		response: `{"response": "Then the candle it is. Gift wrapped?", "products": ["Amber Candle"]}`,
	}
	f := newEngineFixture(t, generator)
	f.seedCatalog(t)

	first, err := f.engine.ProcessTurn(context.Background(), &TurnRequest{
		OwnerKey: "ana@example.com",
		UserText: "a cozy housewarming gift",
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessTurn(context.Background(), &TurnRequest{
		SessionUID: first.Session.UID,
		OwnerKey:   "ana@example.com",
		UserText:   "under two thousand rupees",
	})
	require.NoError(t, err)

	require.Len(t, generator.calls, 2)
	secondPrompt := generator.calls[1][1].Content
	require.Contains(t, secondPrompt, "User: a cozy housewarming gift")
	require.Contains(t, secondPrompt, "User: under two thousand rupees")
}
