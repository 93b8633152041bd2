package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/server/ai"
	"github.com/rasphia/rasphia/server/concierge"
	"github.com/rasphia/rasphia/store"
	"github.com/rasphia/rasphia/store/storetest"
)

const testOwner = "ana@example.com"

type fixedEmbedder struct{}

func (fixedEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fixedGenerator struct {
	response string
}

func (g *fixedGenerator) CompleteJSON(ctx context.Context, messages []ai.Message) (string, error) {
	return g.response, nil
}

type serviceFixture struct {
	echo    *echo.Echo
	store   *store.Store
	service *APIV1Service
}

func newServiceFixture(t *testing.T, generatorResponse string) *serviceFixture {
	t.Helper()
	st := store.New(storetest.NewDriver(), &profile.Profile{})
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	p, err := st.CreateProduct(ctx, &store.Product{
		UID:         "p1",
		Name:        "Amber Candle",
		Description: "Slow-burn soy candle",
		Brand:       "Hearthline",
	})
	require.NoError(t, err)
	_, err = st.UpsertProductEmbedding(ctx, &store.ProductEmbedding{
		ProductID: p.ID,
		Model:     "test-embedding",
		Embedding: []float32{1, 0},
	})
	require.NoError(t, err)

	retriever := concierge.NewRetriever(fixedEmbedder{}, st, concierge.RetrieverConfig{Model: "test-embedding"})
	engine := concierge.NewEngine(st, retriever, &fixedGenerator{response: generatorResponse}, concierge.EngineConfig{})

	e := echo.New()
	service := NewAPIV1Service(&profile.Profile{}, st, engine)
	service.Register(e)
	return &serviceFixture{echo: e, store: st, service: service}
}

func (f *serviceFixture) do(t *testing.T, method, path, body string, withOwner bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if withOwner {
		req.Header.Set(HeaderOwnerKey, testOwner)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

const validGeneration = `{"response": "The amber candle is lovely. Gift wrapped?", "products": ["Amber Candle"]}`

func TestCreateChatTurnRequiresOwner(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "a candle"}`, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateChatTurnRejectsEmptyText(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "   "}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChatTurn(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "a cozy candle for the living room"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session.UID)
	require.Equal(t, "a cozy candle for the living room", resp.Session.Title)
	require.Equal(t, "The amber candle is lovely. Gift wrapped?", resp.Reply)
	require.Len(t, resp.Products, 1)
	require.Equal(t, "Amber Candle", resp.Products[0].Name)
	require.False(t, resp.Degraded)
}

func TestCreateChatTurnUnknownSession(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"sessionUid": "missing", "text": "hi"}`, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "a candle"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var turn ChatTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	uid := turn.Session.UID

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []*ChatSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, uid, sessions[0].UID)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions/"+uid+"/messages", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []*ChatMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 2)
	require.Equal(t, "USER", messages[0].Role)
	require.Equal(t, "ASSISTANT", messages[1].Role)

	rec = f.do(t, http.MethodPatch, "/api/v1/chat/sessions/"+uid, `{"title": "Candle hunt"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed ChatSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renamed))
	require.Equal(t, "Candle hunt", renamed.Title)

	rec = f.do(t, http.MethodDelete, "/api/v1/chat/sessions/"+uid, "", true)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions/"+uid+"/messages", "", true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChatSessionsFiltersByQuery(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "a candle for the hallway"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var candleTurn ChatTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candleTurn))

	rec = f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "perfume for my sister"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var perfumeTurn ChatTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perfumeTurn))

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions?q=perfume", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []*ChatSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, perfumeTurn.Session.UID, sessions[0].UID)

	// A renamed session is still found through its message content.
	rec = f.do(t, http.MethodPatch, "/api/v1/chat/sessions/"+candleTurn.Session.UID, `{"title": "Gift hunt"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions?q=hallway", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, candleTurn.Session.UID, sessions[0].UID)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/sessions?q=typewriter", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Empty(t, sessions)
}

func TestSessionsAreOwnerScoped(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/turns", `{"text": "a candle"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var turn ChatTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions/"+turn.Session.UID+"/messages", nil)
	req.Header.Set(HeaderOwnerKey, "mallory@example.com")
	other := httptest.NewRecorder()
	f.echo.ServeHTTP(other, req)
	require.Equal(t, http.StatusNotFound, other.Code)
}
