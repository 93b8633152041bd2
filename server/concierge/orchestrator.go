package concierge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/rasphia/rasphia/server/ai"
	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/server/internal/observability"
	"github.com/rasphia/rasphia/store"
)

// TurnState names the phases of a conversation turn, for logging.
type TurnState string

const (
	TurnStateReceived    TurnState = "RECEIVED"
	TurnStateRetrieving  TurnState = "RETRIEVING"
	TurnStateNoMatch     TurnState = "NO_MATCH"
	TurnStateGenerating  TurnState = "GENERATING"
	TurnStateReconciling TurnState = "RECONCILING"
	TurnStatePersisting  TurnState = "PERSISTING"
	TurnStateDone        TurnState = "DONE"
)

// Canned assistant texts for turns the engine cannot complete normally.
const (
	noMatchReplyText = "I couldn't find anything matching that yet — but tell me a bit more so I can refine your picks?"

	clarificationReplyText = "I wasn't able to put together a proper recommendation just now. Could you tell me a bit more about what you're looking for?"

	unavailableReplyText = "I'm having a little trouble reaching my catalog right now. Please try again in a moment?"
)

// Generator produces constrained JSON completions. *ai.Provider satisfies it.
type Generator interface {
	CompleteJSON(ctx context.Context, messages []ai.Message) (string, error)
}

// EngineConfig tunes the turn engine.
type EngineConfig struct {
	// TopK is the number of candidates handed to generation.
	TopK int
	// WindowSize is the maximum number of prior messages included in the
	// generation prompt.
	WindowSize int
	// GenerationTimeout bounds the generation call.
	GenerationTimeout time.Duration
	// PersistenceTimeout bounds the transcript append, which runs detached
	// from the request context so a client disconnect cannot half-persist
	// a turn.
	PersistenceTimeout time.Duration
}

// Engine runs complete conversation turns: retrieve, generate, reconcile,
// persist. It is safe for concurrent use.
type Engine struct {
	store      *store.Store
	retriever  *Retriever
	generator  Generator
	compiler   *PromptCompiler
	reconciler *Reconciler
	config     EngineConfig
}

// NewEngine creates a turn engine.
func NewEngine(st *store.Store, retriever *Retriever, generator Generator, config EngineConfig) *Engine {
	if config.TopK <= 0 {
		config.TopK = 8
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 12
	}
	if config.GenerationTimeout <= 0 {
		config.GenerationTimeout = 20 * time.Second
	}
	if config.PersistenceTimeout <= 0 {
		config.PersistenceTimeout = 5 * time.Second
	}
	return &Engine{
		store:      st,
		retriever:  retriever,
		generator:  generator,
		compiler:   NewPromptCompiler(),
		reconciler: NewReconciler(),
		config:     config,
	}
}

// TurnRequest is one user turn.
type TurnRequest struct {
	// SessionUID targets an existing session. Empty starts a new one.
	SessionUID string
	// OwnerKey identifies the account the session belongs to.
	OwnerKey string
	// UserText is the user's message.
	UserText string
	// Title names a newly created session. Ignored when SessionUID is set.
	Title string
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Session          *store.ChatSession
	UserMessage      *store.ChatMessage
	AssistantMessage *store.ChatMessage
	Reply            *Reply
	// Degraded reports that the assistant text is a fallback rather than a
	// grounded recommendation.
	Degraded bool
}

// ProcessTurn runs one full conversation turn.
//
// Transient retrieval and generation failures degrade: the user message is
// still persisted and the caller gets an apologetic reply, so the transcript
// never silently drops what the user said. Malformed generation output
// degrades into a persisted clarification. Persistence failures propagate;
// they are the one class the engine cannot paper over.
func (e *Engine) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	reqCtx, ok := observability.FromContext(ctx)
	if !ok {
		reqCtx = observability.NewRequestContext(slog.Default(), req.OwnerKey)
	}
	logState := func(state TurnState) {
		reqCtx.Debug("turn state",
			slog.String(observability.LogFieldState, string(state)),
			slog.String(observability.LogFieldSessionUID, req.SessionUID))
	}
	logState(TurnStateReceived)

	userText := strings.TrimSpace(req.UserText)
	if userText == "" {
		return nil, apperr.EmptyQuery("turn has no user text")
	}

	session, window, err := e.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	userMessage := &store.ChatMessage{
		UID:     shortuuid.New(),
		Role:    store.ChatMessageRoleUser,
		Content: userText,
		Payload: "{}",
	}

	logState(TurnStateRetrieving)
	candidates, err := e.retriever.Retrieve(ctx, userText, e.config.TopK)
	if err != nil {
		if apperr.IsCode(err, apperr.ErrCodeEmptyQuery) {
			return nil, err
		}
		reqCtx.Warn("retrieval failed, degrading turn",
			slog.String(observability.LogFieldErrorCode, string(apperr.CodeOf(err, apperr.ErrCodeRetrievalUnavailable))))
		return e.degradeUnavailable(ctx, session, userMessage)
	}
	reqCtx.Debug("candidates retrieved",
		slog.Int(observability.LogFieldCandidates, len(candidates)))

	if len(candidates) == 0 {
		logState(TurnStateNoMatch)
		return e.persistTurn(ctx, session, userMessage, &Reply{Text: noMatchReplyText}, true)
	}

	logState(TurnStateGenerating)
	raw, err := e.generate(ctx, window, userText, candidates)
	if err != nil {
		reqCtx.Warn("generation failed, degrading turn",
			slog.String(observability.LogFieldErrorCode, string(apperr.ErrCodeGenerationUnavailable)))
		return e.degradeUnavailable(ctx, session, userMessage)
	}

	logState(TurnStateReconciling)
	reply, err := e.reconciler.Reconcile(raw, candidates)
	if err != nil {
		reqCtx.Warn("generation output malformed, degrading turn",
			slog.String(observability.LogFieldErrorCode, string(apperr.ErrCodeMalformedGeneration)))
		return e.persistTurn(ctx, session, userMessage, &Reply{Text: clarificationReplyText}, true)
	}

	logState(TurnStatePersisting)
	result, err := e.persistTurn(ctx, session, userMessage, reply, false)
	if err != nil {
		return nil, err
	}

	logState(TurnStateDone)
	reqCtx.Info("turn complete",
		slog.String(observability.LogFieldSessionUID, result.Session.UID),
		slog.Int(observability.LogFieldCandidates, len(candidates)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return result, nil
}

// resolveSession loads the target session and its prompt window, or creates
// a fresh session when the request names none.
func (e *Engine) resolveSession(ctx context.Context, req *TurnRequest) (*store.ChatSession, []*store.ChatMessage, error) {
	if req.SessionUID == "" {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = "New chat"
		}
		session, err := e.store.CreateChatSession(ctx, &store.ChatSession{
			UID:      shortuuid.New(),
			OwnerKey: req.OwnerKey,
			Title:    title,
		}, nil)
		if err != nil {
			return nil, nil, apperr.PersistenceUnavailable("failed to create chat session", err)
		}
		return session, nil, nil
	}

	session, err := e.store.GetChatSession(ctx, &store.FindChatSession{
		UID:      &req.SessionUID,
		OwnerKey: &req.OwnerKey,
	})
	if err != nil {
		return nil, nil, apperr.PersistenceUnavailable("failed to load chat session", err)
	}
	if session == nil {
		return nil, nil, apperr.NotFound("chat session not found")
	}

	window, err := e.store.ListChatMessages(ctx, &store.FindChatMessage{SessionID: &session.ID})
	if err != nil {
		return nil, nil, apperr.PersistenceUnavailable("failed to load chat history", err)
	}
	if len(window) > e.config.WindowSize {
		window = window[len(window)-e.config.WindowSize:]
	}
	return session, window, nil
}

// generate runs the constrained generation call over the compiled prompt.
func (e *Engine) generate(ctx context.Context, window []*store.ChatMessage, userText string, candidates []*Candidate) (string, error) {
	full := make([]*store.ChatMessage, 0, len(window)+1)
	full = append(full, window...)
	full = append(full, &store.ChatMessage{
		Role:    store.ChatMessageRoleUser,
		Content: userText,
	})
	compiled := e.compiler.Compile(full, candidates)

	ctx, cancel := context.WithTimeout(ctx, e.config.GenerationTimeout)
	defer cancel()

	raw, err := e.generator.CompleteJSON(ctx, []ai.Message{
		{Role: "system", Content: compiled.System},
		{Role: "user", Content: compiled.Prompt},
	})
	if err != nil {
		return "", apperr.GenerationUnavailable("generation call failed", err)
	}
	return raw, nil
}

// persistTurn writes the user and assistant messages as one append and
// returns the completed result.
func (e *Engine) persistTurn(ctx context.Context, session *store.ChatSession, userMessage *store.ChatMessage, reply *Reply, degraded bool) (*TurnResult, error) {
	assistantMessage, err := BuildAssistantMessage(reply)
	if err != nil {
		return nil, apperr.PersistenceUnavailable("failed to encode reply payload", err)
	}
	assistantMessage.UID = shortuuid.New()

	persistCtx, cancel := e.persistContext(ctx)
	defer cancel()

	updated, err := e.store.AppendChatMessages(persistCtx, session.ID, userMessage, assistantMessage)
	if err != nil {
		return nil, apperr.PersistenceUnavailable("failed to append turn to transcript", err)
	}

	return &TurnResult{
		Session:          updated,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Reply:            reply,
		Degraded:         degraded,
	}, nil
}

// degradeUnavailable persists only the user message and returns an
// ephemeral apology. The apology is not part of the transcript so a retry
// of the same turn reads the same history.
func (e *Engine) degradeUnavailable(ctx context.Context, session *store.ChatSession, userMessage *store.ChatMessage) (*TurnResult, error) {
	persistCtx, cancel := e.persistContext(ctx)
	defer cancel()

	updated, err := e.store.AppendChatMessages(persistCtx, session.ID, userMessage)
	if err != nil {
		return nil, apperr.PersistenceUnavailable("failed to append user message", err)
	}

	return &TurnResult{
		Session:     updated,
		UserMessage: userMessage,
		Reply:       &Reply{Text: unavailableReplyText},
		Degraded:    true,
	}, nil
}

// persistContext detaches persistence from request cancellation while still
// bounding it.
func (e *Engine) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.config.PersistenceTimeout)
}
