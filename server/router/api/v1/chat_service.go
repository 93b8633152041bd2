package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rasphia/rasphia/server/concierge"
	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/server/internal/observability"
	"github.com/rasphia/rasphia/store"
)

type CreateChatTurnRequest struct {
	// SessionUID targets an existing session; empty starts a new one.
	SessionUID string `json:"sessionUid"`
	Text       string `json:"text"`
}

type ChatSessionResponse struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type ChatMessageResponse struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Payload   string `json:"payload"`
	CreatedTs int64  `json:"createdTs"`
}

type ChatTurnResponse struct {
	Session  *ChatSessionResponse       `json:"session"`
	Reply    string                     `json:"reply"`
	Products []*concierge.ProductRef    `json:"products"`
	Table    *concierge.ComparisonTable `json:"comparisonTable,omitempty"`
	Degraded bool                       `json:"degraded"`
}

// CreateChatTurn runs one conversation turn.
func (s *APIV1Service) CreateChatTurn(c echo.Context) error {
	owner, err := ownerKey(c)
	if err != nil {
		return err
	}

	var req CreateChatTurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	reqCtx := observability.NewRequestContext(slog.Default(), owner)
	ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)

	result, err := s.Engine.ProcessTurn(ctx, &concierge.TurnRequest{
		SessionUID: req.SessionUID,
		OwnerKey:   owner,
		UserText:   req.Text,
		Title:      AutoTitle(req.Text),
	})
	if err != nil {
		return turnHTTPError(err)
	}

	return c.JSON(http.StatusOK, &ChatTurnResponse{
		Session:  convertSession(result.Session),
		Reply:    result.Reply.Text,
		Products: result.Reply.Products,
		Table:    result.Reply.Table,
		Degraded: result.Degraded,
	})
}

// ListChatSessions returns the caller's sessions, most recent first. The
// optional q parameter filters by title or message content.
func (s *APIV1Service) ListChatSessions(c echo.Context) error {
	owner, err := ownerKey(c)
	if err != nil {
		return err
	}

	find := &store.FindChatSession{OwnerKey: &owner}
	if q := c.QueryParam("q"); q != "" {
		find.Search = &q
	}
	sessions, err := s.Store.ListChatSessions(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to list sessions")
	}

	out := make([]*ChatSessionResponse, len(sessions))
	for i, session := range sessions {
		out[i] = convertSession(session)
	}
	return c.JSON(http.StatusOK, out)
}

// ListChatMessages returns the full transcript of one session in order.
func (s *APIV1Service) ListChatMessages(c echo.Context) error {
	owner, err := ownerKey(c)
	if err != nil {
		return err
	}

	session, err := s.findOwnedSession(c, owner)
	if err != nil {
		return err
	}

	messages, err := s.Store.ListChatMessages(c.Request().Context(), &store.FindChatMessage{SessionID: &session.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to list messages")
	}

	out := make([]*ChatMessageResponse, len(messages))
	for i, m := range messages {
		out[i] = &ChatMessageResponse{
			UID:       m.UID,
			Role:      string(m.Role),
			Content:   m.Content,
			Payload:   m.Payload,
			CreatedTs: m.CreatedTs,
		}
	}
	return c.JSON(http.StatusOK, out)
}

type UpdateChatSessionRequest struct {
	Title string `json:"title"`
}

// UpdateChatSession renames a session.
func (s *APIV1Service) UpdateChatSession(c echo.Context) error {
	owner, err := ownerKey(c)
	if err != nil {
		return err
	}

	var req UpdateChatSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	session, err := s.findOwnedSession(c, owner)
	if err != nil {
		return err
	}

	updated, err := s.Store.UpdateChatSession(c.Request().Context(), &store.UpdateChatSession{
		ID:    session.ID,
		Title: &req.Title,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to update session")
	}
	return c.JSON(http.StatusOK, convertSession(updated))
}

// DeleteChatSession deletes a session and its transcript.
func (s *APIV1Service) DeleteChatSession(c echo.Context) error {
	owner, err := ownerKey(c)
	if err != nil {
		return err
	}

	session, err := s.findOwnedSession(c, owner)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteChatSession(c.Request().Context(), &store.DeleteChatSession{ID: session.ID}); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to delete session")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) findOwnedSession(c echo.Context, owner string) (*store.ChatSession, error) {
	uid := c.Param("uid")
	session, err := s.Store.GetChatSession(c.Request().Context(), &store.FindChatSession{
		UID:      &uid,
		OwnerKey: &owner,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "failed to load session")
	}
	if session == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return session, nil
}

func convertSession(session *store.ChatSession) *ChatSessionResponse {
	return &ChatSessionResponse{
		UID:       session.UID,
		Title:     session.Title,
		CreatedTs: session.CreatedTs,
		UpdatedTs: session.UpdatedTs,
	}
}

// turnHTTPError maps turn error codes to HTTP statuses.
func turnHTTPError(err error) *echo.HTTPError {
	switch apperr.CodeOf(err, "") {
	case apperr.ErrCodeEmptyQuery:
		return echo.NewHTTPError(http.StatusBadRequest, "message text is required")
	case apperr.ErrCodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case apperr.ErrCodePersistenceUnavailable,
		apperr.ErrCodeRetrievalUnavailable,
		apperr.ErrCodeGenerationUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
