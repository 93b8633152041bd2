// Package v1 exposes the HTTP API surface of the concierge.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/server/concierge"
	"github.com/rasphia/rasphia/server/middleware"
	"github.com/rasphia/rasphia/store"
)

// HeaderOwnerKey identifies the calling account. The gateway in front of
// this service authenticates the caller and injects the header.
const HeaderOwnerKey = "X-Owner-Key"

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Engine  *concierge.Engine

	limiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, engine *concierge.Engine) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Engine:  engine,
		limiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{}),
	}
}

// Register mounts all v1 routes on the given echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())
	group.Use(s.limiter.Echo(func(c echo.Context) string {
		return c.Request().Header.Get(HeaderOwnerKey)
	}))

	group.POST("/chat/turns", s.CreateChatTurn)
	group.GET("/chat/sessions", s.ListChatSessions)
	group.GET("/chat/sessions/:uid/messages", s.ListChatMessages)
	group.PATCH("/chat/sessions/:uid", s.UpdateChatSession)
	group.DELETE("/chat/sessions/:uid", s.DeleteChatSession)
	group.GET("/products/:name", s.GetProduct)
}

// ownerKey extracts the authenticated account key, or fails the request.
func ownerKey(c echo.Context) (string, error) {
	key := c.Request().Header.Get(HeaderOwnerKey)
	if key == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing owner key")
	}
	return key, nil
}
