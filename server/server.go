// Package server wires the HTTP surface, the concierge engine and the
// background runners into one process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/server/ai"
	"github.com/rasphia/rasphia/server/concierge"
	apiv1 "github.com/rasphia/rasphia/server/router/api/v1"
	"github.com/rasphia/rasphia/server/runner/embedding"
	"github.com/rasphia/rasphia/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer      *echo.Echo
	embeddingRunner *embedding.Runner
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	if !profile.IsAIEnabled() {
		return nil, errors.New("AI provider is not configured, set RASPHIA_AI_API_KEY")
	}

	provider, err := ai.NewProvider(ai.NewConfigFromProfile(profile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AI provider")
	}

	retriever := concierge.NewRetriever(provider, store, concierge.RetrieverConfig{
		Model:    profile.AIEmbeddingModel,
		PoolSize: profile.CandidatePool,
		Timeout:  profile.EmbeddingTimeout,
	})
	engine := concierge.NewEngine(store, retriever, provider, concierge.EngineConfig{
		TopK:               profile.TopK,
		GenerationTimeout:  profile.GenerationTimeout,
		PersistenceTimeout: profile.PersistenceTimeout,
	})

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "Service ready.")
	})

	apiv1.NewAPIV1Service(profile, store, engine).Register(echoServer)

	return &Server{
		Profile:         profile,
		Store:           store,
		echoServer:      echoServer,
		embeddingRunner: embedding.NewRunner(store, provider, profile.AIEmbeddingModel),
	}, nil
}

// Start launches the background runners and the HTTP listener. It returns
// once the listener stops.
func (s *Server) Start(ctx context.Context) error {
	go s.embeddingRunner.Run(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "mode", s.Profile.Mode)
	return s.echoServer.Start(address)
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}
