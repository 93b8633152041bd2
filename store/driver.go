package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Product model related methods.
	CreateProduct(ctx context.Context, create *Product) (*Product, error)
	ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error)

	// ProductEmbedding model related methods.
	UpsertProductEmbedding(ctx context.Context, embedding *ProductEmbedding) (*ProductEmbedding, error)
	FindProductsWithoutEmbedding(ctx context.Context, find *FindProductsWithoutEmbedding) ([]*Product, error)

	// VectorSearchProducts performs nearest-neighbor search over the catalog
	// using cosine similarity. Results are ordered by descending score, then
	// by catalog insertion order for deterministic ties.
	VectorSearchProducts(ctx context.Context, opts *VectorSearchOptions) ([]*ProductWithScore, error)

	// ChatSession model related methods.
	CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error)
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error)
	DeleteChatSession(ctx context.Context, delete *DeleteChatSession) error

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)

	// AppendChatMessages inserts the messages and bumps the session's
	// updated_ts in one transaction. Either every row lands or none does.
	AppendChatMessages(ctx context.Context, sessionID int32, messages []*ChatMessage, updatedTs int64) (*ChatSession, error)
}
