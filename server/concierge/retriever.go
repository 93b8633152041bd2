package concierge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/store"
)

// Embedder turns free text into a fixed-dimension vector.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// CatalogIndex performs nearest-neighbor search over product vectors.
// *store.Store satisfies it.
type CatalogIndex interface {
	VectorSearchProducts(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ProductWithScore, error)
}

// RetrieverConfig tunes the retriever. Values are fixed at process start.
type RetrieverConfig struct {
	// Model is the embedding model products were indexed under.
	Model string
	// PoolSize is the oversampled candidate pool requested from the index
	// before top-k truncation.
	PoolSize int
	// Timeout bounds the embedding call plus the index query.
	Timeout time.Duration
}

// Retriever embeds a query and ranks catalog candidates by cosine
// similarity.
type Retriever struct {
	embedder Embedder
	index    CatalogIndex
	config   RetrieverConfig
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder Embedder, index CatalogIndex, config RetrieverConfig) *Retriever {
	if config.PoolSize <= 0 {
		config.PoolSize = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Retriever{embedder: embedder, index: index, config: config}
}

// Retrieve returns up to k candidates for the query, ordered by strictly
// non-increasing score. Identical scores keep catalog insertion order so
// retrieval is reproducible for identical inputs. An empty pool is a valid
// "no match" result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]*Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.EmptyQuery("query text is empty")
	}
	if k <= 0 {
		k = 8
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	vector, err := r.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, apperr.RetrievalUnavailable("failed to embed query", err)
	}

	pool, err := r.index.VectorSearchProducts(ctx, &store.VectorSearchOptions{
		Vector: vector,
		Model:  r.config.Model,
		Limit:  r.config.PoolSize,
	})
	if err != nil {
		return nil, apperr.RetrievalUnavailable("catalog index query failed", err)
	}
	if len(pool) == 0 {
		return []*Candidate{}, nil
	}

	// The driver already orders by score; keep the sort as a stable
	// guarantee so ranking never depends on driver behavior.
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})

	if len(pool) > k {
		pool = pool[:k]
	}

	candidates := make([]*Candidate, len(pool))
	for i, hit := range pool {
		candidates[i] = &Candidate{
			Product: hit.Product,
			Score:   hit.Score,
			Rank:    i + 1,
		}
	}

	slog.Debug("catalog retrieval complete",
		"query_len", len(query),
		"pool", len(pool),
		"top_k", len(candidates))

	return candidates, nil
}
