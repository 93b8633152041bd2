// Package embedding backfills catalog vectors so every product is
// searchable. Products arrive through ingestion without vectors; the runner
// embeds them in the background.
package embedding

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rasphia/rasphia/store"
)

// Embedder turns product text into a vector.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

type Runner struct {
	store       *store.Store
	embedder    Embedder
	model       string
	interval    time.Duration
	batchSize   int
	concurrency int64
}

// NewRunner creates a catalog embedding runner for the given model.
func NewRunner(store *store.Store, embedder Embedder, model string) *Runner {
	return &Runner{
		store:       store,
		embedder:    embedder,
		model:       model,
		interval:    2 * time.Minute,
		batchSize:   64,
		concurrency: 4,
	}
}

// Run starts the background task. It processes once on startup, then on
// every tick until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce processes one backfill pass.
func (r *Runner) RunOnce(ctx context.Context) {
	products, err := r.store.FindProductsWithoutEmbedding(ctx, &store.FindProductsWithoutEmbedding{
		Model: r.model,
		Limit: r.batchSize,
	})
	if err != nil {
		slog.Error("failed to find products without embedding", "error", err)
		return
	}
	if len(products) == 0 {
		return
	}

	slog.Info("embedding catalog products", "count", len(products), "model", r.model)

	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup
	for _, product := range products {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p *store.Product) {
			defer wg.Done()
			defer sem.Release(1)
			r.embedProduct(ctx, p)
		}(product)
	}
	wg.Wait()
}

func (r *Runner) embedProduct(ctx context.Context, p *store.Product) {
	vector, err := r.embedder.Embedding(ctx, EmbeddingText(p))
	if err != nil {
		slog.Error("failed to embed product", "product_id", p.ID, "error", err)
		return
	}
	if _, err := r.store.UpsertProductEmbedding(ctx, &store.ProductEmbedding{
		ProductID: p.ID,
		Model:     r.model,
		Embedding: vector,
	}); err != nil {
		slog.Error("failed to upsert product embedding", "product_id", p.ID, "error", err)
	}
}

// EmbeddingText builds the text a product is indexed under. Name leads so
// exact-name queries score highest.
func EmbeddingText(p *store.Product) string {
	parts := []string{p.Name}
	if p.Brand != "" {
		parts = append(parts, p.Brand)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	return strings.Join(parts, "\n")
}
