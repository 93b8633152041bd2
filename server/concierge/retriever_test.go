package concierge

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/store"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

type stubIndex struct {
	hits []*store.ProductWithScore
	err  error
}

func (s *stubIndex) VectorSearchProducts(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ProductWithScore, error) {
	return s.hits, s.err
}

func scoredProduct(id int32, name string, score float64) *store.ProductWithScore {
	return &store.ProductWithScore{
		Product: &store.Product{ID: id, Name: name},
		Score:   score,
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, &stubIndex{}, RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "   \t\n", 8)
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeEmptyQuery))
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	r := NewRetriever(&stubEmbedder{err: errors.New("upstream down")}, &stubIndex{}, RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "silk scarf", 8)
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeRetrievalUnavailable))
}

func TestRetrieveIndexFailure(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := NewRetriever(embedder, &stubIndex{err: errors.New("connection refused")}, RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "silk scarf", 8)
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeRetrievalUnavailable))
}

func TestRetrieveEmptyPoolIsNotAnError(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := NewRetriever(embedder, &stubIndex{}, RetrieverConfig{})

	candidates, err := r.Retrieve(context.Background(), "silk scarf", 8)
	require.NoError(t, err)
	require.NotNil(t, candidates)
	require.Empty(t, candidates)
}

func TestRetrieveTruncatesAndRanks(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	index := &stubIndex{hits: []*store.ProductWithScore{
		scoredProduct(1, "Rose Water Toner", 0.91),
		scoredProduct(2, "Amber Candle", 0.85),
		scoredProduct(3, "Vetiver Cologne", 0.74),
		scoredProduct(4, "Linen Throw", 0.52),
	}}
	r := NewRetriever(embedder, index, RetrieverConfig{})

	candidates, err := r.Retrieve(context.Background(), "something rosy", 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "Rose Water Toner", candidates[0].Product.Name)
	require.Equal(t, 1, candidates[0].Rank)
	require.Equal(t, "Amber Candle", candidates[1].Product.Name)
	require.Equal(t, 2, candidates[1].Rank)
}

func TestRetrieveReordersUnsortedPool(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	index := &stubIndex{hits: []*store.ProductWithScore{
		scoredProduct(1, "Low", 0.2),
		scoredProduct(2, "High", 0.9),
		scoredProduct(3, "Mid", 0.5),
	}}
	r := NewRetriever(embedder, index, RetrieverConfig{})

	candidates, err := r.Retrieve(context.Background(), "anything", 8)
	require.NoError(t, err)
	require.Equal(t, []string{"High", "Mid", "Low"}, candidateNames(candidates))
}

func TestRetrieveTiedScoresKeepPoolOrder(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	index := &stubIndex{hits: []*store.ProductWithScore{
		scoredProduct(7, "First", 0.8),
		scoredProduct(3, "Second", 0.8),
		scoredProduct(9, "Third", 0.8),
	}}
	r := NewRetriever(embedder, index, RetrieverConfig{})

	for i := 0; i < 5; i++ {
		candidates, err := r.Retrieve(context.Background(), "ties", 8)
		require.NoError(t, err)
		require.Equal(t, []string{"First", "Second", "Third"}, candidateNames(candidates))
	}
}

func candidateNames(candidates []*Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Product.Name
	}
	return names
}
