// Package storetest provides an in-memory store driver for tests that need
// real store semantics without a database.
package storetest

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/store"
)

// Driver is an in-memory implementation of store.Driver. It is safe for
// concurrent use. The zero value is not usable; construct with NewDriver.
type Driver struct {
	mu sync.Mutex

	products   []*store.Product
	embeddings []*store.ProductEmbedding
	sessions   []*store.ChatSession
	messages   []*store.ChatMessage

	nextProductID   int32
	nextEmbeddingID int32
	nextSessionID   int32
	nextMessageID   int32

	// Error hooks. When set, the corresponding method fails with the hook
	// instead of touching state.
	VectorSearchErr      error
	CreateChatMessageErr error
	UpdateChatSessionErr error
	// AppendFailAfter, when positive, fails AppendChatMessages batches
	// larger than this many messages, simulating a mid-batch insert error.
	AppendFailAfter int
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		nextProductID:   1,
		nextEmbeddingID: 1,
		nextSessionID:   1,
		nextMessageID:   1,
	}
}

func (d *Driver) GetDB() *sql.DB { return nil }

func (d *Driver) Close() error { return nil }

func (d *Driver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }

func (d *Driver) CreateProduct(ctx context.Context, create *store.Product) (*store.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.products {
		if p.Name == create.Name {
			return nil, errors.Errorf("product name already exists: %s", create.Name)
		}
	}
	clone := *create
	clone.ID = d.nextProductID
	d.nextProductID++
	if clone.CreatedTs == 0 {
		clone.CreatedTs = time.Now().Unix()
	}
	d.products = append(d.products, &clone)
	out := clone
	return &out, nil
}

func (d *Driver) ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.Product
	for _, p := range d.products {
		if find.ID != nil && p.ID != *find.ID {
			continue
		}
		if find.UID != nil && p.UID != *find.UID {
			continue
		}
		if find.Name != nil && p.Name != *find.Name {
			continue
		}
		clone := *p
		list = append(list, &clone)
	}
	return list, nil
}

func (d *Driver) UpsertProductEmbedding(ctx context.Context, embedding *store.ProductEmbedding) (*store.ProductEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().Unix()
	for _, e := range d.embeddings {
		if e.ProductID == embedding.ProductID && e.Model == embedding.Model {
			e.Embedding = append([]float32(nil), embedding.Embedding...)
			e.UpdatedTs = now
			clone := *e
			return &clone, nil
		}
	}
	clone := *embedding
	clone.ID = d.nextEmbeddingID
	d.nextEmbeddingID++
	clone.Embedding = append([]float32(nil), embedding.Embedding...)
	clone.CreatedTs = now
	clone.UpdatedTs = now
	d.embeddings = append(d.embeddings, &clone)
	out := clone
	return &out, nil
}

func (d *Driver) FindProductsWithoutEmbedding(ctx context.Context, find *store.FindProductsWithoutEmbedding) ([]*store.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	embedded := make(map[int32]bool, len(d.embeddings))
	for _, e := range d.embeddings {
		if e.Model == find.Model {
			embedded[e.ProductID] = true
		}
	}
	var list []*store.Product
	for _, p := range d.products {
		if embedded[p.ID] {
			continue
		}
		clone := *p
		list = append(list, &clone)
		if find.Limit > 0 && len(list) >= find.Limit {
			break
		}
	}
	return list, nil
}

func (d *Driver) VectorSearchProducts(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ProductWithScore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.VectorSearchErr != nil {
		return nil, d.VectorSearchErr
	}

	byID := make(map[int32]*store.Product, len(d.products))
	for _, p := range d.products {
		byID[p.ID] = p
	}

	var hits []*store.ProductWithScore
	for _, e := range d.embeddings {
		if e.Model != opts.Model {
			continue
		}
		p, ok := byID[e.ProductID]
		if !ok {
			continue
		}
		clone := *p
		hits = append(hits, &store.ProductWithScore{
			Product: &clone,
			Score:   cosineSimilarity(opts.Vector, e.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Product.ID < hits[j].Product.ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (d *Driver) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	clone := *create
	clone.ID = d.nextSessionID
	d.nextSessionID++
	now := time.Now().Unix()
	if clone.CreatedTs == 0 {
		clone.CreatedTs = now
	}
	if clone.UpdatedTs == 0 {
		clone.UpdatedTs = clone.CreatedTs
	}
	d.sessions = append(d.sessions, &clone)
	out := clone
	return &out, nil
}

func (d *Driver) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.ChatSession
	for _, s := range d.sessions {
		if find.ID != nil && s.ID != *find.ID {
			continue
		}
		if find.UID != nil && s.UID != *find.UID {
			continue
		}
		if find.OwnerKey != nil && s.OwnerKey != *find.OwnerKey {
			continue
		}
		if find.Search != nil && !d.sessionMatches(s, *find.Search) {
			continue
		}
		clone := *s
		list = append(list, &clone)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

// sessionMatches reports whether the session title or any of its message
// contents contains the search term, case-insensitive. Caller holds d.mu.
func (d *Driver) sessionMatches(s *store.ChatSession, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(s.Title), needle) {
		return true
	}
	for _, m := range d.messages {
		if m.SessionID == s.ID && strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
	}
	return false
}

func (d *Driver) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.UpdateChatSessionErr != nil {
		return nil, d.UpdateChatSessionErr
	}

	for _, s := range d.sessions {
		if s.ID != update.ID {
			continue
		}
		if update.Title != nil {
			s.Title = *update.Title
		}
		if update.UpdatedTs != nil && *update.UpdatedTs > s.UpdatedTs {
			s.UpdatedTs = *update.UpdatedTs
		}
		clone := *s
		return &clone, nil
	}
	return nil, errors.Errorf("chat session not found: %d", update.ID)
}

func (d *Driver) DeleteChatSession(ctx context.Context, delete *store.DeleteChatSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var messages []*store.ChatMessage
	for _, m := range d.messages {
		if m.SessionID != delete.ID {
			messages = append(messages, m)
		}
	}
	d.messages = messages

	for i, s := range d.sessions {
		if s.ID == delete.ID {
			d.sessions = append(d.sessions[:i], d.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (d *Driver) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CreateChatMessageErr != nil {
		return nil, d.CreateChatMessageErr
	}

	clone := *create
	clone.ID = d.nextMessageID
	d.nextMessageID++
	if clone.CreatedTs == 0 {
		clone.CreatedTs = time.Now().Unix()
	}
	d.messages = append(d.messages, &clone)
	out := clone
	return &out, nil
}

// AppendChatMessages mirrors the SQL drivers' transactional append: state
// is only mutated once every row of the batch has been accepted.
func (d *Driver) AppendChatMessages(ctx context.Context, sessionID int32, messages []*store.ChatMessage, updatedTs int64) (*store.ChatSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CreateChatMessageErr != nil {
		return nil, d.CreateChatMessageErr
	}
	if d.UpdateChatSessionErr != nil {
		return nil, d.UpdateChatSessionErr
	}
	if d.AppendFailAfter > 0 && len(messages) > d.AppendFailAfter {
		return nil, errors.Errorf("insert failed after %d message(s)", d.AppendFailAfter)
	}

	var session *store.ChatSession
	for _, s := range d.sessions {
		if s.ID == sessionID {
			session = s
			break
		}
	}
	if session == nil {
		return nil, errors.Errorf("chat session not found: %d", sessionID)
	}

	staged := make([]*store.ChatMessage, 0, len(messages))
	for _, m := range messages {
		clone := *m
		clone.ID = d.nextMessageID + int32(len(staged))
		clone.SessionID = sessionID
		if clone.CreatedTs == 0 {
			clone.CreatedTs = time.Now().Unix()
		}
		staged = append(staged, &clone)
	}

	d.nextMessageID += int32(len(staged))
	d.messages = append(d.messages, staged...)
	for i, m := range messages {
		m.ID = staged[i].ID
	}
	if updatedTs > session.UpdatedTs {
		session.UpdatedTs = updatedTs
	}
	out := *session
	return &out, nil
}

func (d *Driver) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.ChatMessage
	for _, m := range d.messages {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.SessionID != nil && m.SessionID != *find.SessionID {
			continue
		}
		clone := *m
		list = append(list, &clone)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
