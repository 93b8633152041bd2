package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// sessionLocks serializes appends per chat session.
	sessionLocks *keyedMutex

	// productCache caches products by name; the catalog is read-mostly.
	productCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:       driver,
		profile:      profile,
		sessionLocks: newKeyedMutex(),
		productCache: cache.New(cache.Config{
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxItems:        1000,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.productCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateProduct(ctx context.Context, create *Product) (*Product, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateProduct(ctx, create)
}

func (s *Store) ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error) {
	return s.driver.ListProducts(ctx, find)
}

// GetProductByName returns the product with the given catalog-exact name,
// or nil when no such product exists.
func (s *Store) GetProductByName(ctx context.Context, name string) (*Product, error) {
	if v, ok := s.productCache.Get(name); ok {
		return v.(*Product), nil
	}
	list, err := s.driver.ListProducts(ctx, &FindProduct{Name: &name})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.productCache.Set(name, list[0])
	return list[0], nil
}

func (s *Store) UpsertProductEmbedding(ctx context.Context, embedding *ProductEmbedding) (*ProductEmbedding, error) {
	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now
	return s.driver.UpsertProductEmbedding(ctx, embedding)
}

func (s *Store) FindProductsWithoutEmbedding(ctx context.Context, find *FindProductsWithoutEmbedding) ([]*Product, error) {
	return s.driver.FindProductsWithoutEmbedding(ctx, find)
}

func (s *Store) VectorSearchProducts(ctx context.Context, opts *VectorSearchOptions) ([]*ProductWithScore, error) {
	return s.driver.VectorSearchProducts(ctx, opts)
}

// CreateChatSession establishes a new session seeded with one message.
// It is only used when the caller supplied no session id.
func (s *Store) CreateChatSession(ctx context.Context, create *ChatSession, seed *ChatMessage) (*ChatSession, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	create.UpdatedTs = create.CreatedTs

	session, err := s.driver.CreateChatSession(ctx, create)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat session")
	}

	if seed != nil {
		seed.SessionID = session.ID
		if seed.CreatedTs == 0 {
			seed.CreatedTs = now
		}
		if _, err := s.driver.CreateChatMessage(ctx, seed); err != nil {
			return nil, errors.Wrap(err, "failed to seed chat session")
		}
	}
	return session, nil
}

func (s *Store) GetChatSession(ctx context.Context, find *FindChatSession) (*ChatSession, error) {
	list, err := s.driver.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	return s.driver.ListChatSessions(ctx, find)
}

func (s *Store) UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error) {
	return s.driver.UpdateChatSession(ctx, update)
}

func (s *Store) DeleteChatSession(ctx context.Context, delete *DeleteChatSession) error {
	return s.driver.DeleteChatSession(ctx, delete)
}

// AppendChatMessages appends messages to a session in the given order and
// refreshes the session's updated timestamp. Appends to the same session
// are serialized through a per-session lock so concurrent turns never
// interleave or lose a message; different sessions proceed independently.
// The driver writes the batch and the timestamp bump in one transaction,
// so a failed append leaves no partial rows and the turn can be retried.
func (s *Store) AppendChatMessages(ctx context.Context, sessionID int32, messages ...*ChatMessage) (*ChatSession, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to append")
	}

	unlock := s.sessionLocks.lock(sessionID)
	defer unlock()

	now := time.Now().Unix()
	for _, m := range messages {
		m.SessionID = sessionID
		if m.CreatedTs == 0 {
			m.CreatedTs = now
		}
	}

	session, err := s.driver.AppendChatMessages(ctx, sessionID, messages, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to append chat messages")
	}
	return session, nil
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}
