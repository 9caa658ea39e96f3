package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/ddialog/pkg/domain"
)

// Store implements ports.ProgressStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Progress
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Progress),
	}
}

// Save persists a deep copy of the progress.
func (s *Store) Save(ctx context.Context, conversationID string, progress *domain.Progress) error {
	copied := progress.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[conversationID] = copied
	return nil
}

// Load returns a copy so callers can't mutate stored progress by pointer.
func (s *Store) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[conversationID]
	if !ok {
		return nil, domain.ErrProgressNotFound
	}
	return p.Clone(), nil
}

// Delete removes the progress.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return nil
}

// List returns stored conversation ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
