package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore is a write-through LRU cache in front of another Store.
// Count always goes to the backing store.
type CachedStore struct {
	next  Store
	mu    sync.Mutex
	cache *lru.Cache[string, *Record]
	// writes counts Save, Update and Delete calls. A read that missed only
	// fills the cache when no write started while it was reading.
	writes uint64
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps next with an LRU cache holding up to size records
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Record](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, email string) (*Record, error) {
	s.mu.Lock()
	if cached, found := s.cache.Get(email); found {
		s.mu.Unlock()
		return cached.Clone(), nil
	}
	writes := s.writes
	s.mu.Unlock()

	record, err := s.next.Get(ctx, email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) && s.writes == writes {
			s.cache.Remove(email)
		}
		return nil, err
	}
	if s.writes == writes {
		s.cache.Add(email, record.Clone())
	}
	return record, nil
}

func (s *CachedStore) Save(ctx context.Context, email string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	if err := s.next.Save(ctx, email, record); err != nil {
		s.cache.Remove(email)
		return err
	}
	s.cache.Add(email, record.Clone())
	return nil
}

func (s *CachedStore) Update(ctx context.Context, email string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	if err := s.next.Update(ctx, email, record); err != nil {
		s.cache.Remove(email)
		return err
	}
	s.cache.Add(email, record.Clone())
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	s.cache.Remove(email)
	return s.next.Delete(ctx, email)
}

func (s *CachedStore) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

// Len returns the number of cached records
func (s *CachedStore) Len() int {
	return s.cache.Len()
}
