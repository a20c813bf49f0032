package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe in-memory implementation of Store
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory session store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *InMemoryStore) Get(_ context.Context, email string) (*Record, error) {
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[email]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, email string, record *Record) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if record == nil {
		return errors.New("record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := record.Clone()
	c.Email = email
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = time.Now().UTC()
	s.records[email] = c
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, email string, record *Record) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if record == nil {
		return errors.New("record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[email]
	if !ok {
		return ErrSessionNotFound
	}

	c := record.Clone()
	c.Email = email
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.records[email] = c
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, email)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records), nil
}
