package authflowrepo

import (
	"errors"
	"sync"
	"time"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Expired states are dropped on Take and swept on every Upsert.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]*LoginState
	nowFunc func() time.Time
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory login state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states:  make(map[string]*LoginState),
		nowFunc: time.Now,
	}
}

// WithNowFunc overrides the clock used for expiry
func (r *InMemoryRepo) WithNowFunc(now func() time.Time) *InMemoryRepo {
	r.nowFunc = now
	return r
}

// Upsert stores or updates a login state
func (r *InMemoryRepo) Upsert(state string, loginState *LoginState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if loginState == nil {
		return errors.New("loginState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	for key, existing := range r.states {
		if expired(existing, now) {
			delete(r.states, key)
		}
	}

	// Copy to prevent external modifications
	stored := *loginState
	r.states[state] = &stored
	return nil
}

// Take retrieves and removes a login state
func (r *InMemoryRepo) Take(state string) (*LoginState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loginState, exists := r.states[state]
	if !exists {
		return nil, ErrStateNotFound
	}
	delete(r.states, state)

	if expired(loginState, r.nowFunc()) {
		return nil, ErrStateExpired
	}
	taken := *loginState
	return &taken, nil
}

// Delete removes a login state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

// Len returns the number of stored states, including any not yet swept
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func expired(state *LoginState, now time.Time) bool {
	return !state.ExpiresAt.IsZero() && !now.Before(state.ExpiresAt)
}
