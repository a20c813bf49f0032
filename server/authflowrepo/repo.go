package authflowrepo

import (
	"errors"
	"time"
)

var (
	ErrStateNotFound = errors.New("login state not found")
	ErrStateExpired  = errors.New("login state expired")
)

// LoginState is what the callback needs to finish a Google sign-in started
// with the matching state parameter
type LoginState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type Repo interface {
	Upsert(state string, loginState *LoginState) error
	// Take returns the login state and removes it, so a state is usable once
	Take(state string) (*LoginState, error)
	Delete(state string) error
}
