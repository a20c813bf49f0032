package errors

import (
	"errors"
	"fmt"
)

// Common error types for the console authentication core
var (
	// Credential errors
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingClaim      = errors.New("missing claim")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrTokenMismatch       = errors.New("token does not match stored token")

	// Session errors
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionKeyNotFound = errors.New("provided session key does not exist")
	ErrSessionCompromised = errors.New("session possibly compromised")
	ErrNoSessions         = errors.New("no sessions stored")
	ErrMissingConnection  = errors.New("session has no connection string")
	ErrIdentityContext    = errors.New("identity context missing from request")

	// Upstream identity provider errors
	ErrIdentityRefreshFailed  = errors.New("identity token refresh failed")
	ErrIdentityExchangeFailed = errors.New("identity code exchange failed")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnsupported    = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text
func New(text string) error {
	return errors.New(text)
}
