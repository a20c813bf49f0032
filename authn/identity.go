package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-sql-console/identity"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/sessions"
	"golang.org/x/sync/singleflight"
)

// IdentityAuthenticator accepts a Google identity token that matches the one
// stored for its email, refreshing it through Google once expired.
type IdentityAuthenticator struct {
	headers
	options
	store     sessions.Store
	refresher identity.Refresher
	group     singleflight.Group
}

var _ Authenticator = (*IdentityAuthenticator)(nil)

func NewIdentityAuthenticator(store sessions.Store, refresher identity.Refresher, opts ...Option) *IdentityAuthenticator {
	return &IdentityAuthenticator{
		headers:   headers{failure: IdentityAuthenticationFailed},
		options:   newOptions(opts),
		store:     store,
		refresher: refresher,
	}
}

func (a *IdentityAuthenticator) Scheme() string {
	return SchemeIdentity
}

func (a *IdentityAuthenticator) Authenticate(ctx context.Context, req *Request) (outcome Outcome) {
	defer a.guard(ctx, a.headers, req, SchemeIdentity, &outcome)

	token, ok := a.get(req, HeaderIdentityToken)
	if !ok {
		a.logger.Info().Msg("no identity token presented")
		return a.fail(req, fmt.Errorf("%s: %w", HeaderIdentityToken, internalerrors.ErrMissingCredential))
	}

	claims, err := identity.ParseClaims(token)
	if err != nil {
		a.logger.Info().Err(err).Msg("identity token unreadable")
		return a.fail(req, err)
	}
	logger := a.logger.With().Str("email", claims.Email).Logger()

	count, err := a.store.Count(ctx)
	if err != nil {
		return a.unexpected(ctx, a.headers, req, SchemeIdentity, fmt.Errorf("count sessions: %w", err))
	}
	if count == 0 {
		logger.Info().Msg("no sessions stored")
		return a.fail(req, internalerrors.ErrNoSessions)
	}

	record, err := a.store.Get(ctx, claims.Email)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		logger.Info().Msg("no session for email")
		return a.fail(req, err)
	}
	if err != nil {
		return a.unexpected(ctx, a.headers, req, SchemeIdentity, fmt.Errorf("load session: %w", err))
	}

	if subtle.ConstantTimeCompare([]byte(record.IdentityToken), []byte(token)) != 1 {
		logger.Warn().Msg("presented identity token does not match stored token, deleting session")
		if err := a.store.Delete(ctx, claims.Email); err != nil {
			a.audit.ReportException(ctx, fmt.Errorf("delete mismatched session: %w", err), map[string]any{"scheme": SchemeIdentity})
		}
		return a.fail(req, internalerrors.ErrTokenMismatch)
	}

	if claims.Expiration.IsZero() {
		logger.Warn().Msg("identity token has no exp claim")
		return a.fail(req, fmt.Errorf("exp: %w", internalerrors.ErrMissingClaim))
	}

	if !claims.Expired(a.nowFunc()) {
		req.Items = &Items{Email: claims.Email, Record: record}
		return a.succeed(claims)
	}

	refreshed, err := a.refresh(ctx, claims.Email, token)
	if err != nil {
		logger.Warn().Err(err).Msg("identity token refresh failed")
		return a.fail(req, err)
	}

	newClaims, err := identity.ParseClaims(refreshed.IdentityToken)
	if err != nil {
		return a.unexpected(ctx, a.headers, req, SchemeIdentity, err)
	}

	a.emit(req, HeaderRefreshedIdentityToken, refreshed.IdentityToken)
	req.Items = &Items{Email: claims.Email, Record: refreshed}

	outcome = a.succeed(newClaims)
	outcome.Rotated = &RotatedTokens{IdentityToken: refreshed.IdentityToken}
	logger.Info().Msg("identity token refreshed")
	return outcome
}

func (a *IdentityAuthenticator) succeed(claims identity.Claims) Outcome {
	return Outcome{
		Succeeded: true,
		Identity: Identity{
			Scheme: SchemeIdentity,
			Claims: map[string]string{ClaimEmail: claims.Email},
		},
		ExpiresAt: claims.Expiration,
	}
}

// refresh exchanges the stored Google refresh token for a new identity token
// and persists it. Concurrent refreshes of the same token share one call.
func (a *IdentityAuthenticator) refresh(ctx context.Context, email, token string) (*sessions.Record, error) {
	v, err := shared(ctx, &a.group, email+"\x00"+token, func(ctx context.Context) (any, error) {
		unlock, err := a.locks.Lock(ctx, email)
		if err != nil {
			return nil, err
		}
		defer unlock()

		current, err := a.store.Get(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(current.IdentityToken), []byte(token)) != 1 {
			return nil, internalerrors.ErrTokenMismatch
		}

		tokens, err := a.refresher.Refresh(ctx, current.IdentityRefreshToken)
		if err != nil {
			a.audit.ReportException(ctx, err, map[string]any{"scheme": SchemeIdentity, "email": email})
			return nil, err
		}
		if claims, err := identity.ParseClaims(tokens.IDToken); err != nil || claims.Email != email {
			return nil, fmt.Errorf("%w: refreshed token is not for %s", internalerrors.ErrIdentityRefreshFailed, email)
		}

		current.IdentityAccessToken = tokens.AccessToken
		current.IdentityToken = tokens.IDToken
		if tokens.RefreshToken != "" {
			current.IdentityRefreshToken = tokens.RefreshToken
		}
		current.UpdatedAt = a.nowFunc().UTC()

		if err := a.store.Update(ctx, email, current); err != nil {
			err = fmt.Errorf("%w: persist refreshed token: %v", internalerrors.ErrIdentityRefreshFailed, err)
			a.audit.ReportException(ctx, err, map[string]any{"scheme": SchemeIdentity, "email": email})
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sessions.Record).Clone(), nil
}
