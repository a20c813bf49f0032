package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"golang.org/x/sync/singleflight"
)

// SessionAuthenticator accepts a database-session token bound to a connection
// in the record loaded by the identity scheme, rotating the session and
// refresh tokens once the session token has expired.
type SessionAuthenticator struct {
	headers
	options
	store sessions.Store
	codec *jwt.Codec
	group singleflight.Group
}

var _ Authenticator = (*SessionAuthenticator)(nil)

type rotation struct {
	pair   jwt.SessionPair
	record *sessions.Record
}

func NewSessionAuthenticator(store sessions.Store, codec *jwt.Codec, opts ...Option) *SessionAuthenticator {
	return &SessionAuthenticator{
		headers: headers{failure: SessionAuthenticationFailed},
		options: newOptions(opts),
		store:   store,
		codec:   codec,
	}
}

func (a *SessionAuthenticator) Scheme() string {
	return SchemeSession
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, req *Request) (outcome Outcome) {
	defer a.guard(ctx, a.headers, req, SchemeSession, &outcome)

	items := req.Items
	if items == nil || items.Record == nil || items.Email == "" {
		a.logger.Warn().Msg("session authentication attempted without identity context")
		return a.fail(req, internalerrors.ErrIdentityContext)
	}
	logger := a.logger.With().Str("email", items.Email).Logger()

	sessionToken, ok := a.get(req, HeaderSessionToken)
	if !ok {
		logger.Info().Msg("no session token presented")
		return a.fail(req, fmt.Errorf("%s: %w", HeaderSessionToken, internalerrors.ErrMissingCredential))
	}

	binding, ok := items.Record.Binding(sessionToken)
	if !ok {
		logger.Info().Msg("session token not bound to a connection")
		return a.fail(req, internalerrors.ErrSessionKeyNotFound)
	}
	if binding.ConnectionString == "" {
		logger.Warn().Msg("session binding has no connection string")
		return a.fail(req, internalerrors.ErrMissingConnection)
	}

	validation := a.codec.ValidateToken(sessionToken)
	if !validation.Valid {
		logger.Warn().Msg("session token failed validation")
		return a.fail(req, internalerrors.ErrInvalidToken)
	}

	claims, err := a.codec.ParseSessionClaims(sessionToken, jwt.UseSession)
	if err != nil {
		logger.Warn().Err(err).Msg("session token claims unusable")
		return a.fail(req, err)
	}

	if !validation.Expired {
		return a.succeed(binding.ConnectionString, claims)
	}

	refreshToken, ok := a.get(req, HeaderRefreshToken)
	if !ok {
		logger.Info().Msg("session token expired and no refresh token presented")
		return a.fail(req, fmt.Errorf("%s: %w", HeaderRefreshToken, internalerrors.ErrMissingCredential))
	}

	refreshValidation := a.codec.ValidateToken(refreshToken)
	if !refreshValidation.Valid {
		logger.Warn().Msg("refresh token failed validation")
		return a.fail(req, internalerrors.ErrInvalidRefreshToken)
	}
	if _, err := a.codec.ParseSessionClaims(refreshToken, jwt.UseRefresh); err != nil {
		logger.Warn().Err(err).Msg("refresh token claims unusable")
		return a.fail(req, fmt.Errorf("%w: %v", internalerrors.ErrInvalidRefreshToken, err))
	}

	if refreshValidation.Expired {
		logger.Info().Msg("refresh token expired, removing session binding")
		if err := a.unbind(ctx, req, sessionToken); err != nil {
			return a.unexpected(ctx, a.headers, req, SchemeSession, err)
		}
		return a.fail(req, internalerrors.ErrRefreshTokenExpired)
	}

	rotated, err := a.rotate(ctx, items.Email, sessionToken, refreshToken, claims)
	if errors.Is(err, internalerrors.ErrSessionCompromised) {
		logger.Warn().Msg("refresh token does not match stored token, session binding removed")
		if rotated != nil {
			req.Items.Record = rotated.record
		}
		return a.fail(req, err)
	}
	if errors.Is(err, internalerrors.ErrSessionKeyNotFound) {
		logger.Info().Msg("session binding removed concurrently")
		return a.fail(req, err)
	}
	if err != nil {
		return a.unexpected(ctx, a.headers, req, SchemeSession, err)
	}

	newClaims, err := a.codec.ParseSessionClaims(rotated.pair.SessionToken, jwt.UseSession)
	if err != nil {
		return a.unexpected(ctx, a.headers, req, SchemeSession, err)
	}

	a.emit(req, HeaderRefreshedSessionToken, rotated.pair.SessionToken)
	a.emit(req, HeaderRefreshedRefreshToken, rotated.pair.RefreshToken)
	req.Items.Record = rotated.record

	outcome = a.succeed(binding.ConnectionString, newClaims)
	outcome.Rotated = &RotatedTokens{
		SessionToken: rotated.pair.SessionToken,
		RefreshToken: rotated.pair.RefreshToken,
	}
	logger.Info().Msg("database session rotated")
	return outcome
}

func (a *SessionAuthenticator) succeed(connectionString string, claims jwt.SessionClaims) Outcome {
	return Outcome{
		Succeeded: true,
		Identity: Identity{
			Scheme: SchemeSession,
			Claims: map[string]string{
				ClaimConnectionString: connectionString,
				ClaimInstanceType:     claims.InstanceType,
				ClaimHost:             claims.Host,
			},
		},
		ExpiresAt: claims.ExpiresAt,
	}
}

// rotate swaps the binding for sessionToken with a freshly minted pair in a
// single update. Concurrent rotations of the same token share one result.
// A refresh token that does not match the stored one removes the binding and
// returns ErrSessionCompromised together with the updated record.
func (a *SessionAuthenticator) rotate(ctx context.Context, email, sessionToken, refreshToken string, claims jwt.SessionClaims) (*rotation, error) {
	v, err := shared(ctx, &a.group, email+"\x00"+sessionToken+"\x00"+refreshToken, func(ctx context.Context) (any, error) {
		unlock, err := a.locks.Lock(ctx, email)
		if err != nil {
			return nil, err
		}
		defer unlock()

		current, err := a.store.Get(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}

		binding, ok := current.Binding(sessionToken)
		if !ok {
			return nil, internalerrors.ErrSessionKeyNotFound
		}

		if subtle.ConstantTimeCompare([]byte(binding.RefreshToken), []byte(refreshToken)) != 1 {
			current.Unbind(sessionToken)
			current.UpdatedAt = a.nowFunc().UTC()
			if err := a.store.Update(ctx, email, current); err != nil {
				return nil, fmt.Errorf("remove compromised binding: %w", err)
			}
			return &rotation{record: current}, internalerrors.ErrSessionCompromised
		}

		pair, err := a.codec.CreateSessionPair(jwt.SessionClaims{InstanceType: claims.InstanceType, Host: claims.Host})
		if err != nil {
			return nil, err
		}

		current.Unbind(sessionToken)
		current.Bind(pair.SessionToken, sessions.DatabaseSession{
			ConnectionString: binding.ConnectionString,
			RefreshToken:     pair.RefreshToken,
		})
		current.UpdatedAt = a.nowFunc().UTC()
		if err := a.store.Update(ctx, email, current); err != nil {
			return nil, fmt.Errorf("persist rotated session: %w", err)
		}
		return &rotation{pair: pair, record: current}, nil
	})

	var r *rotation
	if v != nil {
		res := v.(*rotation)
		r = &rotation{pair: res.pair, record: res.record.Clone()}
	}
	return r, err
}

// unbind removes the binding for sessionToken under the record lock
func (a *SessionAuthenticator) unbind(ctx context.Context, req *Request, sessionToken string) error {
	unlock, err := a.locks.Lock(ctx, req.Items.Email)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := a.store.Get(ctx, req.Items.Email)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	if current.Unbind(sessionToken) {
		current.UpdatedAt = a.nowFunc().UTC()
		if err := a.store.Update(ctx, req.Items.Email, current); err != nil {
			return fmt.Errorf("remove expired binding: %w", err)
		}
	}
	req.Items.Record = current
	return nil
}
