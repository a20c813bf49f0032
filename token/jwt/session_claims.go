package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
)

// Claim names carried by console session and refresh tokens
const (
	ClaimInstanceType = "instanceType"
	ClaimHost         = "host"
	ClaimUse          = "use"

	UseSession = "session"
	UseRefresh = "refresh"
)

// SessionClaims are the claims bound to one database connection
type SessionClaims struct {
	InstanceType string
	Host         string
	Use          string
	ExpiresAt    time.Time
}

// SessionPair is a freshly minted session token and its refresh token
type SessionPair struct {
	SessionToken     string
	RefreshToken     string
	SessionExpiresAt time.Time
	RefreshExpiresAt time.Time
}

// CreateSessionPair mints a session token and a refresh token with identical
// instanceType and host claims
func (c *Codec) CreateSessionPair(claims SessionClaims) (SessionPair, error) {
	if claims.InstanceType == "" || claims.Host == "" {
		return SessionPair{}, fmt.Errorf("instance type and host are required: %w", internalerrors.ErrMissingClaim)
	}

	sessionToken, err := c.CreateToken(jwtlib.MapClaims{
		ClaimInstanceType: claims.InstanceType,
		ClaimHost:         claims.Host,
		ClaimUse:          UseSession,
	}, c.sessionLifetime)
	if err != nil {
		return SessionPair{}, fmt.Errorf("create session token: %w", err)
	}

	refreshToken, err := c.CreateToken(jwtlib.MapClaims{
		ClaimInstanceType: claims.InstanceType,
		ClaimHost:         claims.Host,
		ClaimUse:          UseRefresh,
	}, c.refreshLifetime)
	if err != nil {
		return SessionPair{}, fmt.Errorf("create refresh token: %w", err)
	}

	now := c.nowFunc()
	return SessionPair{
		SessionToken:     sessionToken,
		RefreshToken:     refreshToken,
		SessionExpiresAt: time.Unix(now.Add(c.sessionLifetime).Unix(), 0),
		RefreshExpiresAt: time.Unix(now.Add(c.refreshLifetime).Unix(), 0),
	}, nil
}

// ParseSessionClaims extracts the typed claims of an authentic token whose
// use matches. Expiry is not enforced here; callers decide with ValidateToken.
func (c *Codec) ParseSessionClaims(rawToken, use string) (SessionClaims, error) {
	token, err := c.parse(rawToken)
	if err != nil && !isExpiredOnly(err) {
		return SessionClaims{}, fmt.Errorf("%w: %v", internalerrors.ErrInvalidToken, err)
	}
	if token == nil {
		return SessionClaims{}, internalerrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return SessionClaims{}, internalerrors.ErrInvalidToken
	}

	parsed := SessionClaims{}
	parsed.InstanceType, _ = ClaimString(claims, ClaimInstanceType)
	parsed.Host, _ = ClaimString(claims, ClaimHost)
	parsed.Use, _ = ClaimString(claims, ClaimUse)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		parsed.ExpiresAt = exp.Time
	}

	if parsed.Use != use {
		return SessionClaims{}, fmt.Errorf("token use %q, expected %q: %w", parsed.Use, use, internalerrors.ErrInvalidToken)
	}
	if parsed.InstanceType == "" {
		return SessionClaims{}, fmt.Errorf("%s: %w", ClaimInstanceType, internalerrors.ErrMissingClaim)
	}
	if parsed.Host == "" {
		return SessionClaims{}, fmt.Errorf("%s: %w", ClaimHost, internalerrors.ErrMissingClaim)
	}
	return parsed, nil
}
