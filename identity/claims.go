// Package identity deals with Google-issued identity tokens: reading their
// claims and obtaining new ones through the OAuth2 code and refresh flows.
package identity

import (
	"fmt"
	"strconv"
	"time"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/token/jwt"
)

// Claims are the identity token claims the console relies on
type Claims struct {
	Email         string
	EmailVerified bool
	Picture       string
	// Expiration is zero when the token carries no exp claim
	Expiration time.Time
}

// ParseClaims reads the claims of an identity token without verifying it.
// Only the email claim is required.
func ParseClaims(rawToken string) (Claims, error) {
	mapClaims, err := jwt.PeekClaims(rawToken)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", internalerrors.ErrInvalidToken, err)
	}

	email, ok := jwt.ClaimString(mapClaims, "email")
	if !ok {
		return Claims{}, fmt.Errorf("email: %w", internalerrors.ErrMissingClaim)
	}

	claims := Claims{Email: email}
	claims.Picture, _ = jwt.ClaimString(mapClaims, "picture")

	// Google has historically sent email_verified as either a bool or a string
	if verified, ok := jwt.ClaimString(mapClaims, "email_verified"); ok {
		claims.EmailVerified, _ = strconv.ParseBool(verified)
	}

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiration = exp.Time
	}
	return claims, nil
}

// Expired reports whether the token has expired at now. A token without an
// expiration is treated as expired.
func (c Claims) Expired(now time.Time) bool {
	return c.Expiration.IsZero() || !now.Before(c.Expiration)
}
