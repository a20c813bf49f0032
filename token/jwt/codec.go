package jwt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	saltHeader = "salt"
	saltLength = 16

	defaultSessionLifetime = 15 * time.Minute
	defaultRefreshLifetime = 24 * time.Hour
)

// Validation is the outcome of verifying a console-issued token.
// Expired is only meaningful when Valid is true: the signature, issuer and
// audience checked out but the expiry has passed.
type Validation struct {
	Valid   bool
	Expired bool
}

// Codec creates and validates signed tokens for the console
type Codec struct {
	signer          keys.Signer
	issuer          string
	audience        string
	salt            bool
	sessionLifetime time.Duration
	refreshLifetime time.Duration
	nowFunc         func() time.Time
	logger          zerolog.Logger
}

type CodecOption func(*Codec)

// WithNowFunc overrides the clock, primarily for tests
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// WithSalt toggles the random salt header attached to every token
func WithSalt(enabled bool) CodecOption {
	return func(c *Codec) {
		c.salt = enabled
	}
}

func WithLifetimes(sessionLifetime, refreshLifetime time.Duration) CodecOption {
	return func(c *Codec) {
		c.sessionLifetime = sessionLifetime
		c.refreshLifetime = refreshLifetime
	}
}

func WithLogger(logger zerolog.Logger) CodecOption {
	return func(c *Codec) {
		c.logger = logger
	}
}

// NewCodec creates a codec signing with signer and pinning the issuer and audience
func NewCodec(signer keys.Signer, issuer, audience string, options ...CodecOption) *Codec {
	c := &Codec{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		salt:     true,
		nowFunc:  time.Now,
		logger:   log.Logger,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.sessionLifetime <= 0 {
		c.sessionLifetime = defaultSessionLifetime
	}
	if c.refreshLifetime <= 0 {
		c.refreshLifetime = defaultRefreshLifetime
	}
	return c
}

// CreateToken signs claims with the registered claims (iss, aud, iat, nbf, exp, jti) added
func (c *Codec) CreateToken(claims jwtlib.MapClaims, lifetime time.Duration) (string, error) {
	now := c.nowFunc()

	all := jwtlib.MapClaims{}
	for k, v := range claims {
		all[k] = v
	}
	all["iss"] = c.issuer
	all["aud"] = c.audience
	all["iat"] = now.Unix()
	all["nbf"] = now.Unix()
	all["exp"] = now.Add(lifetime).Unix()
	all["jti"] = uuid.New().String()

	var headers map[string]any
	if c.salt {
		salt, err := randomSalt()
		if err != nil {
			return "", fmt.Errorf("failed to generate token salt: %w", err)
		}
		headers = map[string]any{saltHeader: salt}
	}

	signed, err := c.signer.Sign(all, headers)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer and audience with no clock-skew
// tolerance. It never returns an error: malformed input is simply invalid.
func (c *Codec) ValidateToken(rawToken string) (result Validation) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("token validation panicked")
			result = Validation{}
		}
	}()

	if strings.TrimSpace(rawToken) == "" {
		return Validation{}
	}

	_, err := c.parse(rawToken)
	if err == nil {
		return Validation{Valid: true}
	}
	if isExpiredOnly(err) {
		return Validation{Valid: true, Expired: true}
	}

	c.logger.Debug().Err(err).Msg("token failed validation")
	return Validation{}
}

// TryGetClaim peeks at a claim without verifying the signature
func (c *Codec) TryGetClaim(rawToken, claimName string) (string, bool) {
	return TryGetClaim(rawToken, claimName)
}

// ExpiresAt returns the exp claim of a token without verifying it
func (c *Codec) ExpiresAt(rawToken string) (time.Time, bool) {
	return ExpiresAt(rawToken)
}

func (c *Codec) parse(rawToken string) (*jwtlib.Token, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwtlib.WithIssuer(c.issuer),
		jwtlib.WithAudience(c.audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(0),
		jwtlib.WithTimeFunc(c.nowFunc),
	)
	return parser.ParseWithClaims(rawToken, jwtlib.MapClaims{}, c.signer.GetVerificationKey)
}

// isExpiredOnly reports whether expiry is the sole reason validation failed.
// The parser verifies the signature before claims, so a claims-only error
// implies an authentic token.
func isExpiredOnly(err error) bool {
	if !errors.Is(err, jwtlib.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwtlib.ErrTokenMalformed,
		jwtlib.ErrTokenUnverifiable,
		jwtlib.ErrTokenSignatureInvalid,
		jwtlib.ErrTokenInvalidIssuer,
		jwtlib.ErrTokenInvalidAudience,
		jwtlib.ErrTokenNotValidYet,
		jwtlib.ErrTokenUsedBeforeIssued,
		jwtlib.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func randomSalt() (string, error) {
	b := make([]byte, saltLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
