package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleIssuer is the OIDC discovery issuer for Google accounts
const GoogleIssuer = "https://accounts.google.com"

const defaultRefreshTimeout = 10 * time.Second

// Tokens is the token set returned by the identity provider
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// Refresher obtains a new identity token from a refresh token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Exchanger runs the authorization code flow
type Exchanger interface {
	AuthCodeURL(state, codeVerifier, nonce string) string
	Exchange(ctx context.Context, code, codeVerifier, nonce string) (Tokens, Claims, error)
}

// GoogleClient implements Refresher and Exchanger against Google's OAuth2 endpoints
type GoogleClient struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

var (
	_ Refresher = (*GoogleClient)(nil)
	_ Exchanger = (*GoogleClient)(nil)
)

type GoogleOption func(*GoogleClient)

// WithEndpoint overrides google.Endpoint
func WithEndpoint(endpoint oauth2.Endpoint) GoogleOption {
	return func(c *GoogleClient) {
		c.oauth.Endpoint = endpoint
	}
}

// WithVerifier enables signature verification of returned ID tokens
func WithVerifier(verifier *oidc.IDTokenVerifier) GoogleOption {
	return func(c *GoogleClient) {
		c.verifier = verifier
	}
}

// WithRefreshTimeout bounds every call to the token endpoint
func WithRefreshTimeout(timeout time.Duration) GoogleOption {
	return func(c *GoogleClient) {
		c.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) GoogleOption {
	return func(c *GoogleClient) {
		c.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) GoogleOption {
	return func(c *GoogleClient) {
		c.logger = logger
	}
}

func NewGoogleClient(clientID, clientSecret, redirectURL string, options ...GoogleOption) *GoogleClient {
	c := &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		timeout: defaultRefreshTimeout,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewGoogleVerifier discovers Google's signing keys for ID token verification
func NewGoogleVerifier(ctx context.Context, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// AuthCodeURL builds the consent URL with a PKCE challenge and nonce.
// Offline access is requested so a refresh token is issued.
func (c *GoogleClient) AuthCodeURL(state, codeVerifier, nonce string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(codeVerifier),
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange swaps an authorization code for tokens and checks the ID token nonce
func (c *GoogleClient) Exchange(ctx context.Context, code, codeVerifier, nonce string) (Tokens, Claims, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return Tokens{}, Claims{}, fmt.Errorf("%w: %v", internalerrors.ErrIdentityExchangeFailed, err)
	}

	tokens, err := c.tokensFrom(ctx, token, nonce)
	if err != nil {
		return Tokens{}, Claims{}, fmt.Errorf("%w: %v", internalerrors.ErrIdentityExchangeFailed, err)
	}

	claims, err := ParseClaims(tokens.IDToken)
	if err != nil {
		return Tokens{}, Claims{}, fmt.Errorf("%w: %v", internalerrors.ErrIdentityExchangeFailed, err)
	}
	return tokens, claims, nil
}

// Refresh runs the refresh-token grant and returns the new token set. Google
// does not always return a new refresh token; the presented one is kept then.
func (c *GoogleClient) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: no refresh token stored", internalerrors.ErrIdentityRefreshFailed)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", internalerrors.ErrIdentityRefreshFailed, err)
	}

	tokens, err := c.tokensFrom(ctx, token, "")
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", internalerrors.ErrIdentityRefreshFailed, err)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	c.logger.Debug().Time("expiry", tokens.Expiry).Msg("identity token refreshed")
	return tokens, nil
}

func (c *GoogleClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *GoogleClient) tokensFrom(ctx context.Context, token *oauth2.Token, nonce string) (Tokens, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Tokens{}, fmt.Errorf("no id_token in token response")
	}

	if c.verifier != nil {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return Tokens{}, fmt.Errorf("id token verification failed: %w", err)
		}
		if nonce != "" && idToken.Nonce != nonce {
			return Tokens{}, fmt.Errorf("invalid nonce")
		}
	} else if nonce != "" {
		if got, _ := jwt.TryGetClaim(rawIDToken, "nonce"); got != nonce {
			return Tokens{}, fmt.Errorf("invalid nonce")
		}
	}

	return Tokens{
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}
