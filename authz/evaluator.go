// Package authz composes authentication schemes into policies and decides
// whether the resulting principal may proceed.
package authz

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/jrsteele09/go-sql-console/authn"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Decision is the outcome of Authorize
type Decision int

const (
	Allow Decision = iota
	Challenge
	Forbid
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Challenge:
		return "challenge"
	case Forbid:
		return "forbid"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// AuthenticateResult carries the merged principal, or the first failure
type AuthenticateResult struct {
	Principal    *Principal
	FailedScheme string
	Failure      error
}

// NoResult reports whether authentication short-circuited
func (r AuthenticateResult) NoResult() bool {
	return r.Principal == nil
}

type AuthorizeResult struct {
	Decision Decision
	Reason   string
}

// Evaluator runs policies against registered authenticators
type Evaluator struct {
	authenticators map[string]authn.Authenticator
	logger         zerolog.Logger
}

type Option func(*Evaluator)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func NewEvaluator(authenticators []authn.Authenticator, options ...Option) *Evaluator {
	e := &Evaluator{
		authenticators: make(map[string]authn.Authenticator, len(authenticators)),
		logger:         log.Logger,
	}
	for _, a := range authenticators {
		e.authenticators[a.Scheme()] = a
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Authenticate runs the policy's schemes in ascending name order and stops at
// the first failure. On success the new identities come first, followed by
// the non-empty identities of existing, and ExpiresAt is the earliest expiry.
func (e *Evaluator) Authenticate(ctx context.Context, policy Policy, req *authn.Request, existing *Principal) AuthenticateResult {
	schemes := append([]string(nil), policy.Schemes...)
	sort.Strings(schemes)

	principal := &Principal{}
	for _, scheme := range schemes {
		authenticator, ok := e.authenticators[scheme]
		if !ok {
			return AuthenticateResult{
				FailedScheme: scheme,
				Failure:      fmt.Errorf("scheme %s: %w", scheme, internalerrors.ErrUnsupported),
			}
		}

		outcome := authenticator.Authenticate(ctx, req)
		if !outcome.Succeeded {
			e.logger.Debug().Str("policy", policy.Name).Str("scheme", scheme).Err(outcome.FailureReason).Msg("authentication failed")
			return AuthenticateResult{FailedScheme: scheme, Failure: outcome.FailureReason}
		}

		principal.Identities = append(principal.Identities, outcome.Identity)
		principal.ExpiresAt = earliest(principal.ExpiresAt, outcome.ExpiresAt)
		principal.Rotated = mergeRotated(principal.Rotated, outcome.Rotated)
	}

	if existing != nil {
		for _, identity := range existing.Identities {
			if !identity.Empty() {
				principal.Identities = append(principal.Identities, identity)
			}
		}
		principal.ExpiresAt = earliest(principal.ExpiresAt, existing.ExpiresAt)
	}
	return AuthenticateResult{Principal: principal}
}

// Authorize checks the policy requirements in order. A nil principal is
// challenged; the first unmet requirement forbids.
func (e *Evaluator) Authorize(ctx context.Context, policy Policy, principal *Principal) AuthorizeResult {
	if principal == nil {
		return AuthorizeResult{Decision: Challenge}
	}
	for _, requirement := range policy.Requirements {
		if err := requirement.Evaluate(ctx, principal); err != nil {
			return AuthorizeResult{Decision: Forbid, Reason: err.Error()}
		}
	}
	return AuthorizeResult{Decision: Allow}
}

// Middleware authenticates and authorizes each request against policy.
// Challenge maps to 401 and Forbid to 403 with the reason in the
// authorization-error header.
func (e *Evaluator) Middleware(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			existing, _ := PrincipalFrom(ctx)

			req := authn.NewRequest(r, w)
			result := e.Authenticate(ctx, policy, req, existing)
			decision := e.Authorize(ctx, policy, result.Principal)

			switch decision.Decision {
			case Challenge:
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			case Forbid:
				e.logger.Info().Str("policy", policy.Name).Str("email", result.Principal.Email()).Str("reason", decision.Reason).Msg("request forbidden")
				w.Header().Set(authn.HeaderAuthorizationError, decision.Reason)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx = WithPrincipal(ctx, result.Principal)
			ctx = WithItems(ctx, req.Items)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}

func mergeRotated(current, next *authn.RotatedTokens) *authn.RotatedTokens {
	if next == nil {
		return current
	}
	if current == nil {
		c := *next
		return &c
	}
	if next.IdentityToken != "" {
		current.IdentityToken = next.IdentityToken
	}
	if next.SessionToken != "" {
		current.SessionToken = next.SessionToken
		current.RefreshToken = next.RefreshToken
	}
	return current
}
