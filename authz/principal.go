package authz

import (
	"context"
	"time"

	"github.com/jrsteele09/go-sql-console/authn"
)

// Principal merges the identities established by every scheme of a policy
type Principal struct {
	Identities []authn.Identity
	ExpiresAt  time.Time
	Rotated    *authn.RotatedTokens
}

// Claim returns the first non-empty value of a claim across identities
func (p *Principal) Claim(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, identity := range p.Identities {
		if v, ok := identity.Claim(name); ok {
			return v, true
		}
	}
	return "", false
}

func (p *Principal) Email() string {
	email, _ := p.Claim(authn.ClaimEmail)
	return email
}

type contextKey int

const (
	principalKey contextKey = iota
	itemsKey
)

func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFrom returns the principal stored by Middleware
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalKey).(*Principal)
	return principal, ok && principal != nil
}

func WithItems(ctx context.Context, items *authn.Items) context.Context {
	return context.WithValue(ctx, itemsKey, items)
}

// ItemsFrom returns the per-request bag filled during authentication
func ItemsFrom(ctx context.Context) (*authn.Items, bool) {
	items, ok := ctx.Value(itemsKey).(*authn.Items)
	return items, ok && items != nil
}
