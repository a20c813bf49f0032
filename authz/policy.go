package authz

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-sql-console/authn"
)

// Policy names the schemes that must all succeed and the requirements the
// resulting principal must meet
type Policy struct {
	Name         string
	Schemes      []string
	Requirements []Requirement
}

// Requirement returns a non-nil error, used as the forbidden reason, when unmet
type Requirement interface {
	Evaluate(ctx context.Context, principal *Principal) error
}

// Policy names
const (
	PolicyIdentity = "Identity"
	PolicySession  = "Session"
)

// IdentityPolicy requires a valid identity token
func IdentityPolicy(requirements ...Requirement) Policy {
	return Policy{
		Name:         PolicyIdentity,
		Schemes:      []string{authn.SchemeIdentity},
		Requirements: requirements,
	}
}

// SessionPolicy requires a valid identity token and a bound database session
func SessionPolicy(requirements ...Requirement) Policy {
	return Policy{
		Name:    PolicySession,
		Schemes: []string{authn.SchemeIdentity, authn.SchemeSession},
		Requirements: append([]Requirement{
			ClaimsPresentRequirement{Claims: []string{authn.ClaimInstanceType, authn.ClaimConnectionString}},
		}, requirements...),
	}
}

// ClaimsPresentRequirement requires every listed claim to be non-empty
type ClaimsPresentRequirement struct {
	Claims []string
}

func (r ClaimsPresentRequirement) Evaluate(_ context.Context, principal *Principal) error {
	for _, claim := range r.Claims {
		if _, ok := principal.Claim(claim); !ok {
			return fmt.Errorf("claim %s is required", claim)
		}
	}
	return nil
}
