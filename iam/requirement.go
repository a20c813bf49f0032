package iam

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-sql-console/authz"
)

// RoleRequirement requires the principal's email to be allowed Action on Resource
type RoleRequirement struct {
	Enforcer *Enforcer
	Resource string
	Action   string
}

var _ authz.Requirement = RoleRequirement{}

func (r RoleRequirement) Evaluate(_ context.Context, principal *authz.Principal) error {
	email := principal.Email()
	if email == "" {
		return fmt.Errorf("no email claim to authorize")
	}

	allowed, err := r.Enforcer.Allowed(email, r.Resource, r.Action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%s may not %s %s", email, r.Action, r.Resource)
	}
	return nil
}
