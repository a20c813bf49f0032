package iam_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-sql-console/authn"
	"github.com/jrsteele09/go-sql-console/authz"
	"github.com/jrsteele09/go-sql-console/iam"
	"github.com/stretchr/testify/require"
)

const policyYAML = `
roles:
  console-admin:
    - Ops@X.com
  console-user:
    - a@x.com
rules:
  - role: console-user
    resource: connections
    action: "*"
  - role: console-user
    resource: account
    action: read
  - role: console-admin
    resource: "*"
    action: "*"
`

func TestEnforcer_Policy(t *testing.T) {
	policy, err := iam.ParsePolicy([]byte(policyYAML))
	require.NoError(t, err)
	enforcer, err := iam.NewEnforcer(policy)
	require.NoError(t, err)

	tests := []struct {
		email    string
		resource string
		action   string
		allowed  bool
	}{
		{"a@x.com", iam.ResourceConnections, iam.ActionWrite, true},
		{"a@x.com", iam.ResourceAccount, iam.ActionRead, true},
		{"a@x.com", iam.ResourceAccount, iam.ActionWrite, false},
		{"ops@x.com", iam.ResourceAccount, iam.ActionWrite, true},
		{"b@x.com", iam.ResourceConnections, iam.ActionRead, false},
		{"", iam.ResourceConnections, iam.ActionRead, false},
	}
	for _, tt := range tests {
		allowed, err := enforcer.Allowed(tt.email, tt.resource, tt.action)
		require.NoError(t, err)
		require.Equal(t, tt.allowed, allowed, "%s %s %s", tt.email, tt.action, tt.resource)
	}

	require.Equal(t, []string{iam.RoleAdmin}, enforcer.Roles("ops@x.com"))
}

func TestEnforcer_DefaultPolicy(t *testing.T) {
	enforcer, err := iam.NewEnforcer(iam.DefaultPolicy())
	require.NoError(t, err)

	allowed, err := enforcer.Allowed("anyone@x.com", iam.ResourceConnections, iam.ActionWrite)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Contains(t, enforcer.Roles("anyone@x.com"), iam.RoleUser)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()

	missing, err := iam.LoadPolicyFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, iam.DefaultPolicy(), missing)

	path := filepath.Join(dir, "iam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyYAML), 0o644))
	loaded, err := iam.LoadPolicyFile(path)
	require.NoError(t, err)
	require.Len(t, loaded.Rules, 3)
	require.Equal(t, []string{"Ops@X.com"}, loaded.Roles[iam.RoleAdmin])

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - role: x\n"), 0o644))
	_, err = iam.LoadPolicyFile(path)
	require.Error(t, err)
}

func TestRoleRequirement(t *testing.T) {
	policy, err := iam.ParsePolicy([]byte(policyYAML))
	require.NoError(t, err)
	enforcer, err := iam.NewEnforcer(policy)
	require.NoError(t, err)

	requirement := iam.RoleRequirement{Enforcer: enforcer, Resource: iam.ResourceConnections, Action: iam.ActionWrite}
	principal := func(email string) *authz.Principal {
		return &authz.Principal{Identities: []authn.Identity{{
			Scheme: authn.SchemeIdentity,
			Claims: map[string]string{authn.ClaimEmail: email},
		}}}
	}

	require.NoError(t, requirement.Evaluate(context.Background(), principal("a@x.com")))
	require.Error(t, requirement.Evaluate(context.Background(), principal("b@x.com")))
	require.Error(t, requirement.Evaluate(context.Background(), &authz.Principal{}))
}
