// Package iam decides which console operations an authenticated email may
// perform, using a casbin RBAC model fed from a YAML policy file.
package iam

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"gopkg.in/yaml.v3"
)

//go:embed model.conf
var modelContent string

// Built-in roles
const (
	RoleUser  = "console-user"
	RoleAdmin = "console-admin"
)

// Resources and actions checked by the API
const (
	ResourceAccount     = "account"
	ResourceConnections = "connections"

	ActionRead  = "read"
	ActionWrite = "write"
)

// Rule grants a role an action on resources matching a keyMatch pattern
type Rule struct {
	Role     string `yaml:"role"`
	Resource string `yaml:"resource"`
	Action   string `yaml:"action"`
}

// Policy is the YAML document loaded from IAM_POLICY_FILE
type Policy struct {
	// DefaultRole is held by every authenticated email. Empty means none.
	DefaultRole string              `yaml:"default_role"`
	Roles       map[string][]string `yaml:"roles"`
	Rules       []Rule              `yaml:"rules"`
}

// DefaultPolicy lets any authenticated user use the console
func DefaultPolicy() Policy {
	return Policy{
		DefaultRole: RoleUser,
		Rules: []Rule{
			{Role: RoleUser, Resource: ResourceAccount, Action: "*"},
			{Role: RoleUser, Resource: ResourceConnections, Action: "*"},
			{Role: RoleAdmin, Resource: "*", Action: "*"},
		},
	}
}

// ParsePolicy decodes a YAML policy document
func ParsePolicy(data []byte) (Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse iam policy: %w", err)
	}
	for i, rule := range policy.Rules {
		if rule.Role == "" || rule.Resource == "" || rule.Action == "" {
			return Policy{}, fmt.Errorf("iam rule %d: role, resource and action are required", i)
		}
	}
	return policy, nil
}

// LoadPolicyFile reads path, falling back to DefaultPolicy when it does not exist
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("read iam policy: %w", err)
	}
	return ParsePolicy(data)
}

// Enforcer answers access questions for emails
type Enforcer struct {
	enforcer    casbin.IEnforcer
	defaultRole string
}

func NewEnforcer(policy Policy) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	for _, rule := range policy.Rules {
		if _, err := enforcer.AddPolicy(rule.Role, rule.Resource, rule.Action); err != nil {
			return nil, fmt.Errorf("add iam rule for %s: %w", rule.Role, err)
		}
	}
	for role, emails := range policy.Roles {
		for _, email := range emails {
			if _, err := enforcer.AddGroupingPolicy(normalise(email), role); err != nil {
				return nil, fmt.Errorf("assign role %s: %w", role, err)
			}
		}
	}

	return &Enforcer{enforcer: enforcer, defaultRole: policy.DefaultRole}, nil
}

// Allowed reports whether email may perform action on resource
func (e *Enforcer) Allowed(email, resource, action string) (bool, error) {
	email = normalise(email)
	if email == "" {
		return false, nil
	}

	allowed, err := e.enforcer.Enforce(email, resource, action)
	if err != nil {
		return false, fmt.Errorf("enforce iam policy: %w", err)
	}
	if allowed || e.defaultRole == "" {
		return allowed, nil
	}

	allowed, err = e.enforcer.Enforce(e.defaultRole, resource, action)
	if err != nil {
		return false, fmt.Errorf("enforce iam policy: %w", err)
	}
	return allowed, nil
}

// Roles lists the roles held by email, including the default role
func (e *Enforcer) Roles(email string) []string {
	roles, err := e.enforcer.GetRolesForUser(normalise(email))
	if err != nil {
		roles = nil
	}
	if e.defaultRole != "" {
		roles = append(roles, e.defaultRole)
	}
	return roles
}

func normalise(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
