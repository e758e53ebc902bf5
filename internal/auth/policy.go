package auth

import "user-management-api/internal/domain"

// PolicyAdminOnly gates account management routes.
const PolicyAdminOnly = "AdminOnly"

// Policy names a role requirement.
type Policy struct {
	Name string
	Role string
}

// DefaultPolicies returns the built-in policy set.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyAdminOnly, Role: domain.RoleAdministrator},
	}
}

// PolicyEngine decides access purely from validated claims; it never reads the store.
type PolicyEngine struct {
	roles map[string]string
}

// NewPolicyEngine registers the default policies followed by the given ones,
// later entries replacing earlier ones with the same name.
func NewPolicyEngine(policies ...Policy) *PolicyEngine {
	roles := make(map[string]string)
	for _, p := range append(DefaultPolicies(), policies...) {
		roles[p.Name] = p.Role
	}
	return &PolicyEngine{roles: roles}
}

// Authorize returns nil when claims satisfy policy. An empty policy admits
// any authenticated subject.
func (e *PolicyEngine) Authorize(claims *Claims, policy string) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	if policy == "" {
		return nil
	}
	role, ok := e.roles[policy]
	if !ok {
		return ErrUnknownPolicy
	}
	if claims.Role != role {
		return ErrForbidden
	}
	return nil
}
