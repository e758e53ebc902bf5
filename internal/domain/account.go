package domain

import "time"

const (
	// RoleAdministrator is granted to the bootstrap account and gates account management.
	RoleAdministrator = "Administrator"
	// RoleUser is assumed when an account carries no explicit role.
	RoleUser = "User"
)

// Account represents an operator able to authenticate against the API.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveRole returns the stored role, falling back to RoleUser when unset.
func (a Account) EffectiveRole() string {
	if a.Role == "" {
		return RoleUser
	}
	return a.Role
}
