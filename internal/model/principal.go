package model

import (
	"slices"

	"github.com/google/uuid"
)

// Role is a coarse authorization role carried by a Principal.
type Role string

const (
	RoleUser     Role = "USER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Principal is the resolved caller of a core operation. The zero value is
// the anonymous principal.
type Principal struct {
	UserID uuid.UUID
	Roles  []Role
}

func Anonymous() Principal { return Principal{} }

func (p Principal) IsAnonymous() bool { return p.UserID == uuid.Nil }

func (p Principal) HasRole(role Role) bool { return slices.Contains(p.Roles, role) }

func (p Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }

// CanPublish reports whether the principal may create or edit items.
func (p Principal) CanPublish() bool {
	return p.HasRole(RoleAdmin) || p.HasRole(RoleProvider)
}
