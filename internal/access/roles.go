// Package access implements hierarchical role resolution and the
// authorization gates built on top of it. Roles are never cached: every
// check re-resolves from the membership records.
package access

import (
	kferrors "github.com/keyfold/keyfold/internal/errors"
)

// Role is a subject's permission level within a scope.
type Role string

const (
	// RoleOwner has full control, including ownership transfer.
	RoleOwner Role = "owner"

	// RoleAdmin may perform configuration-changing calls.
	RoleAdmin Role = "admin"

	// RoleDeveloper may read and edit secrets.
	RoleDeveloper Role = "developer"

	// RoleViewer has read-only access.
	RoleViewer Role = "viewer"

	// RoleNone means the subject has no access in the scope.
	RoleNone Role = ""
)

var roleRank = map[Role]int{
	RoleOwner:     4,
	RoleAdmin:     3,
	RoleDeveloper: 2,
	RoleViewer:    1,
	RoleNone:      0,
}

// ParseRole validates a role string from external input.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleDeveloper, RoleViewer:
		return Role(s), nil
	}
	return RoleNone, kferrors.ValidationError{Field: "role", Message: "must be one of owner, admin, developer, viewer"}
}

// Rank returns the role's position in the owner > admin > developer > viewer
// order. Higher outranks lower.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r outranks or equals other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// IsManagerial reports whether the role passes the configuration-change gate.
func (r Role) IsManagerial() bool {
	return r == RoleOwner || r == RoleAdmin
}

// highest returns the highest-ranked role among candidates, or RoleNone.
func highest(candidates []Role) Role {
	best := RoleNone
	for _, c := range candidates {
		if c.Rank() > best.Rank() {
			best = c
		}
	}
	return best
}
