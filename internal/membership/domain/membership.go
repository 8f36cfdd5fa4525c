package domain

import (
	"errors"
	"strings"
	"time"
)

// Membership links a user to an organization with a role. There is at most one membership per (org, user).
type Membership struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	// ErrInvalidRole is returned by ParseRole for strings outside the closed role set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrMembershipNotFound is returned when an operation targets a user with no membership in the org.
	ErrMembershipNotFound = errors.New("membership not found")
	// ErrAlreadyMember is returned when adding a user that already holds a role in the org.
	ErrAlreadyMember = errors.New("user is already a member of the organization")
	// ErrInvalidUserID is returned when a membership names no user.
	ErrInvalidUserID = errors.New("user id required")
	// ErrLastOwner is returned when a change would leave the organization without an owner.
	ErrLastOwner = errors.New("organization must keep at least one owner")
)

// Rank orders roles: member=0, admin=1, owner=2. Unknown roles rank below member.
func Rank(r Role) int {
	switch r {
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 1
	case RoleMember:
		return 0
	default:
		return -1
	}
}

// Satisfies reports whether held is at least as privileged as required.
func Satisfies(held, required Role) bool {
	return Rank(held) >= Rank(required)
}

// IsElevated reports whether r is admin or owner.
func (r Role) IsElevated() bool {
	return Satisfies(r, RoleAdmin)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return Rank(r) >= 0
}

// ParseRole validates s (case-insensitive, surrounding space ignored) against the role set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}
