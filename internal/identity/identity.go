// Package identity defines the caller identity established at the gateway
// edge. It is the contract between the token validator, which produces an
// Identity, and every downstream stage, which consumes it.
package identity

import (
	"strings"
	"time"
)

// Role names used by quota tiers and authorization rules.
const (
	RoleAdmin    = "ADMIN"
	RoleStandard = "STANDARD"
)

// UserType classifies the caller population. Tokens carry it as a single
// letter; the gateway works with the parsed form.
type UserType string

const (
	TypeAdmin    UserType = "ADMIN"
	TypeStandard UserType = "STANDARD"
)

// userTypeWire maps the token claim letters to parsed user types.
var userTypeWire = map[string]UserType{
	"A": TypeAdmin,
	"U": TypeStandard,
}

// ParseUserType parses the single-letter user type claim ("A" or "U").
// Returns false for any other value, including the already-parsed forms.
func ParseUserType(wire string) (UserType, bool) {
	t, ok := userTypeWire[wire]
	return t, ok
}

// IsValid reports whether the user type is one of the known values.
func (t UserType) IsValid() bool {
	return t == TypeAdmin || t == TypeStandard
}

// Wire returns the single-letter claim form carried in tokens and the
// X-User-Type header.
func (t UserType) Wire() string {
	if t == TypeAdmin {
		return "A"
	}
	return "U"
}

// String returns the parsed form.
func (t UserType) String() string {
	return string(t)
}

// RoleSet is an ordered, duplicate-free list of role names. Order follows
// first appearance in the source token so forwarded headers are stable.
type RoleSet []string

// NewRoleSet builds a RoleSet from raw role names, dropping empty entries
// and duplicates while preserving first-appearance order.
func NewRoleSet(roles ...string) RoleSet {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Has reports whether the set contains the given role.
func (r RoleSet) Has(role string) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// HasAny reports whether the set contains at least one of the given roles.
func (r RoleSet) HasAny(roles ...string) bool {
	for _, want := range roles {
		if r.Has(want) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set has no roles.
func (r RoleSet) IsEmpty() bool {
	return len(r) == 0
}

// Join returns the roles joined by sep, in set order.
func (r RoleSet) Join(sep string) string {
	return strings.Join(r, sep)
}

// Identity is the authenticated caller. Instances are immutable once built
// by the token validator and are passed explicitly between pipeline stages.
type Identity struct {
	Subject   string
	Type      UserType
	Roles     RoleSet
	SessionID string
	ExpiresAt time.Time
}
