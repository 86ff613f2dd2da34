// Package authz decides whether an identity may reach a path. Decisions
// come from an ordered prefix-rule table: the first rule whose prefix
// matches the request path wins, and a path matching no rule is denied.
// The decision itself is a pure function of (role set, path); only the
// audit trail observes it.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"perimeter/internal/identity"
)

// Rule grants access to paths under Prefix for identities holding at least
// one of Roles. An empty role set marks the prefix public: no identity is
// required and the pipeline bypasses authentication entirely.
type Rule struct {
	Prefix string
	Roles  identity.RoleSet
}

// Public reports whether the rule requires no identity.
func (r Rule) Public() bool {
	return r.Roles.IsEmpty()
}

// Table is an ordered rule list. Order is configuration order; a broad
// prefix placed first shadows everything behind it.
type Table []Rule

// NewTable validates and assembles a rule table.
func NewTable(rules ...Rule) (Table, error) {
	if len(rules) == 0 {
		return nil, errors.New("at least one rule is required")
	}
	for i, r := range rules {
		if !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("rule %d (%q): prefix must start with /", i, r.Prefix)
		}
	}
	return Table(rules), nil
}

// Match returns the first rule whose prefix is a prefix of path.
func (t Table) Match(path string) (Rule, bool) {
	for _, r := range t {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Public reports whether path is served without authentication. This is
// the orchestrator's bypass check, evaluated before the token validator.
func (t Table) Public(path string) bool {
	r, ok := t.Match(path)
	return ok && r.Public()
}

// DefaultTable is the rule set used when no override is configured. The
// trailing catch-all makes the default-deny posture explicit: unlisted
// paths need the admin role rather than falling through open.
func DefaultTable() Table {
	return Table{
		{Prefix: "/health"},
		{Prefix: "/metrics"},
		{Prefix: "/api/auth/"},
		{Prefix: "/api/admin/", Roles: identity.NewRoleSet(identity.RoleAdmin)},
		{Prefix: "/api/", Roles: identity.NewRoleSet(identity.RoleAdmin, identity.RoleStandard)},
		{Prefix: "/", Roles: identity.NewRoleSet(identity.RoleAdmin)},
	}
}

// ParseRules builds a table from its configuration form:
// "prefix=ROLE|ROLE;prefix=" where an empty role list marks the prefix
// public. Entries keep their written order.
func ParseRules(s string) (Table, error) {
	var rules []Rule
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, roleSpec, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("rule %q: want prefix=role|role", entry)
		}
		var roles identity.RoleSet
		if roleSpec != "" {
			roles = identity.NewRoleSet(strings.Split(roleSpec, "|")...)
		}
		rules = append(rules, Rule{Prefix: strings.TrimSpace(prefix), Roles: roles})
	}
	return NewTable(rules...)
}
