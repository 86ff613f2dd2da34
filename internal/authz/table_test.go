package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perimeter/internal/identity"
)

func TestNewTable(t *testing.T) {
	t.Run("rejects empty table", func(t *testing.T) {
		_, err := NewTable()
		assert.Error(t, err)
	})

	t.Run("rejects prefix without leading slash", func(t *testing.T) {
		_, err := NewTable(Rule{Prefix: "api/"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must start with /")
	})

	t.Run("keeps rule order", func(t *testing.T) {
		table, err := NewTable(
			Rule{Prefix: "/a"},
			Rule{Prefix: "/b"},
		)
		require.NoError(t, err)
		assert.Equal(t, "/a", table[0].Prefix)
		assert.Equal(t, "/b", table[1].Prefix)
	})
}

func TestTableMatch(t *testing.T) {
	table, err := NewTable(
		Rule{Prefix: "/api/admin/", Roles: identity.NewRoleSet("ADMIN")},
		Rule{Prefix: "/api/", Roles: identity.NewRoleSet("ADMIN", "STANDARD")},
	)
	require.NoError(t, err)

	t.Run("first matching prefix wins", func(t *testing.T) {
		rule, ok := table.Match("/api/admin/users")
		require.True(t, ok)
		assert.Equal(t, "/api/admin/", rule.Prefix)

		rule, ok = table.Match("/api/accounts")
		require.True(t, ok)
		assert.Equal(t, "/api/", rule.Prefix)
	})

	t.Run("no rule matches", func(t *testing.T) {
		_, ok := table.Match("/metrics")
		assert.False(t, ok)
	})

	t.Run("a broad prefix placed first shadows narrower rules", func(t *testing.T) {
		shadowed, err := NewTable(
			Rule{Prefix: "/api/", Roles: identity.NewRoleSet("STANDARD")},
			Rule{Prefix: "/api/admin/", Roles: identity.NewRoleSet("ADMIN")},
		)
		require.NoError(t, err)

		rule, ok := shadowed.Match("/api/admin/users")
		require.True(t, ok)
		assert.Equal(t, "/api/", rule.Prefix, "order decides, not specificity")
	})
}

func TestTablePublic(t *testing.T) {
	table := DefaultTable()

	assert.True(t, table.Public("/health"))
	assert.True(t, table.Public("/api/auth/login"))
	assert.False(t, table.Public("/api/accounts"))
	assert.False(t, table.Public("/api/admin/users"))
	assert.False(t, table.Public("/anything-else"), "catch-all requires admin")
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	rule, ok := table.Match("/api/admin/users")
	require.True(t, ok)
	assert.Equal(t, identity.NewRoleSet("ADMIN"), rule.Roles)

	rule, ok = table.Match("/api/accounts")
	require.True(t, ok)
	assert.Equal(t, identity.NewRoleSet("ADMIN", "STANDARD"), rule.Roles)

	// Unlisted paths hit the explicit default-deny backstop.
	rule, ok = table.Match("/internal/debug")
	require.True(t, ok)
	assert.Equal(t, "/", rule.Prefix)
	assert.Equal(t, identity.NewRoleSet("ADMIN"), rule.Roles)
}

func TestParseRules(t *testing.T) {
	t.Run("parses prefixes, roles and public entries", func(t *testing.T) {
		table, err := ParseRules("/public/=;/api/admin/=ADMIN;/api/=ADMIN|STANDARD")
		require.NoError(t, err)
		require.Len(t, table, 3)

		assert.True(t, table[0].Public())
		assert.Equal(t, identity.NewRoleSet("ADMIN"), table[1].Roles)
		assert.Equal(t, identity.NewRoleSet("ADMIN", "STANDARD"), table[2].Roles)
	})

	t.Run("tolerates whitespace and empty entries", func(t *testing.T) {
		table, err := ParseRules(" /a=ADMIN ; ; /b= ")
		require.NoError(t, err)
		require.Len(t, table, 2)
		assert.Equal(t, "/a", table[0].Prefix)
		assert.True(t, table[1].Public())
	})

	t.Run("rejects entries without a separator", func(t *testing.T) {
		_, err := ParseRules("/a=ADMIN;broken")
		assert.Error(t, err)
	})

	t.Run("rejects an all-empty spec", func(t *testing.T) {
		_, err := ParseRules(" ; ")
		assert.Error(t, err)
	})
}
