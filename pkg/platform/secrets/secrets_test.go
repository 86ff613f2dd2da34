package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "secrets must not repeat")
}

func TestHashAndVerify(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		hash, err := Hash("admin-key-123")
		require.NoError(t, err)
		assert.NoError(t, Verify("admin-key-123", hash))
	})

	t.Run("wrong secret is a mismatch", func(t *testing.T) {
		hash, err := Hash("admin-key-123")
		require.NoError(t, err)
		assert.ErrorIs(t, Verify("other-key", hash), ErrMismatch)
	})

	t.Run("empty secret cannot be hashed", func(t *testing.T) {
		_, err := Hash("")
		assert.Error(t, err)
	})

	t.Run("garbage hash is rejected without panic", func(t *testing.T) {
		assert.Error(t, Verify("admin-key-123", "not-a-bcrypt-hash"))
	})
}
