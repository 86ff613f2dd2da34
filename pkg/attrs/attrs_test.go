package attrs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	kv := []any{"reason", "expired", "count", 3, "scope", "identity"}

	assert.Equal(t, "expired", ExtractString(kv, "reason"))
	assert.Equal(t, "identity", ExtractString(kv, "scope"))
	assert.Empty(t, ExtractString(kv, "count"), "non-string values are not extracted")
	assert.Empty(t, ExtractString(kv, "missing"))
	assert.Empty(t, ExtractString(nil, "reason"))
}

func TestStringMap(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	kv := []any{
		"reason", "expired",
		"count", int64(3),
		"degraded", true,
		"window", 60 * time.Second,
		"at", ts,
		"err", errors.New("boom"),
	}

	got := StringMap(kv)
	assert.Equal(t, map[string]string{
		"reason":   "expired",
		"count":    "3",
		"degraded": "true",
		"window":   "1m0s",
		"at":       "2026-01-02T03:04:05Z",
		"err":      "boom",
	}, got)
}

func TestStringMap_Empty(t *testing.T) {
	assert.Nil(t, StringMap(nil))
	assert.Nil(t, StringMap([]any{"dangling"}))
}
