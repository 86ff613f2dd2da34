package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Scope identifies which quota a counter belongs to. Scopes are evaluated
// in order: identity, then endpoint, then global.
type Scope string

const (
	ScopeIdentity Scope = "identity"
	ScopeEndpoint Scope = "endpoint"
	ScopeGlobal   Scope = "global"
)

const keyPrefix = "perimeter:ratelimit"

// Result describes an allowed request's quota position. Remaining and
// ResetAt report the identity scope, the quota a client can act on.
type Result struct {
	Scope      Scope
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration

	// Degraded marks a fail-open allow issued while the counter store was
	// unreachable. No quota numbers are reported for degraded results.
	Degraded bool
}

// LimitExceededError is returned when a scope's post-increment count
// exceeds its quota, or when a store outage is handled fail-closed.
type LimitExceededError struct {
	Scope      Scope
	Limit      int64
	ResetAt    time.Time
	RetryAfter time.Duration
	Degraded   bool
}

func (e *LimitExceededError) Error() string {
	if e.Degraded {
		return fmt.Sprintf("rate limit enforced fail-closed: counter store unavailable (scope %s)", e.Scope)
	}
	return fmt.Sprintf("rate limit exceeded: scope %s, limit %d per window", e.Scope, e.Limit)
}

// SanitizeKeySegment escapes the key delimiter in counter key segments so a
// user-controlled identifier containing ':' cannot address an adjacent
// bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// BucketKey builds the counter key for one (scope, key, window) triple:
// perimeter:ratelimit:{scope}:{key}:{bucket}. Window rollover happens by
// key rotation, never by mutating a live counter.
func BucketKey(scope Scope, key string, bucket int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, scope, SanitizeKeySegment(key), bucket)
}
