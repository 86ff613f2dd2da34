// Package ratelimit enforces sliding-window request quotas against a shared
// counter store. The window is approximated by fixed-width buckets: each
// (scope, key, window index) triple maps to one monotonically increasing
// counter that rotates out when the next window begins.
//
// Three scopes are checked in order: identity, endpoint, global. The first
// violated scope denies the request and later scopes are not incremented.
// When the counter store is unreachable the configured policy decides
// between a degraded allow (fail-open) and a deny (fail-closed); a circuit
// breaker keeps the store from being hammered while it is down.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"perimeter/internal/audit"
	"perimeter/internal/identity"
	"perimeter/internal/ratelimit/metrics"
	"perimeter/pkg/platform/circuit"
	"perimeter/pkg/requestcontext"
)

//go:generate mockgen -source=limiter.go -destination=mocks/mocks.go -package=mocks

// CounterStore is the port to the shared counter backend.
type CounterStore interface {
	// Increment atomically adds one to the counter at key and returns the
	// post-increment count.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets the counter's time-to-live. Called once per key, on its
	// first increment.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Limiter applies the quota table to incoming requests.
type Limiter struct {
	store    CounterStore
	cfg      Config
	breaker  *circuit.Breaker
	logger   *slog.Logger
	recorder *audit.Recorder
	metrics  *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithAudit sets the audit recorder for quota decisions.
func WithAudit(recorder *audit.Recorder) Option {
	return func(l *Limiter) {
		l.recorder = recorder
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker guarding the store.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.breaker = b
	}
}

// NewLimiter creates a Limiter over the given counter store.
func NewLimiter(store CounterStore, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	l := &Limiter{
		store:   store,
		cfg:     cfg,
		breaker: circuit.New("ratelimit-store"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the active quota table.
func (l *Limiter) Config() Config {
	return l.cfg
}

// StoreHealthy reports whether the breaker currently trusts the counter
// store.
func (l *Limiter) StoreHealthy() bool {
	return !l.breaker.IsOpen()
}

type scopeCheck struct {
	scope Scope
	key   string
	limit int64
}

// Check increments the identity, endpoint and global counters for this
// request in order and verifies each against its quota. It returns a
// *LimitExceededError for the first violated scope; later scopes keep
// their counts untouched so a rejected request never inflates them.
//
// The window bucket is derived from the request clock, so every scope sees
// the same window for a given request.
func (l *Limiter) Check(ctx context.Context, id identity.Identity, method, path string) (Result, error) {
	now := requestcontext.Now(ctx)
	windowSecs := int64(l.cfg.Window.Seconds())
	bucket := now.Unix() / windowSecs
	resetAt := time.Unix((bucket+1)*windowSecs, 0).UTC()

	if !l.breaker.Allow() {
		return l.degraded(ctx, id, nil)
	}

	checks := []scopeCheck{
		{ScopeIdentity, id.Subject, l.cfg.TierLimit(id.Roles)},
		{ScopeEndpoint, method + " " + path, l.cfg.EndpointLimit},
		{ScopeGlobal, "all", l.cfg.GlobalLimit},
	}

	result := Result{Scope: ScopeIdentity, ResetAt: resetAt}
	for _, c := range checks {
		count, err := l.increment(ctx, c, bucket)
		if err != nil {
			if l.logger != nil {
				l.logger.ErrorContext(ctx, "counter store unreachable",
					"scope", string(c.scope),
					"error", err,
				)
			}
			if _, change := l.breaker.RecordFailure(); change.Opened && l.logger != nil {
				l.logger.WarnContext(ctx, "counter store circuit opened", "breaker", l.breaker.Name())
			}
			return l.degraded(ctx, id, err)
		}
		if _, change := l.breaker.RecordSuccess(); change.Closed && l.logger != nil {
			l.logger.InfoContext(ctx, "counter store circuit closed", "breaker", l.breaker.Name())
		}

		if c.scope == ScopeIdentity {
			result.Limit = c.limit
			result.Remaining = max(c.limit-count, 0)
		}

		if count > c.limit {
			return Result{}, l.exceeded(ctx, id, c, resetAt, now)
		}
	}

	if l.metrics != nil {
		l.metrics.IncAllowed()
	}
	return result, nil
}

// increment bumps one scope's counter and arms its TTL on first use. A
// failed Expire is logged and tolerated: the count is still correct, the
// key just lives until the backend reclaims it.
func (l *Limiter) increment(ctx context.Context, c scopeCheck, bucket int64) (int64, error) {
	key := BucketKey(c.scope, c.key, bucket)
	count, err := l.store.Increment(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment %s counter: %w", c.scope, err)
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.cfg.Window+l.cfg.Grace); err != nil && l.logger != nil {
			l.logger.WarnContext(ctx, "failed to set counter expiry",
				"key", key,
				"error", err,
			)
		}
	}
	return count, nil
}

func (l *Limiter) exceeded(ctx context.Context, id identity.Identity, c scopeCheck, resetAt time.Time, now time.Time) *LimitExceededError {
	if l.metrics != nil {
		l.metrics.IncExceeded(string(c.scope))
	}
	audit.Log(ctx, l.logger, l.recorder, audit.EventRateLimitExceeded,
		"subject", id.Subject,
		"user_type", id.Type.Wire(),
		"scope", string(c.scope),
		"limit", c.limit,
		"window_seconds", int64(l.cfg.Window.Seconds()),
	)
	return &LimitExceededError{
		Scope:      c.scope,
		Limit:      c.limit,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}
}

// degraded applies the store-outage policy. Both branches emit the
// degraded audit event so operators can reconcile what the gateway decided
// while blind.
func (l *Limiter) degraded(ctx context.Context, id identity.Identity, cause error) (Result, error) {
	policy := "fail_closed"
	if l.cfg.FailOpen {
		policy = "fail_open"
	}
	if l.metrics != nil {
		l.metrics.IncDegraded(policy)
	}

	attrList := []any{
		"subject", id.Subject,
		"user_type", id.Type.Wire(),
		"policy", policy,
	}
	if cause != nil {
		attrList = append(attrList, "error", cause)
	}
	audit.Log(ctx, l.logger, l.recorder, audit.EventRateLimitDegraded, attrList...)

	if l.cfg.FailOpen {
		return Result{Degraded: true}, nil
	}
	return Result{}, &LimitExceededError{
		Scope:      ScopeIdentity,
		Limit:      l.cfg.TierLimit(id.Roles),
		ResetAt:    requestcontext.Now(ctx).Add(l.cfg.Window),
		RetryAfter: l.cfg.Window,
		Degraded:   true,
	}
}
