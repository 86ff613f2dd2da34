package ratelimit

import (
	"errors"
	"time"

	"perimeter/internal/identity"
)

// Config holds the quota table and window geometry. All quotas count
// requests per window.
type Config struct {
	// Window is the fixed bucket width. Grace extends counter TTLs past the
	// window end so a bucket's key never expires while still readable.
	Window time.Duration
	Grace  time.Duration

	// Identity-scope quotas by tier.
	AdminLimit    int64
	StandardLimit int64
	DefaultLimit  int64

	// EndpointLimit caps each (method, path) pair; GlobalLimit caps the
	// whole deployment.
	EndpointLimit int64
	GlobalLimit   int64

	// FailOpen selects the store-outage policy: allow degraded (true) or
	// deny (false). There is no third behavior.
	FailOpen bool
}

// DefaultConfig returns the quota table used when no overrides are set.
func DefaultConfig() Config {
	return Config{
		Window:        time.Minute,
		Grace:         10 * time.Second,
		AdminLimit:    1000,
		StandardLimit: 100,
		DefaultLimit:  30,
		EndpointLimit: 500,
		GlobalLimit:   5000,
		FailOpen:      true,
	}
}

// Validate rejects geometry the limiter cannot run with.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if c.Grace < 0 {
		return errors.New("grace must not be negative")
	}
	if c.AdminLimit <= 0 || c.StandardLimit <= 0 || c.DefaultLimit <= 0 {
		return errors.New("identity tier limits must be positive")
	}
	if c.EndpointLimit <= 0 || c.GlobalLimit <= 0 {
		return errors.New("endpoint and global limits must be positive")
	}
	return nil
}

// TierLimit selects the identity-scope quota for a role set. ADMIN wins
// over STANDARD; identities with neither fall to the default tier.
func (c Config) TierLimit(roles identity.RoleSet) int64 {
	switch {
	case roles.Has(identity.RoleAdmin):
		return c.AdminLimit
	case roles.Has(identity.RoleStandard):
		return c.StandardLimit
	default:
		return c.DefaultLimit
	}
}

// Tier names the quota tier a role set maps to, for logs and the admin
// endpoint.
func (c Config) Tier(roles identity.RoleSet) string {
	switch {
	case roles.Has(identity.RoleAdmin):
		return "admin"
	case roles.Has(identity.RoleStandard):
		return "standard"
	default:
		return "default"
	}
}
