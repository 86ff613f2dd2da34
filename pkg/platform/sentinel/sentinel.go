package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, sinks and the upstream
// proxy return these (optionally wrapped) so callers can translate them into
// gateway decisions without inspecting driver-specific error types.
//
// These represent factual states about resources, not validation failures:
// - ErrUnavailable: dependency (counter store, upstream, broker) cannot be reached
// - ErrNotFound: entity does not exist in a store
//
// Validation failures belong to the typed errors of the package that owns
// the rule (token.AuthError, authz.DeniedError, ratelimit.LimitExceededError).
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
