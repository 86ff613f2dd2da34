// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// The gateway middleware builds a Request descriptor once per inbound request
// and stores it in the context; downstream stages (validator, limiter,
// authorizer, audit recorder) read from it without touching net/http.
//
// Usage in services (read values):
//
//	corrID := requestcontext.CorrelationID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithRequest(ctx, req)
//	ctx = requestcontext.WithTime(ctx, receivedAt)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithCorrelationID(ctx, "corr-123")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Request describes one inbound request as seen at the gateway edge.
// It deliberately excludes the caller identity: identity is established by
// the token validator and passed explicitly between pipeline stages, never
// through the context.
type Request struct {
	CorrelationID string
	Method        string
	Path          string
	ClientAddr    string
	UserAgent     string
	ReceivedAt    time.Time
}

// Context key types (unexported for encapsulation).
type (
	requestKey     struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequest     = requestKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestFrom retrieves the request descriptor from the context.
// Returns the zero value if not set (for non-HTTP contexts like workers or tests).
func RequestFrom(ctx context.Context) Request {
	if r, ok := ctx.Value(ContextKeyRequest).(Request); ok {
		return r
	}
	return Request{}
}

// WithRequest injects a request descriptor into the context.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, ContextKeyRequest, r)
}

// CorrelationID retrieves the correlation ID from the context.
// Returns an empty string if no request descriptor is set.
func CorrelationID(ctx context.Context) string {
	return RequestFrom(ctx).CorrelationID
}

// WithCorrelationID injects a correlation ID, preserving any other request
// fields already present. Useful for unit tests that don't run the full
// middleware chain.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	r := RequestFrom(ctx)
	r.CorrelationID = correlationID
	return WithRequest(ctx, r)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
//
// The rate limiter derives its window bucket from this value, so every
// counter touched on behalf of one request sees the same instant.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
