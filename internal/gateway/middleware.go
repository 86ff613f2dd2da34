package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"perimeter/pkg/requestcontext"
)

// maxCorrelationIDLength bounds inbound correlation IDs. Oversized values are
// replaced rather than truncated so the stored ID always matches what the
// caller received back.
const maxCorrelationIDLength = 128

// RequestMetadata captures the request descriptor once per inbound request:
// correlation ID, client address, user agent and arrival time. It must run
// before the pipeline so every stage sees the same values.
//
// The correlation ID is echoed on the response immediately, which keeps even
// requests rejected by later stages traceable end to end.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		corrID := correlationID(r)

		req := requestcontext.Request{
			CorrelationID: corrID,
			Method:        r.Method,
			Path:          r.URL.Path,
			ClientAddr:    clientAddr(r),
			UserAgent:     r.Header.Get("User-Agent"),
			ReceivedAt:    now,
		}

		ctx := requestcontext.WithRequest(r.Context(), req)
		ctx = requestcontext.WithTime(ctx, now)

		w.Header().Set(HeaderCorrelationID, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// correlationID preserves a well-formed inbound X-Correlation-ID and mints a
// fresh UUID otherwise. Hostile values are replaced, not sanitized, so the ID
// never carries attacker-shaped bytes into logs or the audit trail.
func correlationID(r *http.Request) string {
	inbound := r.Header.Get(HeaderCorrelationID)
	if validCorrelationID(inbound) {
		return inbound
	}
	return uuid.NewString()
}

// validCorrelationID accepts printable ASCII without spaces, up to
// maxCorrelationIDLength characters.
func validCorrelationID(s string) bool {
	if s == "" || len(s) > maxCorrelationIDLength {
		return false
	}
	for _, c := range s {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// clientAddr extracts the originating client address, preferring proxy
// headers over the socket peer.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the original client; the rest are proxies.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}

// Recoverer converts panics in downstream handlers into the standard 500
// envelope instead of letting the server kill the connection.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				if logger != nil {
					logger.ErrorContext(ctx, "panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"correlation_id", requestcontext.CorrelationID(ctx),
					)
				}
				writeError(ctx, w, fmt.Errorf("handler panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
