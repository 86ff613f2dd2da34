package gateway

import (
	"math"
	"net/http"
	"strconv"

	"perimeter/internal/identity"
	"perimeter/internal/ratelimit"
)

// Identity headers the gateway owns. Inbound values are stripped before
// enforcement so the upstream only ever sees gateway-authored identity.
const (
	HeaderUserContext   = "X-User-Context"
	HeaderUserType      = "X-User-Type"
	HeaderSessionID     = "X-Session-ID"
	HeaderUserRoles     = "X-User-Roles"
	HeaderCorrelationID = "X-Correlation-ID"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

var identityHeaders = []string{
	HeaderUserContext,
	HeaderUserType,
	HeaderSessionID,
	HeaderUserRoles,
	HeaderCorrelationID,
}

// Hop-by-hop headers per RFC 7230 section 6.1; they describe one
// connection and must not travel through the proxy.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// sanitizeHeaders clones the inbound headers without hop-by-hop entries and
// without any client-supplied identity headers.
func sanitizeHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, h := range hopByHopHeaders {
		out.Del(h)
	}
	for _, h := range identityHeaders {
		out.Del(h)
	}
	return out
}

// outboundHeaders builds the header set for an authenticated forward: the
// sanitized client headers plus the identity established by the pipeline.
// The bearer token is consumed here and never travels upstream.
func outboundHeaders(r *http.Request, id identity.Identity, correlationID string) http.Header {
	h := sanitizeHeaders(r.Header)
	h.Del("Authorization")
	h.Set(HeaderUserContext, id.Subject)
	h.Set(HeaderUserType, id.Type.Wire())
	h.Set(HeaderSessionID, id.SessionID)
	h.Set(HeaderUserRoles, id.Roles.Join(","))
	h.Set(HeaderCorrelationID, correlationID)
	return h
}

// publicHeaders builds the header set for a public-path forward. No
// identity exists; the Authorization header, if any, passes through for the
// upstream to interpret.
func publicHeaders(r *http.Request, correlationID string) http.Header {
	h := sanitizeHeaders(r.Header)
	h.Set(HeaderCorrelationID, correlationID)
	return h
}

// setQuotaHeaders attaches rate limit telemetry to the response. Degraded
// results carry no headers: no truthful numbers exist while the counter
// store is unreachable.
func setQuotaHeaders(w http.ResponseWriter, res ratelimit.Result) {
	if res.Degraded {
		return
	}
	w.Header().Set(headerRateLimitLimit, strconv.FormatInt(res.Limit, 10))
	w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(res.Remaining, 10))
	w.Header().Set(headerRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// setRejectionHeaders attaches Retry-After and, when real counter numbers
// back the rejection, the quota headers.
func setRejectionHeaders(w http.ResponseWriter, limitErr *ratelimit.LimitExceededError) {
	seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set(headerRetryAfter, strconv.Itoa(seconds))

	if limitErr.Degraded {
		return
	}
	w.Header().Set(headerRateLimitLimit, strconv.FormatInt(limitErr.Limit, 10))
	w.Header().Set(headerRateLimitRemaining, "0")
	w.Header().Set(headerRateLimitReset, strconv.FormatInt(limitErr.ResetAt.Unix(), 10))
}
