package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"perimeter/internal/authz"
	"perimeter/internal/ratelimit"
	"perimeter/internal/token"
	"perimeter/pkg/platform/httputil"
	"perimeter/pkg/platform/sentinel"
	"perimeter/pkg/requestcontext"
)

// Stable error codes clients can branch on. The code set is the contract;
// messages are advisory and may change.
const (
	CodeJWTValidationFailed = "JWT_VALIDATION_FAILED"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrorBody is the envelope for every non-2xx response the gateway itself
// originates. Upstream error responses pass through untouched.
type ErrorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
	Status        int    `json:"status"`
}

// writeError maps a pipeline error onto the envelope. This is the only
// place errors become HTTP statuses; stage errors carry no transport
// knowledge. Failure detail stays in logs and audit events, the client
// message is deliberately generic.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message := classifyError(err)
	httputil.WriteJSON(w, status, ErrorBody{
		Error:         code,
		Message:       message,
		CorrelationID: requestcontext.CorrelationID(ctx),
		Timestamp:     requestcontext.Now(ctx).UTC().Format(time.RFC3339),
		Status:        status,
	})
}

func classifyError(err error) (status int, code, message string) {
	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, CodeJWTValidationFailed,
			"Authentication failed. Provide a valid bearer token."
	}

	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		return http.StatusTooManyRequests, CodeRateLimitExceeded,
			"Request quota exceeded. Please retry later."
	}

	var deniedErr *authz.DeniedError
	if errors.As(err, &deniedErr) {
		return http.StatusForbidden, CodeAccessDenied,
			"You do not have access to this resource."
	}

	if errors.Is(err, sentinel.ErrUnavailable) {
		return http.StatusBadGateway, CodeUpstreamUnavailable,
			"The upstream service is currently unreachable."
	}

	return http.StatusInternalServerError, CodeInternalError,
		"An internal error occurred."
}
