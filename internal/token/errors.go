package token

import "fmt"

// Reason classifies why a bearer token was rejected. Reasons feed the audit
// trail and logs; the gateway maps every one of them to the same generic
// 401 response so callers cannot probe the validator.
type Reason string

const (
	ReasonMissingHeader     Reason = "missing_header"
	ReasonMalformedBearer   Reason = "malformed_bearer"
	ReasonInvalidSignature  Reason = "invalid_signature"
	ReasonExpired           Reason = "expired"
	ReasonMissingClaim      Reason = "missing_claim"
	ReasonInvalidClaimValue Reason = "invalid_claim_value"
)

// AuthError is the typed failure returned by the validator. Claim names the
// offending claim for claim-related reasons and is empty otherwise. The
// error never contains token material.
type AuthError struct {
	Reason Reason
	Claim  string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Claim != "" {
		return fmt.Sprintf("authentication failed: %s (%s)", e.Reason, e.Claim)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}
