// Package token validates the Bearer tokens presented at the gateway edge
// and turns them into caller identities.
//
// Accepted tokens are HMAC-signed JWTs carrying the claim contract:
//
//	sub        non-empty subject identifier
//	user_type  "A" (admin) or "U" (standard)
//	roles      non-empty list of role names
//	session_id non-empty session identifier
//	exp        expiry, required and in the future
//
// Validation never logs or stores the raw token.
package token

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"perimeter/internal/audit"
	"perimeter/internal/identity"
	"perimeter/pkg/requestcontext"
)

const bearerScheme = "Bearer "

// minTokenLength rejects obvious garbage before it reaches the parser; even
// an unsigned empty-payload JWS is longer than this.
const minTokenLength = 16

// Validator checks Authorization headers against the gateway signing key.
type Validator struct {
	signingKey []byte
	logger     *slog.Logger
	recorder   *audit.Recorder
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the structured logger for validation decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithAudit sets the audit recorder for validation decisions.
func WithAudit(rec *audit.Recorder) Option {
	return func(v *Validator) {
		v.recorder = rec
	}
}

// NewValidator creates a Validator for tokens signed with signingKey.
func NewValidator(signingKey []byte, opts ...Option) (*Validator, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	v := &Validator{signingKey: signingKey}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks the Authorization header and returns the caller identity.
// Failures return a zero Identity and an *AuthError; every call emits one
// audit event. Expiry is evaluated against the request-scoped clock.
func (v *Validator) Validate(ctx context.Context, authorization string) (identity.Identity, error) {
	raw, authErr := extractBearer(authorization)
	if authErr != nil {
		return identity.Identity{}, v.fail(ctx, authErr)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return v.signingKey, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
	)
	if err != nil {
		return identity.Identity{}, v.fail(ctx, classifyParseError(err))
	}

	id, authErr := identityFromClaims(claims)
	if authErr != nil {
		return identity.Identity{}, v.fail(ctx, authErr)
	}

	audit.Log(ctx, v.logger, v.recorder, audit.EventAuthSucceeded,
		"subject", id.Subject,
		"user_type", id.Type.Wire(),
		"session_id", id.SessionID,
		"roles", id.Roles.Join(","),
	)
	return id, nil
}

// extractBearer strips the Bearer scheme (case-insensitive, single space)
// and returns the raw token.
func extractBearer(authorization string) (string, *AuthError) {
	if authorization == "" {
		return "", &AuthError{Reason: ReasonMissingHeader}
	}
	if len(authorization) <= len(bearerScheme) ||
		!strings.EqualFold(authorization[:len(bearerScheme)], bearerScheme) {
		return "", &AuthError{Reason: ReasonMalformedBearer}
	}

	raw := authorization[len(bearerScheme):]
	if len(raw) < minTokenLength || strings.ContainsAny(raw, " \t") {
		return "", &AuthError{Reason: ReasonMalformedBearer}
	}
	return raw, nil
}

func classifyParseError(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &AuthError{Reason: ReasonMalformedBearer}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Reason: ReasonExpired}
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return &AuthError{Reason: ReasonMissingClaim, Claim: "exp"}
	default:
		// Signature mismatches, rejected algorithms and anything else the
		// parser could not verify.
		return &AuthError{Reason: ReasonInvalidSignature}
	}
}

// identityFromClaims enforces the claim contract. Claims are checked in a
// fixed order (sub, user_type, roles, session_id) so rejections are
// deterministic when several claims are bad.
func identityFromClaims(claims jwt.MapClaims) (identity.Identity, *AuthError) {
	sub, authErr := stringClaim(claims, "sub")
	if authErr != nil {
		return identity.Identity{}, authErr
	}

	rawType, authErr := stringClaim(claims, "user_type")
	if authErr != nil {
		return identity.Identity{}, authErr
	}
	userType, ok := identity.ParseUserType(rawType)
	if !ok {
		return identity.Identity{}, &AuthError{Reason: ReasonInvalidClaimValue, Claim: "user_type"}
	}

	roles, authErr := rolesClaim(claims)
	if authErr != nil {
		return identity.Identity{}, authErr
	}

	sessionID, authErr := stringClaim(claims, "session_id")
	if authErr != nil {
		return identity.Identity{}, authErr
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return identity.Identity{}, &AuthError{Reason: ReasonInvalidClaimValue, Claim: "exp"}
	}

	return identity.Identity{
		Subject:   sub,
		Type:      userType,
		Roles:     roles,
		SessionID: sessionID,
		ExpiresAt: exp.Time,
	}, nil
}

func stringClaim(claims jwt.MapClaims, name string) (string, *AuthError) {
	raw, present := claims[name]
	if !present {
		return "", &AuthError{Reason: ReasonMissingClaim, Claim: name}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &AuthError{Reason: ReasonInvalidClaimValue, Claim: name}
	}
	return s, nil
}

func rolesClaim(claims jwt.MapClaims) (identity.RoleSet, *AuthError) {
	raw, present := claims["roles"]
	if !present {
		return nil, &AuthError{Reason: ReasonMissingClaim, Claim: "roles"}
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, &AuthError{Reason: ReasonInvalidClaimValue, Claim: "roles"}
	}

	names := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok || name == "" {
			return nil, &AuthError{Reason: ReasonInvalidClaimValue, Claim: "roles"}
		}
		names = append(names, name)
	}
	return identity.NewRoleSet(names...), nil
}

func (v *Validator) fail(ctx context.Context, authErr *AuthError) error {
	attrList := []any{"reason", string(authErr.Reason)}
	if authErr.Claim != "" {
		attrList = append(attrList, "claim", authErr.Claim)
	}
	audit.Log(ctx, v.logger, v.recorder, audit.EventAuthFailed, attrList...)
	return authErr
}
