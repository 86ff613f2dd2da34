package authz

import (
	"context"
	"errors"
	"log/slog"

	"perimeter/internal/audit"
	"perimeter/internal/identity"
)

// Authorizer applies a rule table to authenticated requests and audits
// every decision with the rule that made it.
type Authorizer struct {
	table    Table
	logger   *slog.Logger
	recorder *audit.Recorder
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// WithAudit sets the audit recorder for decision events.
func WithAudit(recorder *audit.Recorder) Option {
	return func(a *Authorizer) {
		a.recorder = recorder
	}
}

// NewAuthorizer creates an Authorizer over the given table.
func NewAuthorizer(table Table, opts ...Option) (*Authorizer, error) {
	if len(table) == 0 {
		return nil, errors.New("rule table is required")
	}
	a := &Authorizer{table: table}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Table returns the active rule table.
func (a *Authorizer) Table() Table {
	return a.table
}

// Authorize allows the request iff the first matching rule is public or
// shares a role with the identity. A path matching no rule is denied.
func (a *Authorizer) Authorize(ctx context.Context, id identity.Identity, path string) error {
	rule, ok := a.table.Match(path)
	if !ok {
		return a.deny(ctx, id, &DeniedError{Path: path})
	}

	if rule.Public() || id.Roles.HasAny(rule.Roles...) {
		audit.Log(ctx, a.logger, a.recorder, audit.EventAuthzAllowed,
			"subject", id.Subject,
			"user_type", id.Type.Wire(),
			"rule_prefix", rule.Prefix,
		)
		return nil
	}

	return a.deny(ctx, id, &DeniedError{Path: path, Prefix: rule.Prefix, Required: rule.Roles})
}

func (a *Authorizer) deny(ctx context.Context, id identity.Identity, denied *DeniedError) error {
	attrList := []any{
		"subject", id.Subject,
		"user_type", id.Type.Wire(),
	}
	if denied.Prefix == "" {
		attrList = append(attrList, "reason", "no matching rule")
	} else {
		attrList = append(attrList,
			"rule_prefix", denied.Prefix,
			"required_roles", denied.Required.Join(","),
		)
	}
	audit.Log(ctx, a.logger, a.recorder, audit.EventAuthzDenied, attrList...)
	return denied
}
