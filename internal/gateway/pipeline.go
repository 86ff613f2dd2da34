// Package gateway is the enforcement edge in front of the upstream service.
// Every request walks a fixed pipeline: authenticate the bearer token,
// apply rate limits, authorize against the rule table, establish the
// forwarded identity context, then proxy upstream. Public paths skip
// straight from receipt to forwarding.
//
// Stages return typed errors and know nothing about HTTP statuses; the
// pipeline owns the single mapping from stage errors to the response
// envelope. Identity travels between stages as an explicit value, never
// through the request context.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"perimeter/internal/audit"
	"perimeter/internal/authz"
	"perimeter/internal/gateway/metrics"
	"perimeter/internal/ratelimit"
	"perimeter/internal/token"
	"perimeter/pkg/requestcontext"
)

// State names a position in the request pipeline. Each request visits
// exactly one terminal state.
type State string

const (
	StateReceived           State = "RECEIVED"
	StateAuthenticating     State = "AUTHENTICATING"
	StateRateLimiting       State = "RATE_LIMITING"
	StateAuthorizing        State = "AUTHORIZING"
	StateContextEstablished State = "CONTEXT_ESTABLISHED"

	// Terminal states.
	StateForwarded           State = "FORWARDED"
	StateAuthFailed          State = "AUTH_FAILED"
	StateRateLimited         State = "RATE_LIMITED"
	StateForbidden           State = "FORBIDDEN"
	StateUpstreamUnreachable State = "UPSTREAM_UNREACHABLE"
)

// Pipeline orchestrates the enforcement stages for one upstream.
type Pipeline struct {
	validator  *token.Validator
	limiter    *ratelimit.Limiter
	authorizer *authz.Authorizer
	proxy      *Proxy
	logger     *slog.Logger
	recorder   *audit.Recorder
	metrics    *metrics.Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithAudit sets the audit recorder for pipeline-terminal events.
func WithAudit(recorder *audit.Recorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline assembles the enforcement pipeline from its stages.
func NewPipeline(validator *token.Validator, limiter *ratelimit.Limiter, authorizer *authz.Authorizer, proxy *Proxy, opts ...PipelineOption) (*Pipeline, error) {
	switch {
	case validator == nil:
		return nil, errors.New("token validator is required")
	case limiter == nil:
		return nil, errors.New("rate limiter is required")
	case authorizer == nil:
		return nil, errors.New("authorizer is required")
	case proxy == nil:
		return nil, errors.New("proxy is required")
	}

	p := &Pipeline{
		validator:  validator,
		limiter:    limiter,
		authorizer: authorizer,
		proxy:      proxy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ServeHTTP runs one request through the pipeline.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := requestcontext.RequestFrom(ctx)
	state := StateReceived
	defer p.finish(ctx, req, &state)

	if p.authorizer.Table().Public(r.URL.Path) {
		p.forwardPublic(ctx, w, r, req, &state)
		return
	}

	p.advance(ctx, &state, StateAuthenticating)
	id, err := p.validator.Validate(ctx, r.Header.Get("Authorization"))
	if err != nil {
		state = StateAuthFailed
		writeError(ctx, w, err)
		return
	}

	p.advance(ctx, &state, StateRateLimiting)
	quota, err := p.limiter.Check(ctx, id, r.Method, r.URL.Path)
	if err != nil {
		state = StateRateLimited
		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) {
			setRejectionHeaders(w, limitErr)
		}
		writeError(ctx, w, err)
		return
	}

	p.advance(ctx, &state, StateAuthorizing)
	if err := p.authorizer.Authorize(ctx, id, r.URL.Path); err != nil {
		state = StateForbidden
		writeError(ctx, w, err)
		return
	}

	p.advance(ctx, &state, StateContextEstablished)
	setQuotaHeaders(w, quota)

	status, err := p.proxy.Forward(ctx, w, r, outboundHeaders(r, id, req.CorrelationID))
	if err != nil {
		state = StateUpstreamUnreachable
		p.auditUnreachable(ctx, id.Subject, err)
		writeError(ctx, w, err)
		return
	}

	state = StateForwarded
	audit.Log(ctx, p.logger, p.recorder, audit.EventRequestForwarded,
		"subject", id.Subject,
		"user_type", id.Type.Wire(),
		"upstream_status", status,
	)
}

// forwardPublic is the RECEIVED -> FORWARDED shortcut for public paths.
// The validator, limiter and authorizer are never consulted; the bypass
// itself is what gets audited.
func (p *Pipeline) forwardPublic(ctx context.Context, w http.ResponseWriter, r *http.Request, req requestcontext.Request, state *State) {
	audit.Log(ctx, p.logger, p.recorder, audit.EventPublicBypass)

	status, err := p.proxy.Forward(ctx, w, r, publicHeaders(r, req.CorrelationID))
	if err != nil {
		*state = StateUpstreamUnreachable
		p.auditUnreachable(ctx, "", err)
		writeError(ctx, w, err)
		return
	}

	*state = StateForwarded
	if p.logger != nil {
		p.logger.DebugContext(ctx, "public path forwarded",
			"correlation_id", req.CorrelationID,
			"upstream_status", status,
		)
	}
}

// advance moves the pipeline to its next non-terminal state.
func (p *Pipeline) advance(ctx context.Context, state *State, next State) {
	if p.logger != nil {
		p.logger.DebugContext(ctx, "pipeline transition",
			"from", string(*state),
			"to", string(next),
			"correlation_id", requestcontext.CorrelationID(ctx),
		)
	}
	*state = next
}

// finish records the terminal state once the response is written. The
// request-scoped clock is frozen at arrival, so elapsed time comes from the
// wall clock.
func (p *Pipeline) finish(ctx context.Context, req requestcontext.Request, state *State) {
	if p.metrics != nil {
		var elapsed time.Duration
		if !req.ReceivedAt.IsZero() {
			elapsed = time.Since(req.ReceivedAt)
		}
		p.metrics.RecordRequest(string(*state), elapsed)
	}
	if p.logger != nil {
		p.logger.DebugContext(ctx, "pipeline finished",
			"terminal_state", string(*state),
			"correlation_id", req.CorrelationID,
		)
	}
}

func (p *Pipeline) auditUnreachable(ctx context.Context, subject string, cause error) {
	attrs := []any{"upstream", p.proxy.Upstream(), "error", cause}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	audit.Log(ctx, p.logger, p.recorder, audit.EventUpstreamUnreachable, attrs...)
}
