package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"perimeter/pkg/platform/sentinel"
)

const defaultUpstreamTimeout = 30 * time.Second

// Proxy forwards requests to the single configured upstream. Requests are
// copied explicitly rather than rewritten in place: the inbound request
// stays untouched and the caller decides exactly which headers travel.
//
// There are no retries. Forwarded requests may be non-idempotent, so a
// transport failure surfaces immediately as an upstream error.
type Proxy struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithProxyLogger sets the structured logger.
func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithUpstreamTimeout bounds each forwarded call end to end.
func WithUpstreamTimeout(timeout time.Duration) ProxyOption {
	return func(p *Proxy) {
		p.client.Timeout = timeout
	}
}

// NewProxy creates a Proxy for the given upstream base URL
// (scheme://host[:port]; the request path passes through verbatim).
func NewProxy(upstreamURL string, opts ...ProxyOption) (*Proxy, error) {
	if upstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream URL %q: scheme must be http or https", upstreamURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream URL %q: host is required", upstreamURL)
	}

	p := &Proxy{
		upstream: u,
		client:   &http.Client{Timeout: defaultUpstreamTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Upstream returns the configured upstream base URL.
func (p *Proxy) Upstream() string {
	return p.upstream.String()
}

// Forward sends the request upstream with the prepared header set and
// streams the response back. It returns the upstream status code, or an
// error wrapping sentinel.ErrUnavailable when the upstream could not be
// reached at all.
//
// A body copy failure after the upstream status line has been relayed is
// logged and swallowed: the status is already on the wire, so there is
// nothing coherent left to send.
func (p *Proxy) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, headers http.Header) (int, error) {
	target := *p.upstream
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return 0, fmt.Errorf("build upstream request: %w", err)
	}
	out.Header = headers
	out.ContentLength = r.ContentLength

	resp, err := p.client.Do(out)
	if err != nil {
		return 0, fmt.Errorf("forward %s %s: %w: %w", r.Method, r.URL.Path, sentinel.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "aborted streaming upstream response body",
			"status", resp.StatusCode,
			"error", err,
		)
	}
	return resp.StatusCode, nil
}

// copyResponseHeaders relays upstream response headers, dropping
// hop-by-hop entries and the telemetry headers the gateway authors itself.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if skipResponseHeader(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

var gatewayResponseHeaders = []string{
	HeaderCorrelationID,
	headerRateLimitLimit,
	headerRateLimitRemaining,
	headerRateLimitReset,
}

func skipResponseHeader(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	for _, h := range gatewayResponseHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}
