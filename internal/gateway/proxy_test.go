package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perimeter/pkg/platform/sentinel"
)

func TestNewProxy(t *testing.T) {
	tests := []struct {
		name        string
		upstreamURL string
		wantErr     string
	}{
		{"empty URL", "", "required"},
		{"unsupported scheme", "ftp://files.internal", "scheme"},
		{"missing host", "http://", "host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProxy(tt.upstreamURL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid upstream", func(t *testing.T) {
		p, err := NewProxy("http://localhost:9090")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9090", p.Upstream())
	})
}

func TestForward_RelaysRequest(t *testing.T) {
	type seen struct {
		method string
		path   string
		query  string
		body   string
		header http.Header
	}
	var got seen

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   string(body),
			header: r.Header.Clone(),
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"t-1"}`))
	}))
	defer upstream.Close()

	p, err := NewProxy(upstream.URL)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/transfers?limit=5", strings.NewReader("hello"))
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set(HeaderUserContext, "user-7")

	w := httptest.NewRecorder()
	status, err := p.Forward(context.Background(), w, r, headers)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/transfers", got.path)
	assert.Equal(t, "limit=5", got.query)
	assert.Equal(t, "hello", got.body)
	assert.Equal(t, "user-7", got.header.Get(HeaderUserContext))
	assert.Empty(t, got.header.Get("Authorization"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"t-1"}`, w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
}

func TestForward_UpstreamErrorStatusIsNotAGatewayError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such transfer", http.StatusNotFound)
	}))
	defer upstream.Close()

	p, err := NewProxy(upstream.URL)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	status, err := p.Forward(context.Background(), w,
		httptest.NewRequest(http.MethodGet, "/api/transfers/42", nil), http.Header{})

	// The upstream answered; its status passes through verbatim.
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no such transfer")
}

func TestForward_StripsGatewayOwnedResponseHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(HeaderCorrelationID, "upstream-forged")
		w.Header().Set("X-RateLimit-Limit", "999999")
		w.Header().Set("X-RateLimit-Remaining", "999999")
		w.Header().Set("X-RateLimit-Reset", "0")
		w.Header().Set("X-Custom", "kept")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p, err := NewProxy(upstream.URL)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	_, err = p.Forward(context.Background(), w,
		httptest.NewRequest(http.MethodGet, "/api/accounts", nil), http.Header{})
	require.NoError(t, err)

	// The gateway authors these headers itself; upstream copies must not
	// overwrite them.
	assert.Empty(t, w.Header().Get(HeaderCorrelationID))
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "kept", w.Header().Get("X-Custom"))
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	// Nothing listens on port 1.
	p, err := NewProxy("http://127.0.0.1:1", WithUpstreamTimeout(2*time.Second))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	status, err := p.Forward(context.Background(), w,
		httptest.NewRequest(http.MethodGet, "/api/accounts", nil), http.Header{})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Zero(t, status)
	// Nothing was written; the pipeline still owns the response.
	assert.Zero(t, w.Body.Len())
}
