package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"perimeter/internal/ratelimit"
	"perimeter/pkg/platform/httputil"
	"perimeter/pkg/platform/secrets"
	"perimeter/pkg/requestcontext"
)

// headerAdminKey authenticates operator requests to the admin surface.
const headerAdminKey = "X-Admin-Key"

// AdminHandler exposes the gateway's effective runtime configuration to
// operators. It sits outside the enforcement pipeline and is protected by a
// shared admin key, verified against a bcrypt hash so the plaintext never
// lives in gateway config.
type AdminHandler struct {
	limiter *ratelimit.Limiter
	keyHash string
	logger  *slog.Logger
}

// NewAdminHandler creates the admin surface. keyHash is the bcrypt hash of
// the admin key; an empty hash is refused rather than silently exposing the
// endpoints unauthenticated.
func NewAdminHandler(limiter *ratelimit.Limiter, keyHash string, logger *slog.Logger) (*AdminHandler, error) {
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if keyHash == "" {
		return nil, errors.New("admin key hash is required")
	}
	return &AdminHandler{limiter: limiter, keyHash: keyHash, logger: logger}, nil
}

// Register mounts the admin routes on the router.
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/admin/ratelimit/config", h.requireAdminKey(h.handleRateLimitConfig))
}

// requireAdminKey gates a handler behind the X-Admin-Key header.
func (h *AdminHandler) requireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := secrets.Verify(r.Header.Get(headerAdminKey), h.keyHash); err != nil {
			ctx := r.Context()
			if h.logger != nil {
				h.logger.WarnContext(ctx, "admin key rejected",
					"path", r.URL.Path,
					"correlation_id", requestcontext.CorrelationID(ctx),
				)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin key required"}`))
			return
		}
		next(w, r)
	}
}

// rateLimitConfigResponse is the operator view of the limiter's effective
// configuration.
type rateLimitConfigResponse struct {
	WindowSeconds int64            `json:"window_seconds"`
	GraceSeconds  int64            `json:"grace_seconds"`
	Tiers         map[string]int64 `json:"tiers"`
	EndpointLimit int64            `json:"endpoint_limit"`
	GlobalLimit   int64            `json:"global_limit"`
	FailOpen      bool             `json:"fail_open"`
	StoreHealthy  bool             `json:"store_healthy"`
}

func (h *AdminHandler) handleRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.limiter.Config()
	httputil.WriteJSON(w, http.StatusOK, rateLimitConfigResponse{
		WindowSeconds: int64(cfg.Window.Seconds()),
		GraceSeconds:  int64(cfg.Grace.Seconds()),
		Tiers: map[string]int64{
			"admin":    cfg.AdminLimit,
			"standard": cfg.StandardLimit,
			"default":  cfg.DefaultLimit,
		},
		EndpointLimit: cfg.EndpointLimit,
		GlobalLimit:   cfg.GlobalLimit,
		FailOpen:      cfg.FailOpen,
		StoreHealthy:  h.limiter.StoreHealthy(),
	})
}
