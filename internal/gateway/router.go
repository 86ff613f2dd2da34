package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perimeter/pkg/platform/httputil"
)

// NewRouter assembles the gateway's HTTP surface: the gateway-owned
// endpoints (health, Prometheus metrics, the optional admin surface) and the
// enforcement pipeline as the catch-all. Gateway-owned routes answer locally
// and never reach the upstream.
func NewRouter(pipeline *Pipeline, admin *AdminHandler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Recoverer(logger))
	r.Use(RequestMetadata)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if admin != nil {
		admin.Register(r)
	}
	r.Handle("/*", pipeline)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
