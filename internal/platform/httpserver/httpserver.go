package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for a proxying gateway.
// Only the header read is bounded here; whole-request deadlines would cut
// off long-running upstream streams, so per-call limits live in the proxy
// client instead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
