package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/recychain/recychain/internal/metrics"
)

// Prometheus records duration and count per request. The path label prefers
// the matched chi route pattern, so /v1/assets/17 and /v1/assets/99 share the
// series /v1/assets/{id}; unrouted requests fall back to the raw URL path,
// which metrics.RecordRequest normalizes before labeling.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		metrics.RecordRequest(r.Method, path, ww.Status(), time.Since(start).Seconds())
	})
}
