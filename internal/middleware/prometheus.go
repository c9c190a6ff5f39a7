package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/crucial707/radar/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Prometheus records request duration and count for each request, labelled by
// the matched chi route so ids do not explode cardinality. Scrapes of
// /metrics and file downloads under /uploads are not recorded.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if path == "/metrics" || strings.HasPrefix(path, "/uploads/") {
			return
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		if path == "" {
			path = "/"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, path, status, time.Since(start).Seconds())
	})
}
