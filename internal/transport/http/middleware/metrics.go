package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type HTTPRecorder interface {
	Record(method, route string, status int, duration time.Duration)
}

// Metrics records latency per chi route pattern so ids never become labels.
func Metrics(recorder HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			recorder.Record(r.Method, route, rec.status, time.Since(start))
		})
	}
}
