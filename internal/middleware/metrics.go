package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/billing-tracker/internal/metrics"
)

// unmatchedRoute labels requests no route matched, so 404 requests for random
// paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records every request in m, labelled by chi's route pattern
// ("/api/customers/{id}") rather than the raw URL path.
//
// The pattern is only known after routing, so it is read once the handler
// has returned.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
