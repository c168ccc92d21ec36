package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/sentinel/internal/metrics"
)

// WithMetrics registra requests por método, route pattern y status. Usa el
// pattern de chi para acotar la cardinalidad; sin match se usa "unmatched".
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.HTTPStart(r.Method)
			rec := recorder(w)
			next.ServeHTTP(rec, r)

			path := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			done(path, rec.status)
		})
	}
}
