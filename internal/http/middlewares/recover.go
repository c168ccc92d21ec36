package middlewares

import (
	"fmt"
	"net/http"

	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// WithRecover captura panics y responde 500.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"), logger.Any("panic", rec))
					httperrors.WriteError(w, r,
						httperrors.ErrInternalServerError.WithCause(fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
