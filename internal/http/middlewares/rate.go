package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/rate"
)

// RateKeyFunc define la key de rate limiting de un request.
type RateKeyFunc func(r *http.Request) string

// clientIP extrae la IP del cliente. X-Forwarded-For sólo cuenta si
// trustProxy: sin proxy delante el header lo elige el cliente.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			if ip := strings.TrimSpace(strings.Split(xf, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// IPPathRateKey limita por IP de conexión y path.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r, false) + "|" + r.URL.Path
}

// ClientIPPathRateKey es IPPathRateKey pero, con trustProxy, toma la IP
// de X-Forwarded-For.
func ClientIPPathRateKey(trustProxy bool) RateKeyFunc {
	return func(r *http.Request) string {
		return clientIP(r, trustProxy) + "|" + r.URL.Path
	}
}

// WithRateLimit responde 429 cuando el limiter rechaza. Si el limiter
// falla, el request pasa.
func WithRateLimit(l rate.Limiter, key RateKeyFunc) Middleware {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if key == nil {
		key = IPPathRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), key(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Round(time.Second).Seconds())))
				httperrors.WriteError(w, r, httperrors.ErrTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
