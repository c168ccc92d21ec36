package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/sentinel/internal/rate"
)

type stubLimiter struct {
	res  rate.Result
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func serve(h http.Handler, remote, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWithRateLimit_Rejects(t *testing.T) {
	l := &stubLimiter{res: rate.Result{Allowed: false, RetryAfter: 30 * time.Second, WindowTTL: 30 * time.Second}}
	rec := serve(WithRateLimit(l, nil)(okHandler()), "10.0.0.1:5000", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, []string{"10.0.0.1|/v1/auth/signin"}, l.keys)
}

func TestWithRateLimit_TrustedProxyUsesForwardedFor(t *testing.T) {
	l := &stubLimiter{res: rate.Result{Allowed: true, Remaining: 4}}
	rec := serve(WithRateLimit(l, ClientIPPathRateKey(true))(okHandler()), "10.0.0.1:5000", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"203.0.113.7|/v1/auth/signin"}, l.keys)
}

func TestWithRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	l := &stubLimiter{res: rate.Result{Allowed: true, Remaining: 4}}
	h := WithRateLimit(l, nil)(okHandler())
	serve(h, "10.0.0.1:5000", "203.0.113.7")
	serve(h, "10.0.0.1:5001", "198.51.100.9")

	untrusted := &stubLimiter{res: rate.Result{Allowed: true}}
	serve(WithRateLimit(untrusted, ClientIPPathRateKey(false))(okHandler()), "10.0.0.2:5000", "203.0.113.7")

	// rotar el header no cambia la key
	assert.Equal(t, []string{"10.0.0.1|/v1/auth/signin", "10.0.0.1|/v1/auth/signin"}, l.keys)
	assert.Equal(t, []string{"10.0.0.2|/v1/auth/signin"}, untrusted.keys)
}

func TestWithRateLimit_FailsOpen(t *testing.T) {
	l := &stubLimiter{err: errors.New("redis down")}
	rec := serve(WithRateLimit(l, nil)(okHandler()), "10.0.0.1:5000", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWithRateLimit_NilLimiter(t *testing.T) {
	rec := serve(WithRateLimit(nil, nil)(okHandler()), "10.0.0.1:5000", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
