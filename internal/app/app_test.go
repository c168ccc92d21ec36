package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sentinel/internal/config"
	"github.com/dropDatabas3/sentinel/internal/http/dto"
)

type harness struct {
	t   *testing.T
	app *App
	srv *httptest.Server
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Cache.Kind = "memory"
	cfg.Assets.Driver = "fs"
	cfg.Assets.Root = t.TempDir()
	cfg.Identity.SigningKey = "test-signing-key"
	cfg.Identity.BcryptCost = 4
	cfg.Capture.Synthetic.Warmup = "0s"
	cfg.Capture.Synthetic.Width = 64
	cfg.Capture.Synthetic.Height = 48
	cfg.Simulator.Dwell = "5ms"
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := Build(ctx, cfg, Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		require.NoError(t, a.Close())
	})
	return &harness{t: t, app: a, srv: srv}
}

func (h *harness) do(method, path string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestEndToEnd_SignUpOnboardDashboard(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(http.MethodGet, "/v1/screen?wait=2s", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/v1/auth/signin", resp.Header.Get("Location"))

	resp, body = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sess := decode[dto.SessionResponse](t, body)
	assert.Equal(t, "onboarding", sess.Screen)
	assert.NotEmpty(t, sess.SubjectID)

	resp, _ = h.do(http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/v1/onboarding/camera", resp.Header.Get("Location"))

	resp, body = h.do(http.MethodPut, "/v1/onboarding/social", dto.SocialHandles{X: "@ada", Instagram: " ada.ig "})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, dto.SocialHandles{X: "ada", Instagram: "ada.ig"}, decode[dto.SocialHandles](t, body))

	resp, body = h.do(http.MethodPost, "/v1/onboarding/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = h.do(http.MethodPost, "/v1/onboarding/camera/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "ready", decode[dto.CameraResponse](t, body).Phase)

	resp, body = h.do(http.MethodPost, "/v1/onboarding/camera/capture", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cam := decode[dto.CameraResponse](t, body)
	assert.Equal(t, "captured", cam.Phase)
	require.NotNil(t, cam.Frame)
	assert.Equal(t, 64, cam.Frame.Width)

	resp, body = h.do(http.MethodPost, "/v1/onboarding/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	sub := decode[dto.SubmitResponse](t, body)
	assert.Equal(t, "dashboard", sub.Screen)
	assert.True(t, strings.HasPrefix(sub.Key, "face_"+sess.SubjectID+"_"), sub.Key)

	resp, body = h.do(http.MethodGet, "/v1/onboarding/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prog := decode[dto.ProgressResponse](t, body)
	assert.Equal(t, 100, prog.Percent)
	assert.Equal(t, "done", prog.Stage)

	resp, body = h.do(http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	dash := decode[dto.DashboardResponse](t, body)
	assert.Equal(t, sess.SubjectID, dash.SubjectID)
	assert.Equal(t, "ada", dash.Social.X)
	assert.NotEmpty(t, dash.FaceImageRef)

	// la foto es servible bajo /assets
	resp, body = h.do(http.MethodGet, "/assets/users/"+sub.Key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte{0xFF, 0xD8}, body[:2], "served object is a JPEG")

	// con el perfil completo el onboarding queda cerrado
	resp, body = h.do(http.MethodPost, "/v1/onboarding/camera/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	resp, body = h.do(http.MethodPost, "/v1/onboarding/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	resp, body = h.do(http.MethodPut, "/v1/onboarding/social", dto.SocialHandles{X: "other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	assert.False(t, h.app.Device.Held(), "no camera acquired after completion")

	resp, body = h.do(http.MethodPost, "/v1/auth/signout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "login", decode[dto.ScreenResponse](t, body).Screen)

	resp, _ = h.do(http.MethodPost, "/v1/onboarding/camera/start", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefresh_ExtendsSession(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(http.MethodPost, "/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))

	resp, body = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	first := decode[dto.SessionResponse](t, body)

	resp, body = h.do(http.MethodPost, "/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	refreshed := decode[dto.SessionResponse](t, body)
	assert.Equal(t, first.SubjectID, refreshed.SubjectID)
	assert.Equal(t, "onboarding", refreshed.Screen)
}

func TestSessionExpiry_ReturnsToLogin(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Identity.SessionTTL = "1s" })

	resp, body := h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, "onboarding", decode[dto.SessionResponse](t, body).Screen)

	require.Eventually(t, func() bool {
		_, body := h.do(http.MethodGet, "/v1/screen", nil)
		return decode[dto.ScreenResponse](t, body).Screen == "login"
	}, 3*time.Second, 20*time.Millisecond)

	resp, _ = h.do(http.MethodPost, "/v1/onboarding/camera/start", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = h.do(http.MethodPost, "/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, h.app.Device.Held())
}

func TestSignIn_SeedAccount(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Identity.SeedEmail = "seed@example.com"
		c.Identity.SeedPassword = "seed-password"
	})

	resp, body := h.do(http.MethodPost, "/v1/auth/signin", dto.CredentialsRequest{Email: "seed@example.com", Password: "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "INVALID_CREDENTIALS")

	resp, body = h.do(http.MethodPost, "/v1/auth/signin", dto.CredentialsRequest{Email: "seed@example.com", Password: "seed-password"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "onboarding", decode[dto.SessionResponse](t, body).Screen)
}

func TestAuth_Validation(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, _ = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCameraDenied_ReportsReason(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Capture.Synthetic.Deny = true })

	resp, _ := h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := h.do(http.MethodPost, "/v1/onboarding/camera/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cam := decode[dto.CameraResponse](t, body)
	assert.Equal(t, "error", cam.Phase)
	require.NotNil(t, cam.Error)
	assert.Equal(t, "permission_denied", cam.Error.Reason)
	assert.NotEmpty(t, cam.Error.Hint)
	assert.False(t, h.app.Device.Held(), "denied acquisition holds nothing")
}

func TestScreenRetry_OutsideErrorScreen(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := h.do(http.MethodGet, "/v1/screen?wait=2s", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(http.MethodPost, "/v1/screen/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
}

func TestDemoVerification(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(http.MethodPost, "/v1/demo/verification", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	run := decode[dto.VerificationResponse](t, body).Run
	assert.NotZero(t, run)

	require.Eventually(t, func() bool {
		_, body := h.do(http.MethodGet, "/v1/demo/verification", nil)
		v := decode[dto.VerificationResponse](t, body)
		return v.Done && v.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)

	resp, body = h.do(http.MethodDelete, "/v1/demo/verification", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[dto.VerificationResponse](t, body).Running)
}

func TestInfraEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	health := decode[dto.HealthResponse](t, body)
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, "up", health.Components["storage"])
	assert.Equal(t, "up", health.Components["cache"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = h.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "NOT_FOUND")

	resp, body = h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/readyz",status="200"}`)
}

func TestSignIn_RateLimited(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Rate.Max = 2
		c.Rate.Window = "1m"
	})

	creds := dto.CredentialsRequest{Email: "nobody@example.com", Password: "whatever-pass"}
	for i := 0; i < 2; i++ {
		resp, _ := h.do(http.MethodPost, "/v1/auth/signin", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := h.do(http.MethodPost, "/v1/auth/signin", creds)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "RATE_LIMIT_EXCEEDED")
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// signup tiene su propio contador
	resp, _ = h.do(http.MethodPost, "/v1/auth/signup", dto.CredentialsRequest{Email: "ada@example.com", Password: "long-enough"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
