// Package router arma el chi.Router con todas las rutas de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/auth"
	democtrl "github.com/dropDatabas3/sentinel/internal/http/controllers/demo"
	healthctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/health"
	onbctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/onboarding"
	screenctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/screen"
	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	mw "github.com/dropDatabas3/sentinel/internal/http/middlewares"
	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/rate"
)

// Deps contiene los controllers y handlers a montar. Los nil se omiten.
type Deps struct {
	Auth       *authctrl.Controller
	Screen     *screenctrl.Controller
	Onboarding *onbctrl.Controller
	Demo       *democtrl.Controller
	Health     *healthctrl.Controller

	Metrics     *metrics.Metrics
	MetricsPath string       // default /metrics
	Assets      http.Handler // sirve /assets/*; nil si el driver no es fs
	AuthLimiter rate.Limiter // limita signin/signup; nil = sin límite
	TrustProxy  bool         // la key del limiter usa X-Forwarded-For
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(d.Metrics),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, r, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, r, httperrors.ErrMethodNotAllowed)
	})

	if d.Health != nil {
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics.Handler())
	}
	if d.Assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets", d.Assets))
	}

	r.Route("/v1", func(r chi.Router) {
		if d.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(mw.WithRateLimit(d.AuthLimiter, mw.ClientIPPathRateKey(d.TrustProxy)))
					r.Post("/signup", d.Auth.SignUp)
					r.Post("/signin", d.Auth.SignIn)
				})
				r.Post("/refresh", d.Auth.Refresh)
				r.Post("/signout", d.Auth.SignOut)
			})
		}
		if d.Screen != nil {
			r.Get("/screen", d.Screen.Screen)
			r.Post("/screen/retry", d.Screen.Retry)
			r.Get("/dashboard", d.Screen.Dashboard)
		}
		if d.Onboarding != nil {
			r.Route("/onboarding", func(r chi.Router) {
				r.Get("/social", d.Onboarding.GetSocial)
				r.Put("/social", d.Onboarding.PutSocial)
				r.Get("/camera", d.Onboarding.Camera)
				r.Delete("/camera", d.Onboarding.StopCamera)
				r.Post("/camera/start", d.Onboarding.StartCamera)
				r.Post("/camera/capture", d.Onboarding.Capture)
				r.Post("/camera/retake", d.Onboarding.Retake)
				r.Post("/submit", d.Onboarding.Submit)
				r.Get("/progress", d.Onboarding.Progress)
			})
		}
		if d.Demo != nil {
			r.Post("/demo/verification", d.Demo.Start)
			r.Get("/demo/verification", d.Demo.Get)
			r.Delete("/demo/verification", d.Demo.Stop)
		}
	})
	return r
}
