// Package screen expone el estado del guard y la zona protegida.
package screen

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/http/dto"
	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	"github.com/dropDatabas3/sentinel/internal/http/helpers"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Gate es la parte del guard que usa este controller.
type Gate interface {
	State() guard.State
	Retry(ctx context.Context) (guard.State, error)
	AwaitSettled(ctx context.Context) (guard.State, error)
}

const maxWait = 10 * time.Second

type Controller struct {
	gate Gate
}

func NewController(gate Gate) *Controller { return &Controller{gate: gate} }

// Screen maneja GET /v1/screen. Con ?wait=<duración> bloquea hasta salir
// de Loading (máximo 10s).
func (c *Controller) Screen(w http.ResponseWriter, r *http.Request) {
	st := c.gate.State()
	if raw := r.URL.Query().Get("wait"); raw != "" && st.Screen == guard.Loading {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("wait must be a positive duration"))
			return
		}
		if d > maxWait {
			d = maxWait
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		st, _ = c.gate.AwaitSettled(ctx)
		cancel()
	}
	helpers.WriteJSON(w, http.StatusOK, helpers.ScreenResponse(st))
}

// Retry maneja POST /v1/screen/retry.
func (c *Controller) Retry(w http.ResponseWriter, r *http.Request) {
	st, err := c.gate.Retry(r.Context())
	if errors.Is(err, guard.ErrNotInErrorScreen) {
		httperrors.WriteError(w, r, httperrors.ErrConflict.WithDetail(err.Error()))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, helpers.ScreenResponse(st))
}

// Dashboard maneja GET /v1/dashboard: 202 mientras carga, 303 a la
// pantalla que corresponda y el resumen del perfil sólo si está completo.
func (c *Controller) Dashboard(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("ScreenController.Dashboard"))

	st := c.gate.State()
	dec := guard.Decide(st)
	switch dec.Action {
	case guard.Wait:
		w.Header().Set("Retry-After", "1")
		helpers.WriteJSON(w, http.StatusAccepted, dto.PendingResponse{Screen: guard.Loading.String()})
		return
	case guard.Redirect:
		log.Debug("dashboard redirected", logger.Screen(dec.Target.String()))
		w.Header().Set("Location", helpers.ScreenPath(dec.Target))
		helpers.WriteJSON(w, http.StatusSeeOther, helpers.ScreenResponse(st))
		return
	}

	rec := st.Classification.Record
	if rec == nil {
		// Admit garantiza Complete, que siempre trae el registro.
		httperrors.WriteError(w, r, httperrors.ErrInternalServerError.WithDetail("complete profile without record"))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.DashboardResponse{
		SubjectID:    rec.SubjectID,
		CreatedAt:    rec.CreatedAt.UTC(),
		FaceImageRef: rec.FaceImageRef,
		Social: dto.SocialHandles{
			X:         rec.Social.X,
			Instagram: rec.Social.Instagram,
			LinkedIn:  rec.Social.LinkedIn,
		},
	})
}
