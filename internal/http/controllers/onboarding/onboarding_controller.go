// Package onboarding expone los dos pasos del onboarding: redes sociales y
// cámara + submission.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/enrollment"
	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/http/dto"
	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	"github.com/dropDatabas3/sentinel/internal/http/helpers"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/onboarding"
)

// Flow es lo que el controller necesita de onboarding.Flow.
type Flow interface {
	SetSocial(h repository.SocialHandles) (repository.SocialHandles, error)
	Social() repository.SocialHandles
	Camera() capture.State
	StartCamera(ctx context.Context) (capture.State, error)
	Capture() (*capture.Frame, error)
	Retake(ctx context.Context) (capture.State, error)
	Leave()
	Submit(ctx context.Context) (*enrollment.Result, error)
	Progress() enrollment.Progress
}

type Controller struct {
	flow   Flow
	screen func() string
}

// NewController; screen retorna el nombre de la pantalla actual (puede ser nil).
func NewController(flow Flow, screen func() string) *Controller {
	if screen == nil {
		screen = func() string { return "" }
	}
	return &Controller{flow: flow, screen: screen}
}

// onOnboarding deja pasar las acciones sólo en la pantalla de onboarding:
// un perfil completo no puede re-enviar su foto.
func (c *Controller) onOnboarding(w http.ResponseWriter, r *http.Request) bool {
	switch screen := c.screen(); screen {
	case "", guard.Onboarding.String():
		return true
	case guard.Login.String():
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized.WithCause(onboarding.ErrUnauthenticated))
		return false
	default:
		httperrors.WriteError(w, r, httperrors.ErrConflict.WithDetail(
			fmt.Sprintf("onboarding is not available on screen %q", screen)))
		return false
	}
}

// PutSocial maneja PUT /v1/onboarding/social.
func (c *Controller) PutSocial(w http.ResponseWriter, r *http.Request) {
	if !c.onOnboarding(w, r) {
		return
	}
	var req dto.SocialHandles
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	h, err := c.flow.SetSocial(repository.SocialHandles{X: req.X, Instagram: req.Instagram, LinkedIn: req.LinkedIn})
	if err != nil {
		writeFlowError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SocialHandles{X: h.X, Instagram: h.Instagram, LinkedIn: h.LinkedIn})
}

// GetSocial maneja GET /v1/onboarding/social.
func (c *Controller) GetSocial(w http.ResponseWriter, r *http.Request) {
	h := c.flow.Social()
	helpers.WriteJSON(w, http.StatusOK, dto.SocialHandles{X: h.X, Instagram: h.Instagram, LinkedIn: h.LinkedIn})
}

// Camera maneja GET /v1/onboarding/camera.
func (c *Controller) Camera(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, cameraDTO(c.flow.Camera()))
}

// StartCamera maneja POST /v1/onboarding/camera/start. Un fallo del
// dispositivo no es un error HTTP: se informa como phase=error con hint.
func (c *Controller) StartCamera(w http.ResponseWriter, r *http.Request) {
	if !c.onOnboarding(w, r) {
		return
	}
	st, err := c.flow.StartCamera(r.Context())
	c.writeCamera(w, r, "OnboardingController.StartCamera", st, err)
}

// Capture maneja POST /v1/onboarding/camera/capture.
func (c *Controller) Capture(w http.ResponseWriter, r *http.Request) {
	if !c.onOnboarding(w, r) {
		return
	}
	_, err := c.flow.Capture()
	c.writeCamera(w, r, "OnboardingController.Capture", c.flow.Camera(), err)
}

// Retake maneja POST /v1/onboarding/camera/retake.
func (c *Controller) Retake(w http.ResponseWriter, r *http.Request) {
	if !c.onOnboarding(w, r) {
		return
	}
	st, err := c.flow.Retake(r.Context())
	c.writeCamera(w, r, "OnboardingController.Retake", st, err)
}

// StopCamera maneja DELETE /v1/onboarding/camera.
func (c *Controller) StopCamera(w http.ResponseWriter, r *http.Request) {
	c.flow.Leave()
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) writeCamera(w http.ResponseWriter, r *http.Request, op string, st capture.State, err error) {
	var de *capture.DeviceError
	switch {
	case err == nil:
	case errors.As(err, &de):
		logger.From(r.Context()).Info("camera unavailable", logger.Op(op), logger.Reason(string(de.Reason)))
	default:
		writeFlowError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, cameraDTO(st))
}

// Submit maneja POST /v1/onboarding/submit.
func (c *Controller) Submit(w http.ResponseWriter, r *http.Request) {
	if !c.onOnboarding(w, r) {
		return
	}
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("OnboardingController.Submit"))

	res, err := c.flow.Submit(r.Context())
	if err != nil {
		if f, ok := enrollment.AsFailure(err); ok {
			log.Warn("submission failed", logger.Reason(string(f.Kind)), logger.Err(f.Err))
			helpers.WriteJSON(w, http.StatusBadGateway, progressDTO(c.flow.Progress()))
			return
		}
		writeFlowError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SubmitResponse{
		Key:          res.Key,
		FaceImageRef: res.FaceImageRef,
		Screen:       c.screen(),
	})
}

// Progress maneja GET /v1/onboarding/progress.
func (c *Controller) Progress(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, progressDTO(c.flow.Progress()))
}

func writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, onboarding.ErrUnauthenticated):
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized.WithCause(err))
	case errors.Is(err, onboarding.ErrSubmissionPending),
		errors.Is(err, onboarding.ErrCameraBusy),
		errors.Is(err, onboarding.ErrNoCamera),
		errors.Is(err, onboarding.ErrNoFrame),
		errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, capture.ErrCancelled),
		errors.Is(err, capture.ErrClosed):
		httperrors.WriteError(w, r, httperrors.ErrConflict.WithDetail(err.Error()).WithCause(err))
	default:
		httperrors.WriteError(w, r, err)
	}
}

func cameraDTO(st capture.State) dto.CameraResponse {
	resp := dto.CameraResponse{Phase: string(st.Phase)}
	if st.Err != nil {
		resp.Error = &dto.CameraError{Reason: string(st.Err.Reason), Hint: st.Err.Hint()}
	}
	if st.Frame != nil {
		fi := &dto.FrameInfo{ID: st.Frame.ID.String(), CapturedAt: st.Frame.CapturedAt.UTC()}
		if st.Frame.Image != nil {
			b := st.Frame.Image.Bounds()
			fi.Width, fi.Height = b.Dx(), b.Dy()
		}
		resp.Frame = fi
	}
	return resp
}

func progressDTO(p enrollment.Progress) dto.ProgressResponse {
	resp := dto.ProgressResponse{Percent: p.Percent, Stage: string(p.Stage)}
	if p.Failure != nil {
		msg := string(p.Failure.Kind)
		if p.Failure.Err != nil {
			msg = p.Failure.Err.Error()
		}
		resp.Failure = &dto.FailureDetail{
			Kind:           string(p.Failure.Kind),
			Message:        msg,
			RetakeRequired: p.Failure.RetakeRequired,
		}
	}
	return resp
}
