// Package onboarding coordina los dos pasos del onboarding: redes sociales
// y cámara. Serializa las acciones de cámara contra la submission para que
// nunca se reinicie la cámara mientras se sube una foto.
package onboarding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/email"
	"github.com/dropDatabas3/sentinel/internal/enrollment"
	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/session"
)

var (
	// ErrUnauthenticated no hay sesión activa.
	ErrUnauthenticated = errors.New("onboarding: no active session")

	// ErrSubmissionPending hay una foto subiéndose; la cámara no se toca.
	ErrSubmissionPending = enrollment.ErrSubmissionPending

	// ErrNoCamera la cámara no fue iniciada.
	ErrNoCamera = errors.New("onboarding: camera not started")

	// ErrNoFrame Submit sin foto tomada.
	ErrNoFrame = errors.New("onboarding: no captured frame")

	// ErrCameraBusy hay un start/retake en curso.
	ErrCameraBusy = errors.New("onboarding: camera operation in progress")
)

// SessionSource expone la sesión vigente y sus cambios.
type SessionSource interface {
	Current() *repository.Session
	Subscribe(l session.Listener) (unsubscribe func())
}

// Refresher re-evalúa la pantalla luego de completar el perfil.
type Refresher interface {
	Refresh(ctx context.Context) guard.State
}

const notifyTimeout = 30 * time.Second

// Config dependencias del Flow.
type Config struct {
	Sessions SessionSource
	Guard    Refresher
	Pipeline *enrollment.Pipeline
	Device   capture.Device
	Capture  capture.Options
	Notifier email.Notifier // nil = no-op
	AppName  string
}

type Flow struct {
	cfg Config

	mu         sync.Mutex
	subject    string // dueño del borrador y de la cámara
	social     repository.SocialHandles
	camera     *capture.Controller
	cameraOps  int
	submitting bool

	notifyWG sync.WaitGroup
	unsub    func()
}

// New crea el Flow y lo suscribe a la sesión: cuando cambia el sujeto
// (sign-out, expiración u otra cuenta) se descartan cámara, foto, borrador
// y upload pendiente.
func New(cfg Config) *Flow {
	if cfg.Notifier == nil {
		cfg.Notifier = email.Noop{}
	}
	f := &Flow{cfg: cfg}
	f.unsub = cfg.Sessions.Subscribe(f.onSession)
	return f
}

func (f *Flow) onSession(s *repository.Session) {
	subject := ""
	if s != nil {
		subject = s.SubjectID
	}

	f.mu.Lock()
	if subject == f.subject {
		f.mu.Unlock()
		return
	}
	prev := f.subject
	f.subject = subject
	ctrl := f.camera
	f.camera = nil
	f.social = repository.SocialHandles{}
	f.mu.Unlock()

	if ctrl != nil {
		ctrl.Close()
	}
	f.cfg.Pipeline.Reset()
	if prev != "" {
		logger.L().Debug("onboarding draft discarded",
			logger.Component("onboarding"), logger.SubjectID(prev))
	}
}

func (f *Flow) session() (*repository.Session, error) {
	s := f.cfg.Sessions.Current()
	if s == nil || s.SubjectID == "" {
		return nil, ErrUnauthenticated
	}
	return s, nil
}

// SetSocial guarda el borrador de redes (paso 1). Retorna los valores
// normalizados.
func (f *Flow) SetSocial(h repository.SocialHandles) (repository.SocialHandles, error) {
	if _, err := f.session(); err != nil {
		return repository.SocialHandles{}, err
	}
	n := h.Normalize()
	f.mu.Lock()
	f.social = n
	f.mu.Unlock()
	return n, nil
}

func (f *Flow) Social() repository.SocialHandles {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.social
}

// Camera retorna el estado de la cámara; Idle si no hay sesión de cámara.
func (f *Flow) Camera() capture.State {
	f.mu.Lock()
	c := f.camera
	f.mu.Unlock()
	if c == nil {
		return capture.State{Phase: capture.Idle}
	}
	return c.State()
}

func (f *Flow) Progress() enrollment.Progress { return f.cfg.Pipeline.Progress() }

// beginCameraOp reserva la cámara para start/retake. Falla si hay una
// submission en curso.
func (f *Flow) beginCameraOp() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting || f.cfg.Pipeline.Pending() {
		return ErrSubmissionPending
	}
	f.cameraOps++
	return nil
}

func (f *Flow) endCameraOp() {
	f.mu.Lock()
	f.cameraOps--
	f.mu.Unlock()
}

// StartCamera abre una sesión de cámara (paso 2) y bloquea hasta Ready o
// error. Si la cámara ya está activa retorna su estado sin reiniciarla.
func (f *Flow) StartCamera(ctx context.Context) (capture.State, error) {
	if _, err := f.session(); err != nil {
		return capture.State{}, err
	}
	if err := f.beginCameraOp(); err != nil {
		return f.Camera(), err
	}
	defer f.endCameraOp()

	f.mu.Lock()
	ctrl := f.camera
	if ctrl != nil {
		switch ctrl.State().Phase {
		case capture.Initializing, capture.Ready, capture.Captured:
			f.mu.Unlock()
			return ctrl.State(), nil
		}
		ctrl.Close()
	}
	ctrl = capture.NewController(f.cfg.Device, f.cfg.Capture)
	f.camera = ctrl
	f.mu.Unlock()

	err := ctrl.Start(ctx)
	return ctrl.State(), err
}

// Capture toma la foto.
func (f *Flow) Capture() (*capture.Frame, error) {
	f.mu.Lock()
	ctrl := f.camera
	f.mu.Unlock()
	if ctrl == nil {
		return nil, ErrNoCamera
	}
	return ctrl.Capture()
}

// Retake descarta la foto (o el error) y reinicia la cámara.
func (f *Flow) Retake(ctx context.Context) (capture.State, error) {
	if _, err := f.session(); err != nil {
		return capture.State{}, err
	}
	if err := f.beginCameraOp(); err != nil {
		return f.Camera(), err
	}
	defer f.endCameraOp()

	f.mu.Lock()
	ctrl := f.camera
	f.mu.Unlock()
	if ctrl == nil {
		return capture.State{Phase: capture.Idle}, ErrNoCamera
	}
	err := ctrl.Retake(ctx)
	return ctrl.State(), err
}

// Leave cierra la cámara (navegación fuera del onboarding). Una foto ya
// enviada al pipeline no se ve afectada.
func (f *Flow) Leave() {
	f.mu.Lock()
	ctrl := f.camera
	f.camera = nil
	f.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}
}

// Submit sube la foto capturada junto con el borrador de redes. Al
// terminar re-evalúa el guard y notifica al usuario (best-effort).
func (f *Flow) Submit(ctx context.Context) (*enrollment.Result, error) {
	sess, err := f.session()
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	switch {
	case f.submitting:
		f.mu.Unlock()
		return nil, ErrSubmissionPending
	case f.cameraOps > 0:
		f.mu.Unlock()
		return nil, ErrCameraBusy
	case f.camera == nil, f.subject != sess.SubjectID:
		f.mu.Unlock()
		return nil, ErrNoFrame
	}
	st := f.camera.State()
	if st.Phase != capture.Captured || st.Frame == nil {
		f.mu.Unlock()
		return nil, ErrNoFrame
	}
	f.submitting = true
	social := f.social
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	log := logger.From(ctx).With(logger.Component("onboarding"), logger.Op("Submit"), logger.SubjectID(sess.SubjectID))

	res, err := f.cfg.Pipeline.Submit(ctx, st.Frame, social, sess.SubjectID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	owner := f.subject == sess.SubjectID
	if owner {
		f.social = repository.SocialHandles{}
	}
	f.mu.Unlock()
	if owner {
		f.Leave()
	}

	if f.cfg.Guard != nil {
		gs := f.cfg.Guard.Refresh(ctx)
		log.Debug("guard refreshed", logger.Screen(gs.Screen.String()))
	}
	f.notify(ctx, sess)
	return res, nil
}

func (f *Flow) notify(ctx context.Context, sess *repository.Session) {
	n := email.Notice{
		To:          sess.Email,
		SubjectID:   sess.SubjectID,
		CompletedAt: time.Now(),
		AppName:     f.cfg.AppName,
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	f.notifyWG.Add(1)
	go func() {
		defer f.notifyWG.Done()
		defer cancel()
		f.cfg.Notifier.VerificationComplete(nctx, n)
	}()
}

// Close se desuscribe, cierra la cámara y espera las notificaciones en vuelo.
func (f *Flow) Close() {
	if f.unsub != nil {
		f.unsub()
	}
	f.Leave()
	f.notifyWG.Wait()
}
