// Package capture maneja el ciclo de vida de la cámara durante el
// onboarding: adquirir el stream, confirmar que entrega frames, tomar una
// foto y liberar el dispositivo en todos los caminos de salida.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Phase es la etapa del controller.
type Phase string

const (
	Idle         Phase = "idle"
	Initializing Phase = "initializing"
	Ready        Phase = "ready"
	Failed       Phase = "error"
	Captured     Phase = "captured"
	Closed       Phase = "closed"
)

// Frame es una foto tomada del stream.
type Frame struct {
	ID         uuid.UUID
	Image      image.Image
	CapturedAt time.Time
}

// State es la vista del controller para la capa de presentación.
type State struct {
	Phase Phase
	Err   *DeviceError // sólo en Failed
	Frame *Frame       // sólo en Captured
}

const defaultFrameTimeout = 5 * time.Second

// Options configura un Controller.
type Options struct {
	FrameTimeout time.Duration
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

type Controller struct {
	device       Device
	frameTimeout time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time

	mu     sync.Mutex
	phase  Phase
	err    *DeviceError
	frame  *Frame
	stream Stream // quien lo pone en nil es responsable de liberarlo
	gen    uint64 // invalida intentos en vuelo
}

func NewController(device Device, opts Options) *Controller {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = defaultFrameTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		device:       device,
		frameTimeout: opts.FrameTimeout,
		metrics:      opts.Metrics,
		now:          opts.Now,
		phase:        Idle,
	}
}

// State retorna una copia del estado actual.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Phase: c.phase, Err: c.err, Frame: c.frame}
}

// Start pasa de Idle a Initializing y bloquea hasta Ready o Failed.
// Retorna *DeviceError si el dispositivo falla.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Idle:
	default:
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.gen++
	gen := c.gen
	c.phase = Initializing
	c.err, c.frame = nil, nil
	c.mu.Unlock()

	log := logger.From(ctx).With(logger.Component("capture"), logger.Op("Start"))

	stream, err := c.device.Acquire(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if stream != nil {
			_ = c.device.Release(stream)
			log.Debug("late acquisition released")
		}
		return ErrCancelled
	}
	if err != nil {
		de := c.failLocked(err)
		c.mu.Unlock()
		log.Warn("camera acquisition failed", logger.Reason(string(de.Reason)), logger.Err(err))
		return de
	}
	c.stream = stream
	c.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, c.frameTimeout)
	err = c.device.WaitFrame(wctx, stream)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Retake/Close ya liberó el stream.
		return ErrCancelled
	}
	if err != nil {
		c.releaseLocked()
		de := c.failLocked(err)
		log.Warn("camera did not deliver frames", logger.Reason(string(de.Reason)), logger.Err(err))
		return de
	}
	c.phase = Ready
	log.Debug("camera ready", logger.String("stream", stream.ID()))
	return nil
}

// Capture toma el frame actual, libera el stream y pasa a Captured.
func (c *Controller) Capture() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Closed {
		return nil, ErrClosed
	}
	if c.phase != Ready || c.stream == nil {
		return nil, ErrInvalidTransition
	}

	img, err := c.device.Sample(c.stream)
	c.releaseLocked()
	if err != nil {
		return nil, c.failLocked(err)
	}
	if img == nil {
		return nil, c.failLocked(errors.New("empty frame"))
	}

	c.frame = &Frame{ID: uuid.New(), Image: img, CapturedAt: c.now()}
	c.phase = Captured
	return c.frame, nil
}

// Retake descarta la foto o el error actual y vuelve a iniciar la cámara.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Captured, Failed:
	default:
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.gen++
	c.releaseLocked()
	c.phase = Idle
	c.err, c.frame = nil, nil
	c.mu.Unlock()

	return c.Start(ctx)
}

// Close libera cualquier stream y deja el controller inutilizable. Una
// adquisición que termine después se libera al instante.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Closed {
		return
	}
	c.gen++
	c.releaseLocked()
	c.phase = Closed
	c.err = nil
}

func (c *Controller) releaseLocked() {
	if c.stream == nil {
		return
	}
	if err := c.device.Release(c.stream); err != nil {
		logger.L().Warn("camera release failed", logger.Component("capture"), logger.Err(err))
	}
	c.stream = nil
}

func (c *Controller) failLocked(err error) *DeviceError {
	de := newDeviceError(err)
	c.phase = Failed
	c.err = de
	c.frame = nil
	c.metrics.CaptureError(string(de.Reason))
	return de
}
