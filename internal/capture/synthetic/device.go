// Package synthetic implementa una cámara de desarrollo: entrega un patrón
// de prueba después de un warm-up y admite un solo stream a la vez.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/dropDatabas3/sentinel/internal/capture"
)

// Config de la cámara sintética.
type Config struct {
	Warmup time.Duration
	Width  int
	Height int
	Deny   bool // simula permiso denegado
	Absent bool // simula que no hay cámara
}

type stream struct {
	id       string
	readyAt  time.Time
	released chan struct{}
}

func (s *stream) ID() string { return s.id }

// Device es seguro para uso concurrente.
type Device struct {
	warmup time.Duration
	width  int
	height int

	mu     sync.Mutex
	deny   bool
	absent bool
	held   *stream
	seq    int
	frames int
}

var _ capture.Device = (*Device)(nil)

func New(cfg Config) *Device {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	return &Device{
		warmup: cfg.Warmup,
		width:  cfg.Width,
		height: cfg.Height,
		deny:   cfg.Deny,
		absent: cfg.Absent,
	}
}

// SetDenied cambia la respuesta de permisos (ej: el usuario lo habilitó).
func (d *Device) SetDenied(v bool) {
	d.mu.Lock()
	d.deny = v
	d.mu.Unlock()
}

// SetAbsent simula conectar o desconectar la cámara.
func (d *Device) SetAbsent(v bool) {
	d.mu.Lock()
	d.absent = v
	d.mu.Unlock()
}

// Held reporta si hay un stream adquirido sin liberar.
func (d *Device) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held != nil
}

func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.absent:
		return nil, capture.ErrDeviceNotFound
	case d.deny:
		return nil, capture.ErrPermissionDenied
	case d.held != nil:
		return nil, capture.ErrDeviceBusy
	}
	d.seq++
	s := &stream{
		id:       fmt.Sprintf("synthetic-%d", d.seq),
		readyAt:  time.Now().Add(d.warmup),
		released: make(chan struct{}),
	}
	d.held = s
	return s, nil
}

func (d *Device) WaitFrame(ctx context.Context, cs capture.Stream) error {
	s, ok := cs.(*stream)
	if !ok {
		return errors.New("synthetic: foreign stream")
	}
	wait := time.Until(s.readyAt)
	if wait <= 0 {
		select {
		case <-s.released:
			return errors.New("synthetic: stream released")
		default:
			return nil
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.released:
		return errors.New("synthetic: stream released")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) Sample(cs capture.Stream) (image.Image, error) {
	s, ok := cs.(*stream)
	if !ok {
		return nil, errors.New("synthetic: foreign stream")
	}
	select {
	case <-s.released:
		return nil, errors.New("synthetic: stream released")
	default:
	}
	d.mu.Lock()
	d.frames++
	n := d.frames
	d.mu.Unlock()
	return pattern(d.width, d.height, n), nil
}

func (d *Device) Release(cs capture.Stream) error {
	s, ok := cs.(*stream)
	if !ok {
		return errors.New("synthetic: foreign stream")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-s.released:
		return nil
	default:
		close(s.released)
	}
	if d.held == s {
		d.held = nil
	}
	return nil
}

// pattern dibuja barras de color con un desplazamiento por frame.
func pattern(w, h, n int) image.Image {
	bars := []color.RGBA{
		{255, 255, 255, 255}, {255, 255, 0, 255}, {0, 255, 255, 255}, {0, 255, 0, 255},
		{255, 0, 255, 255}, {255, 0, 0, 255}, {0, 0, 255, 255}, {16, 16, 16, 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	barW := w / len(bars)
	if barW == 0 {
		barW = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := bars[((x+n)/barW)%len(bars)]
			if y > h*3/4 {
				v := uint8(x * 255 / w)
				c = color.RGBA{v, v, v, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
