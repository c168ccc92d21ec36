// Package enrollment sube la foto capturada y finaliza el perfil:
// encode → upload → URL pública → update del perfil, en ese orden y con
// progreso observable.
package enrollment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// ErrSubmissionPending ya hay una submission en curso.
var ErrSubmissionPending = errors.New("enrollment: submission already in progress")

// Config dependencias y parámetros del pipeline.
type Config struct {
	Assets      repository.AssetRepository
	Profiles    repository.ProfileRepository
	JPEGQuality int           // default 95
	ContentType string        // default image/jpeg
	Timeout     time.Duration // 0 = sin límite
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Result es lo que deja una submission exitosa.
type Result struct {
	Key          string
	FaceImageRef string
}

// upload pendiente de enlazar al perfil; permite reintentar sin re-subir.
type pendingUpload struct {
	frameID uuid.UUID
	subject string
	key     string
	url     string
}

type Pipeline struct {
	cfg Config

	mu        sync.Mutex
	running   bool
	progress  Progress
	pending   *pendingUpload
	listeners map[int]func(Progress)
	nextID    int
}

func New(cfg Config) *Pipeline {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 95
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/jpeg"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		cfg:       cfg,
		progress:  Progress{Stage: Idle},
		listeners: make(map[int]func(Progress)),
	}
}

// ObjectKey arma la key del asset: única por sujeto e instante.
func ObjectKey(subjectID string, at time.Time) string {
	return fmt.Sprintf("face_%s_%d.jpg", subjectID, at.UnixMilli())
}

// Progress retorna el estado actual.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Pending reporta si hay una submission en curso.
func (p *Pipeline) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Reset olvida el upload pendiente de enlazar y vuelve el progreso a Idle
// (cambio de sujeto). Una submission en curso no se toca.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.mu.Unlock()
	p.set(Progress{Stage: Idle})
}

// Subscribe registra l para cada cambio de progreso.
func (p *Pipeline) Subscribe(l func(Progress)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Pipeline) set(pr Progress) {
	p.mu.Lock()
	p.progress = pr
	ls := make([]func(Progress), 0, len(p.listeners))
	for i := 0; i < p.nextID; i++ {
		if l, ok := p.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	p.mu.Unlock()
	for _, l := range ls {
		l(pr)
	}
}

// Submit ejecuta la submission completa. No es re-entrante: una segunda
// llamada concurrente retorna ErrSubmissionPending. Los errores de pasos
// se retornan como *Failure.
func (p *Pipeline) Submit(ctx context.Context, frame *capture.Frame, social repository.SocialHandles, subjectID string) (*Result, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("enrollment: %w: nil frame", repository.ErrInvalidInput)
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("enrollment: %w: empty subject", repository.ErrInvalidInput)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrSubmissionPending
	}
	p.running = true
	pending := p.pending
	if pending != nil && (pending.frameID != frame.ID || pending.subject != subjectID) {
		pending = nil
	}
	p.pending = pending
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	log := logger.From(ctx).With(
		logger.Component("enrollment"), logger.Op("Submit"), logger.SubjectID(subjectID))
	start := p.cfg.Now()

	p.set(Progress{Percent: 0, Stage: Idle})

	res, stage, err := p.run(ctx, frame, social.Normalize(), subjectID, pending)
	took := p.cfg.Now().Sub(start)
	if err != nil {
		f, _ := AsFailure(err)
		last := p.Progress()
		p.set(Progress{Percent: last.Percent, Stage: Failed, Failure: f})
		p.cfg.Metrics.EnrollmentOutcome(string(stage), false, took)
		log.Warn("enrollment failed", logger.Stage(string(stage)), logger.Progress(last.Percent), logger.Err(err))
		return nil, err
	}

	p.set(Progress{Percent: donePercent, Stage: Done})
	p.cfg.Metrics.EnrollmentOutcome(string(Done), true, took)
	log.Info("enrollment completed", logger.Key(res.Key), logger.Duration(took))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, frame *capture.Frame, social repository.SocialHandles, subject string, pending *pendingUpload) (*Result, Stage, error) {
	if pending == nil {
		// 1. encode
		p.set(Progress{Percent: 0, Stage: Encoding})
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
			return nil, Encoding, &Failure{Kind: EncodeError, Err: err, RetakeRequired: true}
		}
		p.set(Progress{Percent: encodedPercent, Stage: Encoding})

		// 2. upload
		key := ObjectKey(subject, p.cfg.Now())
		p.set(Progress{Percent: encodedPercent, Stage: Uploading})
		if err := p.cfg.Assets.Upload(ctx, key, buf.Bytes(), p.cfg.ContentType); err != nil {
			return nil, Uploading, &Failure{Kind: UploadError, Err: err}
		}
		pending = &pendingUpload{frameID: frame.ID, subject: subject, key: key}
		p.mu.Lock()
		p.pending = pending
		p.mu.Unlock()
	} else {
		logger.From(ctx).Debug("reusing pending upload",
			logger.Component("enrollment"), logger.Key(pending.key))
	}
	p.set(Progress{Percent: uploadedPercent, Stage: Uploading})

	// 3. URL pública
	p.set(Progress{Percent: uploadedPercent, Stage: LinkingProfile})
	if pending.url == "" {
		url, err := p.cfg.Assets.PublicURL(ctx, pending.key)
		if err != nil {
			return nil, LinkingProfile, &Failure{Kind: LinkError, Err: err}
		}
		if strings.TrimSpace(url) == "" {
			return nil, LinkingProfile, &Failure{Kind: LinkError, Err: errors.New("empty public url")}
		}
		p.mu.Lock()
		pending.url = url
		p.mu.Unlock()
	}
	p.set(Progress{Percent: linkedPercent, Stage: LinkingProfile})

	// 4. update del perfil
	if err := p.cfg.Profiles.Update(ctx, subject, repository.UpdateProfileInput{
		Social:       social,
		FaceImageRef: pending.url,
	}); err != nil {
		return nil, LinkingProfile, &Failure{Kind: ProfileUpdateError, Err: err}
	}

	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	return &Result{Key: pending.key, FaceImageRef: pending.url}, Done, nil
}
