// Package simulator anima un pipeline de decisión por etapas: marca cada
// etapa activa, espera un dwell fijo, la marca completa y avanza. No hace I/O.
package simulator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// StageStatus estado de una etapa.
type StageStatus string

const (
	Pending   StageStatus = "pending"
	Active    StageStatus = "active"
	Completed StageStatus = "completed"
)

// Stage es una etapa con su estado.
type Stage struct {
	Name   string
	Status StageStatus
}

// Snapshot es el estado observable de una pasada.
type Snapshot struct {
	Run      uint64 // 0 = nunca se corrió
	Stages   []Stage
	Progress int // completadas/total*100
	Running  bool
	Done     bool
}

// ErrNoStages el runner necesita al menos una etapa.
var ErrNoStages = errors.New("simulator: no stages")

// Options configura el Runner.
type Options struct {
	// After reemplaza time.After (tests).
	After   func(time.Duration) <-chan time.Time
	Metrics *metrics.Metrics
	// OnChange recibe cada transición de la pasada vigente, en orden, desde
	// el loop. No debe llamar a Start/Stop.
	OnChange func(Snapshot)
}

type Runner struct {
	names    []string
	dwell    time.Duration
	after    func(time.Duration) <-chan time.Time
	metrics  *metrics.Metrics
	onChange func(Snapshot)

	ctl    sync.Mutex // serializa Start/Stop
	mu     sync.Mutex
	run    uint64
	state  Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

func New(stages []string, dwell time.Duration, opts Options) (*Runner, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if opts.After == nil {
		opts.After = time.After
	}
	r := &Runner{
		names:    append([]string(nil), stages...),
		dwell:    dwell,
		after:    opts.After,
		metrics:  opts.Metrics,
		onChange: opts.OnChange,
	}
	r.state = r.fresh(0)
	return r, nil
}

func (r *Runner) fresh(run uint64) Snapshot {
	st := make([]Stage, len(r.names))
	for i, n := range r.names {
		st[i] = Stage{Name: n, Status: Pending}
	}
	return Snapshot{Run: run, Stages: st}
}

// Snapshot retorna una copia del estado actual.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Runner) copyLocked() Snapshot {
	s := r.state
	s.Stages = append([]Stage(nil), r.state.Stages...)
	return s
}

// Start cancela cualquier pasada en curso y arranca una nueva desde cero.
// Retorna el número de pasada.
func (r *Runner) Start(ctx context.Context) uint64 {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.run++
	run := r.run
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.state = r.fresh(run)
	r.state.Running = true

	logger.From(ctx).Debug("simulation started",
		logger.Component("simulator"), logger.Uint64("run", run), logger.Int("stages", len(r.names)))

	go r.loop(runCtx, run, done)
	return run
}

// Stop cancela la pasada en curso y espera a que el loop termine: al
// retornar no hay más mutaciones de estado.
func (r *Runner) Stop() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.stop()
}

func (r *Runner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait bloquea hasta que la pasada run termine o ctx se cancele.
func (r *Runner) Wait(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return r.Snapshot(), nil
	}
	select {
	case <-done:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

// loop es el único scheduler de una pasada: recorre las etapas en orden.
func (r *Runner) loop(ctx context.Context, run uint64, done chan struct{}) {
	defer close(done)

	total := len(r.names)
	for i := 0; i < total; i++ {
		if !r.mutate(run, func(s *Snapshot) { s.Stages[i].Status = Active }) {
			return
		}

		select {
		case <-ctx.Done():
			r.mutate(run, func(s *Snapshot) { s.Running = false })
			r.metrics.SimulatorRun(false)
			return
		case <-r.after(r.dwell):
		}

		if !r.mutate(run, func(s *Snapshot) {
			s.Stages[i].Status = Completed
			s.Progress = (i + 1) * 100 / total
		}) {
			return
		}
	}

	r.mutate(run, func(s *Snapshot) {
		s.Running = false
		s.Done = true
	})
	r.metrics.SimulatorRun(true)
}

// mutate aplica fn sólo si run sigue siendo la pasada vigente.
func (r *Runner) mutate(run uint64, fn func(*Snapshot)) bool {
	r.mu.Lock()
	if r.run != run {
		r.mu.Unlock()
		return false
	}
	fn(&r.state)
	snap := r.copyLocked()
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(snap)
	}
	return true
}
