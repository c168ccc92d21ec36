// Package guard decide qué pantalla ve el usuario a partir de la sesión y la
// clasificación del perfil.
//
// Cada emisión del SessionStore inicia un ciclo nuevo en Loading con un token
// monotónico; los resultados de ciclos que ya no son el último se descartan.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/profile"
	"github.com/dropDatabas3/sentinel/internal/session"
)

// ErrNotInErrorScreen Retry sólo está disponible desde ErrorScreen.
var ErrNotInErrorScreen = errors.New("guard: retry is only available from the error screen")

// SessionSource es la parte del SessionStore que usa el guard.
type SessionSource interface {
	Current() *repository.Session
	Subscribe(l session.Listener) (unsubscribe func())
}

// Classifier clasifica una sesión (profile.Resolver).
type Classifier interface {
	Resolve(ctx context.Context, s *repository.Session) profile.Classification
}

// SignOuter cierra la sesión en el proveedor de identidad.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

type Guard struct {
	sessions SessionSource
	resolver Classifier
	signOut  SignOuter
	metrics  *metrics.Metrics

	mu        sync.Mutex
	state     State
	latest    uint64
	listeners map[int]func(State)
	nextID    int

	emitMu sync.Mutex

	// ciclo de vida de Start/Stop
	runCtx    context.Context
	cancel    context.CancelFunc
	unsub     func()
	inflight  sync.WaitGroup
	startOnce sync.Once
	stopped   bool
}

// New crea un guard en Loading. m puede ser nil.
func New(sessions SessionSource, resolver Classifier, signOut SignOuter, m *metrics.Metrics) *Guard {
	return &Guard{
		sessions:  sessions,
		resolver:  resolver,
		signOut:   signOut,
		metrics:   m,
		state:     State{Screen: Loading},
		listeners: make(map[int]func(State)),
	}
}

// Start se suscribe al SessionStore; cada emisión lanza un ciclo en
// background. La suscripción entrega la sesión actual de inmediato.
func (g *Guard) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		g.runCtx, g.cancel = context.WithCancel(ctx)
		g.unsub = g.sessions.Subscribe(func(s *repository.Session) {
			g.mu.Lock()
			if g.stopped {
				g.mu.Unlock()
				return
			}
			g.inflight.Add(1)
			g.mu.Unlock()

			token := g.begin()
			go func() {
				defer g.inflight.Done()
				g.finish(g.runCtx, token, g.resolver.Resolve(g.runCtx, s))
			}()
		})
	})
}

// Stop se desuscribe, cancela los ciclos en vuelo y espera a que terminen.
func (g *Guard) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()

	if g.unsub != nil {
		g.unsub()
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.inflight.Wait()
}

// Evaluate corre un ciclo completo de forma síncrona para s.
func (g *Guard) Evaluate(ctx context.Context, s *repository.Session) State {
	token := g.begin()
	return g.finish(ctx, token, g.resolver.Resolve(ctx, s))
}

// Refresh re-evalúa la sesión actual (ej: después de un enrollment exitoso).
func (g *Guard) Refresh(ctx context.Context) State {
	return g.Evaluate(ctx, g.sessions.Current())
}

// Retry re-resuelve la sesión actual desde ErrorScreen.
func (g *Guard) Retry(ctx context.Context) (State, error) {
	if g.CurrentScreen() != ErrorScreen {
		return g.State(), ErrNotInErrorScreen
	}
	return g.Refresh(ctx), nil
}

// SignOut cierra la sesión en el proveedor y pasa a Login.
func (g *Guard) SignOut(ctx context.Context) (State, error) {
	if err := g.signOut.SignOut(ctx); err != nil {
		return g.State(), &session.AuthError{Op: "sign_out", Err: err}
	}
	token := g.begin()
	return g.finish(ctx, token, profile.Classification{Kind: profile.Unauthenticated}), nil
}

// begin emite un token nuevo y pasa a Loading.
func (g *Guard) begin() uint64 {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	g.latest++
	token := g.latest
	g.state = State{Screen: Loading, Token: token}
	st, ls := g.state, g.snapshotListeners()
	g.mu.Unlock()

	for _, l := range ls {
		l(st)
	}
	return token
}

// finish aplica el resultado del ciclo token si sigue siendo el último.
func (g *Guard) finish(ctx context.Context, token uint64, c profile.Classification) State {
	log := logger.From(ctx).With(logger.Component("guard"), logger.Token(token))

	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	if token != g.latest {
		cur := g.state
		g.mu.Unlock()
		g.metrics.StaleResolution()
		log.Debug("discarding stale resolution",
			logger.Classification(c.Kind.String()), logger.Uint64("latest", cur.Token))
		return cur
	}
	g.state = State{Screen: ScreenFor(c.Kind), Classification: c, Token: token}
	st, ls := g.state, g.snapshotListeners()
	g.mu.Unlock()

	fields := []logger.Field{logger.Screen(st.Screen.String()), logger.Classification(c.Kind.String())}
	if c.Err != nil {
		fields = append(fields, logger.Err(c.Err))
	}
	log.Info("screen resolved", fields...)

	for _, l := range ls {
		l(st)
	}
	return st
}

func (g *Guard) snapshotListeners() []func(State) {
	ls := make([]func(State), 0, len(g.listeners))
	for i := 0; i < g.nextID; i++ {
		if l, ok := g.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	return ls
}

// State retorna el estado actual.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CurrentScreen retorna la pantalla actual.
func (g *Guard) CurrentScreen() Screen {
	return g.State().Screen
}

// Admit decide qué hacer con un pedido a la zona protegida. Nunca autoriza
// el render mientras la clasificación más reciente no sea Complete.
func (g *Guard) Admit() Decision {
	return Decide(g.State())
}

// Decide es Admit sobre un estado ya leído.
func Decide(st State) Decision {
	switch {
	case st.Screen == Loading:
		return Decision{Action: Wait}
	case st.Classification.Kind == profile.Complete && st.Screen == Dashboard:
		return Decision{Action: Render, Target: Dashboard}
	default:
		return Decision{Action: Redirect, Target: st.Screen}
	}
}

// Subscribe registra l y le entrega el estado actual de inmediato.
// l no debe llamar a métodos del guard que cambien el estado.
func (g *Guard) Subscribe(l func(State)) (unsubscribe func()) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	st := g.state
	g.mu.Unlock()

	l(st)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// AwaitSettled bloquea hasta que el guard salga de Loading o ctx termine.
func (g *Guard) AwaitSettled(ctx context.Context) (State, error) {
	settled := make(chan State, 1)
	unsub := g.Subscribe(func(st State) {
		if st.Screen == Loading {
			return
		}
		select {
		case settled <- st:
		default:
		}
	})
	defer unsub()

	select {
	case st := <-settled:
		return st, nil
	case <-ctx.Done():
		return g.State(), fmt.Errorf("guard: await settled: %w", ctx.Err())
	}
}
