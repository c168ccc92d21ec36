// Package session mantiene la sesión de autenticación vigente y la difunde
// a los interesados (RouteGuard, onboarding).
//
// El Store se suscribe al proveedor antes de hacer el fetch inicial, así no
// se pierde ningún cambio. Si un evento del proveedor llega mientras el
// fetch inicial está en vuelo, el evento gana.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// AuthError envuelve fallas del proveedor de identidad.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reporta si err contiene un *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Listener recibe la sesión vigente (nil = sin sesión). Se invoca con las
// emisiones serializadas; no debe llamar a Subscribe.
type Listener func(*repository.Session)

type Store struct {
	provider repository.IdentityProvider
	now      func() time.Time

	mu        sync.Mutex
	current   *repository.Session
	version   uint64 // incrementa con cada evento del proveedor
	err       error
	listeners map[int]Listener
	nextID    int
	closed    bool

	// emitMu serializa las emisiones: cada listener ve los cambios en orden.
	emitMu sync.Mutex

	unsubscribe func()
}

// NewStore se suscribe a los cambios del proveedor y hace exactamente un
// GetSession inicial. Retorna cuando el fetch inicial terminó.
func NewStore(ctx context.Context, provider repository.IdentityProvider) *Store {
	s := &Store{
		provider:  provider,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	s.unsubscribe = provider.OnSessionChange(s.onProviderEvent)

	s.mu.Lock()
	startVersion := s.version
	s.mu.Unlock()

	sess, err := provider.GetSession(ctx)

	s.mu.Lock()
	if s.version != startVersion {
		// Un evento más nuevo ya fijó el estado.
		s.mu.Unlock()
		logger.From(ctx).Debug("initial session fetch superseded by provider event",
			logger.Component("session"))
		return s
	}
	if err != nil {
		s.current = nil
		s.err = &AuthError{Op: "get_session", Err: err}
		logger.From(ctx).Warn("initial session fetch failed",
			logger.Component("session"), logger.Err(err))
	} else {
		s.current = s.live(sess)
	}
	s.mu.Unlock()
	return s
}

func (s *Store) onProviderEvent(ev repository.SessionEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.version++
	cur := s.live(ev.Session)
	s.current = cur
	s.err = nil
	ls := s.snapshotListeners()
	s.mu.Unlock()

	subject := ""
	if cur != nil {
		subject = cur.SubjectID
	}
	logger.L().Debug("session changed",
		logger.Component("session"), logger.String("kind", string(ev.Kind)), logger.SubjectID(subject))

	for _, l := range ls {
		l(cur)
	}
}

// live descarta sesiones ya vencidas.
func (s *Store) live(sess *repository.Session) *repository.Session {
	if sess == nil || sess.Expired(s.now()) {
		return nil
	}
	return sess
}

func (s *Store) snapshotListeners() []Listener {
	ls := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	return ls
}

// Current retorna la sesión vigente (nil = sin sesión o vencida). El
// vencimiento lo emite el proveedor; acá sólo se evita entregar una sesión
// vencida mientras esa emisión no llegó.
func (s *Store) Current() *repository.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(s.current)
}

// Err retorna el diagnóstico del fetch inicial (nil si fue exitoso o si un
// evento posterior lo reemplazó).
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe registra l y le entrega inmediatamente el valor actual.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	cur := s.current
	s.mu.Unlock()

	l(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close se desuscribe del proveedor. Eventos posteriores se ignoran.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = map[int]Listener{}
	s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
