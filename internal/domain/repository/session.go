package repository

import (
	"context"
	"time"
)

// Session es la prueba de autenticación vigente: token opaco + sujeto.
// Es propiedad del SessionStore; el resto de componentes la lee.
type Session struct {
	AccessToken string
	SubjectID   string
	Email       string
	ExpiresAt   time.Time
}

// Expired indica si la sesión ya no es válida en now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionEventKind clasifica los cambios empujados por el proveedor.
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
	SessionRefreshed SessionEventKind = "token_refreshed"
	SessionExpired   SessionEventKind = "session_expired"
)

// SessionEvent es una notificación del proveedor. Session es nil en sign-out
// y al expirar.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}

// IdentityProvider es la superficie del proveedor de identidad que consume
// el cliente.
type IdentityProvider interface {
	// GetSession retorna la sesión actual o nil si no hay ninguna.
	GetSession(ctx context.Context) (*Session, error)

	// OnSessionChange registra un listener para cambios de sesión.
	// Retorna la función para desuscribirse.
	OnSessionChange(listener func(SessionEvent)) (unsubscribe func())

	// SignOut destruye la sesión actual.
	SignOut(ctx context.Context) error
}
