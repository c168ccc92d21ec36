package profile

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

// Kind es el resultado de clasificar (sesión, perfil).
type Kind int

const (
	Unauthenticated Kind = iota
	Created              // no había registro; se creó uno vacío
	Incomplete
	Complete
	ResolutionError
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Created:
		return "created"
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	case ResolutionError:
		return "resolution_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NeedsOnboarding es true para Created e Incomplete.
func (k Kind) NeedsOnboarding() bool { return k == Created || k == Incomplete }

// Classification es derivada, nunca se persiste.
type Classification struct {
	Kind      Kind
	SubjectID string
	Record    *repository.ProfileRecord // nil para Unauthenticated/ResolutionError
	Err       error                     // sólo para ResolutionError
}

// ErrorKind identifica la causa de un ResolutionError.
type ErrorKind string

const (
	AuthErrorKind          ErrorKind = "auth_error"
	ProfileFetchErrorKind  ErrorKind = "profile_fetch_error"
	ProfileCreateErrorKind ErrorKind = "profile_create_error"
)

// Error es la causa tipada de un ResolutionError.
type Error struct {
	Kind      ErrorKind
	SubjectID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("profile: %s (subject=%s): %v", e.Kind, e.SubjectID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason retorna el ErrorKind de un ResolutionError ("" si no aplica).
func (c Classification) Reason() ErrorKind {
	var pe *Error
	if errors.As(c.Err, &pe) {
		return pe.Kind
	}
	return ""
}
