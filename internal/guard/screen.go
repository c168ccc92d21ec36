package guard

import (
	"fmt"

	"github.com/dropDatabas3/sentinel/internal/profile"
)

// Screen es la pantalla que el usuario debe ver.
type Screen int

const (
	Loading Screen = iota
	Login
	Onboarding
	Dashboard
	ErrorScreen
)

func (s Screen) String() string {
	switch s {
	case Loading:
		return "loading"
	case Login:
		return "login"
	case Onboarding:
		return "onboarding"
	case Dashboard:
		return "dashboard"
	case ErrorScreen:
		return "error"
	default:
		return fmt.Sprintf("screen(%d)", int(s))
	}
}

// ScreenFor mapea una clasificación a su pantalla.
func ScreenFor(k profile.Kind) Screen {
	switch k {
	case profile.Unauthenticated:
		return Login
	case profile.Created, profile.Incomplete:
		return Onboarding
	case profile.Complete:
		return Dashboard
	default:
		return ErrorScreen
	}
}

// State es lo que el guard expone a la capa de presentación.
type State struct {
	Screen         Screen
	Classification profile.Classification
	// Token del ciclo que produjo este estado.
	Token uint64
}

// Action es la decisión para una ruta protegida.
type Action int

const (
	Wait Action = iota
	Render
	Redirect
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision es el resultado de Admit. Target sólo aplica a Redirect.
type Decision struct {
	Action Action
	Target Screen
}
