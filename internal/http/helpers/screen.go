package helpers

import (
	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/http/dto"
)

// ScreenPath es la ruta de la API que sirve cada pantalla.
func ScreenPath(s guard.Screen) string {
	switch s {
	case guard.Login:
		return "/v1/auth/signin"
	case guard.Onboarding:
		return "/v1/onboarding/camera"
	case guard.Dashboard:
		return "/v1/dashboard"
	default:
		return "/v1/screen"
	}
}

// ScreenResponse arma el DTO del estado del guard. El error de resolución
// sólo se expone en la pantalla de error.
func ScreenResponse(st guard.State) dto.ScreenResponse {
	resp := dto.ScreenResponse{
		Screen:         st.Screen.String(),
		Classification: st.Classification.Kind.String(),
		SubjectID:      st.Classification.SubjectID,
	}
	if st.Screen == guard.Loading {
		resp.Classification = ""
	}
	if st.Screen == guard.ErrorScreen {
		msg := "profile could not be resolved"
		if st.Classification.Err != nil {
			msg = st.Classification.Err.Error()
		}
		resp.Error = &dto.ScreenError{Reason: string(st.Classification.Reason()), Message: msg}
	}
	return resp
}
