package dto

import "time"

// ScreenResponse estado del guard.
type ScreenResponse struct {
	Screen         string `json:"screen"`
	Classification string `json:"classification"`
	SubjectID      string `json:"subject_id,omitempty"`
	// Error sólo en la pantalla de error.
	Error *ScreenError `json:"error,omitempty"`
}

type ScreenError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// SocialHandles versión JSON de repository.SocialHandles.
type SocialHandles struct {
	X         string `json:"x,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
}

// DashboardResponse resumen del perfil completo.
type DashboardResponse struct {
	SubjectID    string        `json:"subject_id"`
	CreatedAt    time.Time     `json:"created_at"`
	FaceImageRef string        `json:"face_image_url"`
	Social       SocialHandles `json:"social"`
}

// PendingResponse mientras el guard está en Loading.
type PendingResponse struct {
	Screen string `json:"screen"`
}
