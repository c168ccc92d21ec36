// Package dto define los cuerpos de request/response de la API.
package dto

import "time"

// CredentialsRequest body de signup/signin.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse sesión activa (sin el token).
type SessionResponse struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Screen    string    `json:"screen"`
}
