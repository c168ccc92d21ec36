package dto

import "time"

// HealthResponse respuesta de /readyz.
type HealthResponse struct {
	Status     string            `json:"status"` // ready | unavailable
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}
