package repository

import (
	"context"
	"strings"
	"time"
)

// SocialHandles agrupa los handles sociales opcionales ("" = ausente).
type SocialHandles struct {
	X         string
	Instagram string
	LinkedIn  string
}

// Normalize recorta espacios y quita el "@" inicial del handle de X.
func (h SocialHandles) Normalize() SocialHandles {
	return SocialHandles{
		X:         strings.TrimPrefix(strings.TrimSpace(h.X), "@"),
		Instagram: strings.TrimSpace(h.Instagram),
		LinkedIn:  strings.TrimSpace(h.LinkedIn),
	}
}

// ProfileRecord es el registro durable por sujeto.
type ProfileRecord struct {
	SubjectID    string
	CreatedAt    time.Time
	Social       SocialHandles
	FaceImageRef string
}

// Complete es true sólo si hay una referencia de imagen facial no vacía.
// Los handles sociales no influyen en la completitud.
func (p *ProfileRecord) Complete() bool {
	return p != nil && strings.TrimSpace(p.FaceImageRef) != ""
}

// UpdateProfileInput contiene los campos que finaliza el onboarding.
type UpdateProfileInput struct {
	Social       SocialHandles
	FaceImageRef string
}

// ProfileRepository define operaciones sobre ProfileRecord.
type ProfileRepository interface {
	// Get busca el registro del sujeto. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, subjectID string) (*ProfileRecord, error)

	// Create crea un registro vacío con semántica upsert: si ya existe no
	// hace nada y no falla.
	Create(ctx context.Context, subjectID string) error

	// Update reemplaza handles y referencia facial. Es idempotente.
	// Retorna ErrNotFound si el registro no existe.
	Update(ctx context.Context, subjectID string, input UpdateProfileInput) error
}
