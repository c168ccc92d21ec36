package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

type profileRepo struct{ pool *pgxpool.Pool }

func (r *profileRepo) Get(ctx context.Context, subjectID string) (*repository.ProfileRecord, error) {
	const query = `
		SELECT subject_id, created_at,
		       COALESCE(x_username, ''), COALESCE(instagram_username, ''),
		       COALESCE(linkedin_url, ''), COALESCE(face_image_url, '')
		FROM user_profile WHERE subject_id = $1
	`
	var p repository.ProfileRecord
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&p.SubjectID, &p.CreatedAt,
		&p.Social.X, &p.Social.Instagram, &p.Social.LinkedIn, &p.FaceImageRef,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserta un registro vacío. Un insert concurrente para el mismo
// sujeto no duplica ni falla.
func (r *profileRepo) Create(ctx context.Context, subjectID string) error {
	if strings.TrimSpace(subjectID) == "" {
		return repository.ErrInvalidInput
	}
	const query = `
		INSERT INTO user_profile (subject_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (subject_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, subjectID)
	return err
}

func (r *profileRepo) Update(ctx context.Context, subjectID string, in repository.UpdateProfileInput) error {
	s := in.Social.Normalize()
	const query = `
		UPDATE user_profile
		SET x_username = $2, instagram_username = $3, linkedin_url = $4,
		    face_image_url = $5, updated_at = NOW()
		WHERE subject_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, subjectID,
		nullIfEmpty(s.X), nullIfEmpty(s.Instagram), nullIfEmpty(s.LinkedIn),
		nullIfEmpty(in.FaceImageRef),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}
