// Package profile clasifica una sesión contra el registro de perfil del
// sujeto: sin sesión, recién creado, incompleto, completo o error.
package profile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Resolver clasifica sesiones. Cada llamada lee el perfil de nuevo; sólo la
// creación ante not-found se comparte entre llamadas concurrentes del mismo
// sujeto.
type Resolver struct {
	repo    repository.ProfileRepository
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewResolver crea un Resolver. m puede ser nil.
func NewResolver(repo repository.ProfileRepository, m *metrics.Metrics) *Resolver {
	return &Resolver{repo: repo, metrics: m}
}

// Resolve ejecuta fetch → (create si no existe) → clasificación, en ese orden.
func (r *Resolver) Resolve(ctx context.Context, s *repository.Session) Classification {
	if s == nil || s.SubjectID == "" {
		c := Classification{Kind: Unauthenticated}
		r.metrics.ObserveResolution(c.Kind.String())
		return c
	}

	c := r.resolve(ctx, s.SubjectID)
	r.metrics.ObserveResolution(c.Kind.String())
	return c
}

func (r *Resolver) resolve(ctx context.Context, subject string) Classification {
	log := logger.From(ctx).With(
		logger.Component("profile"), logger.Op("Resolve"), logger.SubjectID(subject))

	rec, err := r.repo.Get(ctx, subject)
	switch {
	case err == nil:
		return classify(subject, rec)

	case repository.IsNotFound(err):
		v, _, _ := r.group.Do(subject, func() (any, error) {
			return r.create(ctx, log, subject), nil
		})
		return v.(Classification)

	default:
		log.Warn("profile fetch failed", logger.Err(err))
		return failed(subject, classifyErr(err, ProfileFetchErrorKind), err)
	}
}

// create relee antes de crear: otra llamada pudo haber creado el registro
// entre el Get de este caller y su turno en el grupo.
func (r *Resolver) create(ctx context.Context, log *zap.Logger, subject string) Classification {
	rec, err := r.repo.Get(ctx, subject)
	switch {
	case err == nil:
		return classify(subject, rec)
	case !repository.IsNotFound(err):
		log.Warn("profile fetch failed", logger.Err(err))
		return failed(subject, classifyErr(err, ProfileFetchErrorKind), err)
	}

	if err := r.repo.Create(ctx, subject); err != nil {
		log.Warn("profile create failed", logger.Err(err))
		return failed(subject, classifyErr(err, ProfileCreateErrorKind), err)
	}
	log.Info("profile created")
	return Classification{
		Kind:      Created,
		SubjectID: subject,
		Record:    &repository.ProfileRecord{SubjectID: subject},
	}
}

func classify(subject string, rec *repository.ProfileRecord) Classification {
	if rec.Complete() {
		return Classification{Kind: Complete, SubjectID: subject, Record: rec}
	}
	return Classification{Kind: Incomplete, SubjectID: subject, Record: rec}
}

func classifyErr(err error, fallback ErrorKind) ErrorKind {
	if repository.IsUnauthorized(err) {
		return AuthErrorKind
	}
	return fallback
}

func failed(subject string, kind ErrorKind, err error) Classification {
	return Classification{
		Kind:      ResolutionError,
		SubjectID: subject,
		Err:       &Error{Kind: kind, SubjectID: subject, Err: err},
	}
}
