// Package memory implementa un adapter in-process para ProfileRecord.
// Pensado para dev y tests; los datos no sobreviven al proceso.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	store "github.com/dropDatabas3/sentinel/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(_ context.Context, _ store.AdapterConfig) (store.AdapterConnection, error) {
	return &memoryConnection{profiles: NewProfileRepository()}, nil
}

type memoryConnection struct {
	profiles *ProfileRepository
}

func (c *memoryConnection) Name() string                           { return "memory" }
func (c *memoryConnection) Ping(context.Context) error             { return nil }
func (c *memoryConnection) Close() error                           { return nil }
func (c *memoryConnection) Profiles() repository.ProfileRepository { return c.profiles }

// ProfileRepository guarda perfiles en un map protegido por mutex.
type ProfileRepository struct {
	mu   sync.RWMutex
	rows map[string]repository.ProfileRecord
	now  func() time.Time
}

// NewProfileRepository crea un repositorio vacío.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		rows: make(map[string]repository.ProfileRecord),
		now:  time.Now,
	}
}

func (r *ProfileRepository) Get(ctx context.Context, subjectID string) (*repository.ProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[subjectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *ProfileRepository) Create(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(subjectID) == "" {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[subjectID]; ok {
		return nil
	}
	r.rows[subjectID] = repository.ProfileRecord{SubjectID: subjectID, CreatedAt: r.now().UTC()}
	return nil
}

func (r *ProfileRepository) Update(ctx context.Context, subjectID string, in repository.UpdateProfileInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[subjectID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Social = in.Social.Normalize()
	rec.FaceImageRef = strings.TrimSpace(in.FaceImageRef)
	r.rows[subjectID] = rec
	return nil
}

// Len retorna la cantidad de perfiles guardados.
func (r *ProfileRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
