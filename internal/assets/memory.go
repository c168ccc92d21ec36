package assets

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

// Object es un objeto guardado en Memory.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory guarda objetos en un map.
type Memory struct {
	bucket  string
	baseURL string

	mu      sync.RWMutex
	objects map[string]Object
	uploads int
}

func NewMemory(bucket, publicBaseURL string) *Memory {
	return &Memory{bucket: bucket, baseURL: publicBaseURL, objects: make(map[string]Object)}
}

func (m *Memory) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.objects[key] = Object{Data: cp, ContentType: contentType}
	m.uploads++
	m.mu.Unlock()
	return nil
}

func (m *Memory) PublicURL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("assets: %s: %w", key, repository.ErrNotFound)
	}
	return publicURL(m.baseURL, m.bucket, key)
}

// Get retorna el objeto guardado bajo key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}

// Uploads cuenta las llamadas exitosas a Upload (incluye sobrescrituras).
func (m *Memory) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}
