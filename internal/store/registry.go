// Package store provee el registry de adaptadores de almacenamiento de perfiles.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

// Adapter representa un adaptador capaz de abrir conexiones al almacenamiento.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "postgres", "memory").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error)
}

// AdapterConnection representa una conexión activa.
type AdapterConnection interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	// Profiles retorna el repositorio de ProfileRecord.
	Profiles() repository.ProfileRepository
}

// MigratableConnection interfaz opcional para conexiones que pueden ejecutar
// migraciones de schema (postgres).
type MigratableConnection interface {
	Migrate(ctx context.Context) (applied []string, err error)
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "postgres", "memory"
	Name string

	// DSN connection string (para DBs)
	DSN string

	// Pool settings (para DBs)
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
	aliases    = map[string]string{"pg": "postgres"}
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre (acepta alias como "pg").
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres de todos los adapters registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAdapter abre una conexión usando el adapter especificado en la config.
func OpenAdapter(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered", cfg.Name)
	}
	return a.Connect(ctx, cfg)
}
