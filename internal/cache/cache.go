// Package cache provee un cliente key/value con soporte multi-backend.
//
// Soporta:
//   - memory (in-process sobre patrickmn/go-cache, default)
//   - redis (go-redis v9, para que la sesión sobreviva reinicios del cliente)
//
// Lo usa el proveedor de identidad local para persistir la sesión vigente y
// las credenciales.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl == 0 significa sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key. No falla si no existe.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error
}

// Config configuración para crear un cliente.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // sólo memory; 0 = sin expiración
}

// ErrNotFound indica que la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente según cfg.Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
