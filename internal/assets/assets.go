// Package assets implementa AssetRepository: el bucket donde se suben las
// fotos de enrollment y la resolución de su URL pública.
//
// Drivers:
//   - fs: un directorio por bucket en disco, servido por la API bajo /assets/
//   - memory: map in-process (dev/tests)
//
// Los uploads son upsert: subir de nuevo una key la sobrescribe.
package assets

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

// ErrInvalidKey indica una key vacía o que intenta salir del bucket.
var ErrInvalidKey = fmt.Errorf("assets: invalid key: %w", repository.ErrInvalidInput)

// Config parámetros comunes de los drivers.
type Config struct {
	Driver        string // fs | memory
	Root          string // directorio raíz (fs)
	Bucket        string
	PublicBaseURL string
}

// New crea el repositorio según cfg.Driver.
func New(cfg Config) (repository.AssetRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "fs", "":
		return NewFS(cfg.Root, cfg.Bucket, cfg.PublicBaseURL)
	case "memory":
		return NewMemory(cfg.Bucket, cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("assets: unknown driver %q", cfg.Driver)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return ErrInvalidKey
	}
	return nil
}

// publicURL arma {base}/{bucket}/{key} escapando la key.
func publicURL(base, bucket, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("assets: public base url not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("assets: public base url: %w", err)
	}
	u.Path = path.Join(u.Path, bucket, key)
	return u.String(), nil
}
