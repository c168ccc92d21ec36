package assets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FS guarda cada objeto como archivo en {root}/{bucket}/{key}.
type FS struct {
	root    string
	bucket  string
	baseURL string
}

// NewFS crea el directorio del bucket si no existe.
func NewFS(root, bucket, publicBaseURL string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("assets: fs root is empty")
	}
	if err := validateKey(bucket); err != nil {
		return nil, fmt.Errorf("assets: bucket %q: %w", bucket, err)
	}
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("assets: mkdir bucket: %w", err)
	}
	return &FS{root: root, bucket: bucket, baseURL: publicBaseURL}, nil
}

func (s *FS) Upload(ctx context.Context, key string, data []byte, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.root, s.bucket, key), data, 0o644)
}

func (s *FS) PublicURL(_ context.Context, key string) (string, error) {
	if _, err := os.Stat(filepath.Join(s.root, s.bucket, key)); err != nil {
		if validateKey(key) != nil {
			return "", ErrInvalidKey
		}
		return "", fmt.Errorf("assets: stat %s: %w", key, err)
	}
	return publicURL(s.baseURL, s.bucket, key)
}

// Handler sirve los objetos del root; se monta bajo el prefijo de
// public_base_url (ej: /assets/). Sólo responde /{bucket}/{key}: nada de
// listados de directorio ni temporales.
func (s *FS) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.servable(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *FS) servable(urlPath string) bool {
	if strings.HasSuffix(urlPath, "/") {
		return false
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(path.Clean("/"+urlPath), "/"), "/")
	if !ok || bucket != s.bucket || strings.HasPrefix(key, ".") {
		return false
	}
	return validateKey(key) == nil
}

// writeFileAtomic escribe a un temporal del mismo directorio y renombra,
// así un lector nunca ve un objeto a medio escribir.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("assets: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("assets: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("assets: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("assets: close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, perm)

	// En Windows rename falla si el destino existe.
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("assets: rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}
