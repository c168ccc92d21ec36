package repository

import "context"

// AssetRepository es el almacenamiento remoto de imágenes.
type AssetRepository interface {
	// Upload guarda data bajo key. Re-subir la misma key la sobrescribe.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// PublicURL resuelve una URL pública y durable para key.
	PublicURL(ctx context.Context, key string) (string, error)
}
