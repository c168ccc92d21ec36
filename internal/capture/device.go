package capture

import (
	"context"
	"image"
)

// Stream es un handle exclusivo sobre el dispositivo.
type Stream interface {
	ID() string
}

// Device es el dispositivo de captura. Las implementaciones deben ser seguras
// para uso concurrente y Release debe ser idempotente.
type Device interface {
	// Acquire obtiene un stream exclusivo.
	Acquire(ctx context.Context) (Stream, error)

	// WaitFrame bloquea hasta que el stream entregó al menos un frame.
	WaitFrame(ctx context.Context, s Stream) error

	// Sample retorna el frame actual del stream.
	Sample(s Stream) (image.Image, error)

	// Release libera el stream.
	Release(s Stream) error
}
