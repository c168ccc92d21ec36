package capture

import (
	"context"
	"errors"
	"fmt"
)

// Errores que un Device debe retornar (o envolver) para que el motivo se
// clasifique correctamente. Cualquier otro error se reporta como Unknown.
var (
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrDeviceNotFound   = errors.New("camera: device not found")
	ErrDeviceBusy       = errors.New("camera: device busy")
)

var (
	// ErrInvalidTransition la acción no aplica al estado actual.
	ErrInvalidTransition = errors.New("capture: invalid transition")

	// ErrClosed el controller ya fue cerrado.
	ErrClosed = errors.New("capture: controller closed")

	// ErrCancelled el intento fue reemplazado por Retake o Close.
	ErrCancelled = errors.New("capture: attempt cancelled")
)

// Reason clasifica un DeviceError.
type Reason string

const (
	PermissionDenied Reason = "permission_denied"
	DeviceNotFound   Reason = "device_not_found"
	DeviceBusy       Reason = "device_busy"
	Unknown          Reason = "unknown"
)

// Hint es la acción sugerida al usuario para cada motivo.
func (r Reason) Hint() string {
	switch r {
	case PermissionDenied:
		return "Please allow camera access to continue with verification."
	case DeviceNotFound:
		return "No camera was found. Connect a camera and try again."
	case DeviceBusy:
		return "The camera is in use by another application. Close it and try again."
	default:
		return "Something went wrong starting the camera. Please try again."
	}
}

// DeviceError es el error expuesto como estado Error(reason).
type DeviceError struct {
	Reason Reason
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Hint atajo a Reason.Hint.
func (e *DeviceError) Hint() string { return e.Reason.Hint() }

// Classify mapea un error de Device a su Reason.
func Classify(err error) Reason {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return DeviceBusy
	default:
		return Unknown
	}
}

func newDeviceError(err error) *DeviceError {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no frame delivered in time: %w", err)
	}
	return &DeviceError{Reason: Classify(err), Err: err}
}
