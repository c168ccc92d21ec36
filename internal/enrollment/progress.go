package enrollment

import (
	"errors"
	"fmt"
)

// Stage es la etapa de una submission.
type Stage string

const (
	Idle           Stage = "idle"
	Encoding       Stage = "encoding"
	Uploading      Stage = "uploading"
	LinkingProfile Stage = "linking_profile"
	Done           Stage = "done"
	Failed         Stage = "failed"
)

// Porcentaje alcanzado al completar cada etapa.
const (
	encodedPercent  = 20
	uploadedPercent = 60
	linkedPercent   = 80
	donePercent     = 100
)

// Progress es el UploadState observable.
type Progress struct {
	Percent int
	Stage   Stage
	Failure *Failure // sólo en Failed
}

// FailureKind identifica en qué paso falló la submission.
type FailureKind string

const (
	EncodeError        FailureKind = "encode_error"
	UploadError        FailureKind = "upload_error"
	LinkError          FailureKind = "link_error"
	ProfileUpdateError FailureKind = "profile_update_error"
)

// Failure describe una submission fallida.
type Failure struct {
	Kind FailureKind
	Err  error
	// RetakeRequired es true cuando la foto misma no sirve y hay que volver
	// a capturar; false cuando alcanza con reenviar.
	RetakeRequired bool
}

func (f *Failure) Error() string { return fmt.Sprintf("enrollment: %s: %v", f.Kind, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extrae un *Failure de err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
