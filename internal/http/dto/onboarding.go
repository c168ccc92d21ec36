package dto

import "time"

// CameraResponse estado de la cámara.
type CameraResponse struct {
	Phase string       `json:"phase"`
	Error *CameraError `json:"error,omitempty"`
	Frame *FrameInfo   `json:"frame,omitempty"`
}

type CameraError struct {
	Reason string `json:"reason"`
	Hint   string `json:"hint"`
}

type FrameInfo struct {
	ID         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// ProgressResponse progreso del enrollment.
type ProgressResponse struct {
	Percent int            `json:"percent"`
	Stage   string         `json:"stage"`
	Failure *FailureDetail `json:"failure,omitempty"`
}

type FailureDetail struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	RetakeRequired bool   `json:"retake_required"`
}

// SubmitResponse resultado de una submission exitosa.
type SubmitResponse struct {
	Key          string `json:"key"`
	FaceImageRef string `json:"face_image_url"`
	Screen       string `json:"screen"`
}
