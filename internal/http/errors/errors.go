package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// FromError convierte err en *AppError. Los errores de dominio conocidos
// se mapean por sentinel; el resto es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case repository.IsUnauthorized(err):
		return ErrUnauthorized.WithDetail(err.Error()).WithCause(err)
	case repository.IsNotFound(err):
		return ErrNotFound.WithCause(err)
	case repository.IsConflict(err):
		return ErrConflict.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return ErrValidation.WithDetail(err.Error()).WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// WriteError escribe err como JSON. Los 5xx se loguean con la causa.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)
	if appErr.HTTPStatus >= 500 && r != nil {
		logger.From(r.Context()).Error("request failed",
			logger.String("code", appErr.Code), logger.Err(appErr.Err))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}
