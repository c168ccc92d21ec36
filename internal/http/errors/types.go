// Package errors define el formato de error de la API HTTP y el mapeo de
// errores de dominio a status codes.
package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error estándar de la API.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, sólo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail retorna una copia con detail.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Detail = detail
	return &c
}

// WithCause retorna una copia con la causa.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

func newErr(status int, code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: status}
}

// 4xx
var (
	ErrBadRequest         = newErr(http.StatusBadRequest, "BAD_REQUEST", "The request is malformed or missing parameters.")
	ErrInvalidJSON        = newErr(http.StatusBadRequest, "INVALID_JSON", "The request body is not valid JSON.")
	ErrUnsupportedMedia   = newErr(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json.")
	ErrBodyTooLarge       = newErr(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "The request body is too large.")
	ErrUnauthorized       = newErr(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required.")
	ErrInvalidCredentials = newErr(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.")
	ErrNotFound           = newErr(http.StatusNotFound, "NOT_FOUND", "The requested resource was not found.")
	ErrMethodNotAllowed   = newErr(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed for this resource.")
	ErrConflict           = newErr(http.StatusConflict, "CONFLICT", "The request conflicts with the current state.")
	ErrValidation         = newErr(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "One or more fields are invalid.")
	ErrTooManyRequests    = newErr(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many attempts, try again later.")
)

// 5xx
var (
	ErrInternalServerError = newErr(http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred.")
	ErrBadGateway          = newErr(http.StatusBadGateway, "UPSTREAM_ERROR", "An upstream dependency failed.")
	ErrServiceUnavailable  = newErr(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The service is temporarily unavailable.")
)
