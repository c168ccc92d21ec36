// Package helpers utilidades compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
)

const maxBody = 1 << 20

// ReadJSON decodifica el body (tolerante a campos desconocidos, límite 1MB).
// Retorna false si ya escribió la respuesta de error.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		httperrors.WriteError(w, r, httperrors.ErrUnsupportedMedia)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, r, httperrors.ErrBodyTooLarge)
			return false
		}
		httperrors.WriteError(w, r, httperrors.ErrInvalidJSON.WithDetail(err.Error()))
		return false
	}
	return true
}

// WriteJSON escribe v con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
