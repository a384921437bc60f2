// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

var exposeDetails atomic.Bool

// ExposeDetails toggles inclusion of internal error detail in responses.
// It is enabled outside production only.
func ExposeDetails(enabled bool) {
	exposeDetails.Store(enabled)
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to the JSON error envelope.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorBody{Success: false, Code: shared.ErrorCode(err)}

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	if status == http.StatusInternalServerError {
		body.Error = "internal server error"
		if exposeDetails.Load() {
			body.Details = err.Error()
		}
	} else {
		body.Error = err.Error()
	}
	JSON(w, status, body)
}

// Fail writes an error envelope with an explicit status and message.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Success: false, Error: message})
}
