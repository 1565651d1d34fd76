// Package httputil renders JSON responses and application errors.
package httputil

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an ErrorBody. Errors that are not app errors
// become a generic 500 and the cause is only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("internal error", err)
	}
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{"path": r.URL.Path, "method": r.Method}).
			Error("[API] Request failed")
		if e.Code == apperr.CodeInternal {
			e.Message = "internal error"
		}
	}
	WriteJSON(w, status, ErrorBody{Error: e.Code, Message: e.Message, Details: e.Details})
}
