package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/dispatch/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string `json:"error" validate:"required"`
	Kind   string `json:"kind,omitempty" example:"precondition"`
	Step   string `json:"step,omitempty" example:"preflight"`
	Output string `json:"output,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error to an HTTP status. ErrNotFound is checked first
// because not-found errors are also classified as input errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrIntegrity):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExternalTool):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its classification. Unclassified errors are
// logged and reported as "internal error".
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("api: "+op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	body := errorBody(err.Error())
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body = errResponse{Error: err.Error(), Kind: ae.Kind.String(), Step: ae.Step, Output: ae.Output}
	}
	writeJSON(w, status, body)
}
