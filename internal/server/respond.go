package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alejandrodnm/surebet/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// respondFault traduce el tipo de fallo a status HTTP. Los errores internos
// no exponen el detalle.
func respondFault(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, domain.ErrArithmetic) {
		msg = "internal error"
	}
	respondError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIntegrity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
