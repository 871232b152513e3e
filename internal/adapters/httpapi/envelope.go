package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"gibiertrace/internal/auth"
	"gibiertrace/pkg/domain"
)

type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{OK: false, Error: message})
}

// statusFor maps domain and auth errors to HTTP statuses.
func statusFor(err error) int {
	var (
		validation    domain.ValidationError
		authorization domain.AuthorizationError
		notFound      domain.NotFoundError
		conflict      domain.ConflictError
		violation     domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.As(err, &authorization):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &violation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
