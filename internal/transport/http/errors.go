package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-engine-service/internal/domain"
)

type errorPayload struct {
	Message string         `json:"message"`
	Status  int            `json:"status,omitempty"`
	Result  *domain.Result `json:"result,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyPool),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageFor(err error, status int) string {
	switch {
	case errors.Is(err, domain.ErrEmptyPool):
		return domain.ErrEmptyPool.Error()
	case status == http.StatusInternalServerError:
		return "internal error"
	}
	return err.Error()
}

func errorBody(err error) errorPayload {
	status := statusFor(err)
	return errorPayload{Message: messageFor(err, status), Status: status}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody(err)
	writeJSON(w, body.Status, body)
}
