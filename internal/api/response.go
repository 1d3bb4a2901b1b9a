package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"medlink/m/internal/apperrors"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondAppError maps err onto a status code. Anything that is not an AppError is a 500.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("unhandled error")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	message := appErr.Message
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
		message = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: message, Fields: appErr.Fields})
}

func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// floatParam reads an optional float query parameter.
func floatParam(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.ValidationFields("validation failed", map[string]string{name: name + " must be a number"})
	}
	return &v, nil
}

// intParam reads an optional integer query parameter, returning 0 when absent.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationFields("validation failed", map[string]string{name: name + " must be an integer"})
	}
	return v, nil
}

func idParam(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("invalid id")
	}
	return id, nil
}

func validationRequired(fields ...string) error {
	messages := make(map[string]string, len(fields))
	for _, f := range fields {
		messages[f] = f + " is required"
	}
	return apperrors.ValidationFields("validation failed", messages)
}
