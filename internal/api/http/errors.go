package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
)

type ErrorResponse struct {
	Error         string            `json:"error"`
	Details       string            `json:"details,omitempty"`
	Field         string            `json:"field,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	CurrentStatus string            `json:"current_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
// message is used for failures the caller cannot act on.
func writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var validationErr *domain.ValidationError
	var stateErr *domain.StateError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request",
			Details: validationErr.Message,
			Field:   validationErr.Field,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         "invalid state transition",
			Details:       stateErr.Error(),
			CurrentStatus: string(stateErr.Current),
		})
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, "reconciliation run already in progress", nil)
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid state", err)
	default:
		logger.Error(message, "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

// writeBindError reports a malformed body or failed DTO validation.
func writeBindError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, ve := range verrs {
			fields[ve.Field()] = ve.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Fields: fields})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body", err)
}
