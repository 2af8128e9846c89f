package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ENVELOPE:
// Every mutation and every error uses the same shape:
//   {"success": true,  "message": "Customer added successfully", ...payload}
//   {"success": false, "error": "not_found", "message": "Customer not found"}
//
// The UI shows `message` verbatim, so messages are written for people.
// List endpoints are the exception: they return a bare JSON array.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/billing-tracker/internal/apperror"
)

// msgServerError is the only text a client ever sees for an unexpected failure.
const msgServerError = "Server error"

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the envelope for mutations without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(message string) MessageResponse {
	return MessageResponse{Success: true, Message: message}
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode writes,
// the headers are sent and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and machine-readable kind.
//
// errors.Is walks the whole chain, so a repository error wrapped by the
// service with fmt.Errorf("...: %w", err) still matches its sentinel.
// Conflicts are reported as 400, like every other rejected input.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError sends the error envelope for err.
//
// NEVER expose internal error details to the client: the raw message of an
// unexpected error might contain SQL, file paths or hostnames. Those are
// logged and the client gets msgServerError.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := errorStatus(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: msgServerError,
		})
		return
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
}
