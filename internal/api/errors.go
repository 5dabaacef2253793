package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeTransferFault  = "transfer_fault"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDeviceError maps a chardev error onto an HTTP status.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chardev.ErrOutOfRange):
		writeNotFound(w, err.Error())
	case errors.Is(err, chardev.ErrHandleReleased):
		writeNotFound(w, "handle released")
	case errors.Is(err, chardev.ErrUnavailable), errors.Is(err, chardev.ErrNotInitialized):
		writeUnavailable(w, err.Error())
	case errors.Is(err, chardev.ErrTransferFault):
		writeError(w, http.StatusBadRequest, ErrCodeTransferFault, err.Error())
	default:
		writeInternalError(w, "device operation failed")
	}
}
