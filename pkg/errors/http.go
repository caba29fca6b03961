package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTP status code mappings, checked in order with errors.Is
var errorStatusCodes = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrNotImplemented, http.StatusNotImplemented},
	{ErrUnavailable, http.StatusServiceUnavailable},
	{ErrCanceled, http.StatusRequestTimeout},
	{ErrPermissionDenied, http.StatusForbidden},
	{ErrTooShort, http.StatusUnprocessableEntity},
	{ErrCaptureIncomplete, http.StatusUnprocessableEntity},
	{ErrRecordingFailed, http.StatusInternalServerError},
	{ErrProcessingFailed, http.StatusBadGateway},
	{ErrTranscriptionFailed, http.StatusBadGateway},
	{ErrSessionBusy, http.StatusConflict},
	{ErrInternalError, http.StatusInternalServerError},
}

// WriteError writes a standardized error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	if err == nil {
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{
			"error": "Unknown error",
		}
	} else if errors.As(err, &serr) {
		statusCode = HTTPStatusFromError(err)
		response = serr.AsJSON()
	} else {
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{
			"error":   err.Error(),
			"kind":    Kind(err),
			"message": UserMessage(err),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, mapping := range errorStatusCodes {
		if errors.Is(err, mapping.err) {
			return mapping.status
		}
	}
	return http.StatusInternalServerError
}
