package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternalError  = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
	ErrUnavailable    = errors.New("service unavailable")
	ErrCanceled       = errors.New("operation canceled")

	// Recording and processing failures surfaced to the user
	ErrPermissionDenied    = errors.New("microphone permission denied")
	ErrTooShort            = errors.New("recording too short")
	ErrCaptureIncomplete   = errors.New("capture incomplete")
	ErrRecordingFailed     = errors.New("recording failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrProcessingFailed    = errors.New("processing failed")
	ErrSessionBusy         = errors.New("recording session busy")
)

// Error represents a structured error with stack trace and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   firstFields(fields),
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: err,
		message:  message,
		fields:   firstFields(fields),
		file:     file,
		line:     line,
	}
}

// Wrapf wraps err with a sentinel so that errors.Is matches both the sentinel
// and the underlying cause.
func Wrapf(sentinel error, cause error, format string, args ...interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	original := sentinel
	if cause != nil {
		original = &joined{sentinel: sentinel, cause: cause}
	}

	return &Error{
		original: original,
		message:  fmt.Sprintf(format, args...),
		fields:   make(map[string]interface{}),
		file:     file,
		line:     line,
		Code:     codeFor(sentinel),
	}
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 && fields[0] != nil {
		return fields[0]
	}
	return make(map[string]interface{})
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	return e.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}

	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	return &Error{
		original: e.original,
		message:  e.message,
		fields:   e.fields,
		file:     e.file,
		line:     e.line,
		Code:     code,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether any error in err's tree matches target.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"kind":     Kind(e),
		"message":  UserMessage(e),
		"location": e.Location(),
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["context"] = e.fields
	}

	return result
}

// joined lets a sentinel and a cause both participate in errors.Is/As.
type joined struct {
	sentinel error
	cause    error
}

func (j *joined) Error() string {
	return fmt.Sprintf("%v: %v", j.sentinel, j.cause)
}

func (j *joined) Unwrap() []error {
	return []error{j.sentinel, j.cause}
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrNotFound,
		message:  message,
		fields:   firstFields(fields),
		file:     file,
		line:     line,
		Code:     "NOT_FOUND",
	}
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrInvalidInput,
		message:  message,
		fields:   firstFields(fields),
		file:     file,
		line:     line,
		Code:     "INVALID_INPUT",
	}
}

// NewEntryNotFound creates a not-found error for a history entry id
func NewEntryNotFound(id string) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrNotFound,
		message:  fmt.Sprintf("history entry not found: %s", id),
		fields:   map[string]interface{}{"entry_id": id},
		file:     file,
		line:     line,
		Code:     "NOT_FOUND",
	}
}

func codeFor(sentinel error) string {
	switch sentinel {
	case ErrPermissionDenied:
		return "PERMISSION_DENIED"
	case ErrTooShort:
		return "TOO_SHORT"
	case ErrCaptureIncomplete:
		return "CAPTURE_INCOMPLETE"
	case ErrRecordingFailed:
		return "RECORDING_FAILED"
	case ErrTranscriptionFailed:
		return "TRANSCRIPTION_FAILED"
	case ErrProcessingFailed:
		return "PROCESSING_FAILED"
	case ErrSessionBusy:
		return "SESSION_BUSY"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrInvalidInput:
		return "INVALID_INPUT"
	default:
		return ""
	}
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
