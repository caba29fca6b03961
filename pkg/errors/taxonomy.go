package errors

import "errors"

// Failure kinds reported to users. Each maps to a distinct message.
const (
	KindPermissionDenied  = "PermissionDenied"
	KindTooShort          = "TooShort"
	KindCaptureIncomplete = "CaptureIncomplete"
	KindRecordingFailed   = "RecordingFailed"
	KindProcessingFailed  = "ProcessingFailed"
	KindSessionBusy       = "SessionBusy"
	KindNotFound          = "NotFound"
	KindInvalidInput      = "InvalidInput"
	KindInternal          = "Internal"
)

// userMessager is implemented by errors that carry their own user-facing text.
type userMessager interface {
	UserMessage() string
}

// ordered so that wrapping failures (processing) win over their causes (transcription)
var kinds = []struct {
	sentinel error
	kind     string
	message  string
}{
	{ErrPermissionDenied, KindPermissionDenied, "Microphone access is required to record. Please grant permission and try again."},
	{ErrTooShort, KindTooShort, "Recording must be at least 30 seconds long."},
	{ErrCaptureIncomplete, KindCaptureIncomplete, "The recording could not be saved. Please record again."},
	{ErrRecordingFailed, KindRecordingFailed, "Failed to stop recording properly. Please try again."},
	{ErrProcessingFailed, KindProcessingFailed, "Failed to process your recording. Please try again."},
	{ErrTranscriptionFailed, KindProcessingFailed, "Failed to process your recording. Please try again."},
	{ErrSessionBusy, KindSessionBusy, "A recording is already being prepared. Please wait a moment."},
	{ErrNotFound, KindNotFound, "The requested item could not be found."},
	{ErrInvalidInput, KindInvalidInput, "The request was not valid."},
}

// Kind returns the failure taxonomy name for err.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// UserMessage returns the human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var custom userMessager
	if errors.As(err, &custom) {
		return custom.UserMessage()
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.message
		}
	}
	return "Something went wrong. Please try again."
}
