package stt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	speecherrors "speechcoach/pkg/errors"
)

// Error definitions
var (
	ErrNoProviderAvailable  = errors.New("no speech-to-text provider available")
	ErrProviderNotFound     = errors.New("requested speech-to-text provider not found")
	ErrInitializationFailed = errors.New("provider initialization failed")
)

// Failure reasons carried by TranscriptionError.
const (
	ReasonMissingArtifact = "missing_artifact"
	ReasonRemoteStatus    = "remote_status"
	ReasonTransport       = "transport"
	ReasonDecode          = "decode"
	ReasonNoProvider      = "no_provider"
)

// maxPayload bounds how much of a remote error body is kept.
const maxPayload = 2048

// TranscriptionError is returned for every transcription failure. It matches
// speecherrors.ErrTranscriptionFailed with errors.Is.
type TranscriptionError struct {
	Provider   string
	Reason     string
	StatusCode int
	Payload    string
	Err        error
}

func (e *TranscriptionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transcription failed (%s): %s", e.Provider, e.Reason)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Payload != "" {
		fmt.Fprintf(&b, ": %s", e.Payload)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TranscriptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{speecherrors.ErrTranscriptionFailed}
	}
	return []error{speecherrors.ErrTranscriptionFailed, e.Err}
}

func newTranscriptionError(provider, reason string, err error) *TranscriptionError {
	return &TranscriptionError{Provider: provider, Reason: reason, Err: err}
}

func truncatePayload(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxPayload {
		n := maxPayload
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		return s[:n] + "..."
	}
	return s
}
