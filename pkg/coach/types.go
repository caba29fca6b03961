package coach

import (
	"context"

	"speechcoach/pkg/history"
	"speechcoach/pkg/recorder"
)

// State is the user-visible controller state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateProcessing State = "processing"
)

// Reason explains a state change.
type Reason string

const (
	ReasonRecordingStarted   Reason = "recording_started"
	ReasonRecordingRestarted Reason = "recording_restarted"
	ReasonRecordingStopped   Reason = "recording_stopped"
	ReasonAutoStopped        Reason = "max_duration_reached"
	ReasonTranscribing       Reason = "transcribing"
	ReasonEntryCreated       Reason = "entry_created"
	ReasonRecordingDiscarded Reason = "recording_discarded"
	ReasonFailed             Reason = "failed"
)

// Status is a point-in-time view of the controller.
type Status struct {
	State          State            `json:"state"`
	Phase          recorder.Phase   `json:"phase"`
	ElapsedSeconds int              `json:"elapsedSeconds"`
	MaxSeconds     int              `json:"maxSeconds"`
	Processing     bool             `json:"processing"`
	LastOutcome    recorder.Outcome `json:"lastOutcome,omitempty"`
}

// EventSink receives controller notifications. Implementations must not block.
type EventSink interface {
	StateChanged(state State, reason Reason)
	Elapsed(seconds, maxSeconds int)
	EntryCreated(entry history.Entry)
	Failure(kind, message string)
}

// Recorder is the recording session the controller drives.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*recorder.CapturedAudio, error)
	Abort(ctx context.Context) error
	Reset()
	Snapshot() recorder.Snapshot
	MaxDurationSeconds() int
}

// Processor turns a captured recording into a history entry.
type Processor interface {
	Process(ctx context.Context, location string, durationSeconds int) (history.Entry, error)
	Processing() bool
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StateChanged(State, Reason) {}
func (NopSink) Elapsed(int, int)           {}
func (NopSink) EntryCreated(history.Entry) {}
func (NopSink) Failure(string, string)     {}

// MultiSink fans events out to several sinks.
type MultiSink []EventSink

func (m MultiSink) StateChanged(state State, reason Reason) {
	for _, s := range m {
		s.StateChanged(state, reason)
	}
}

func (m MultiSink) Elapsed(seconds, maxSeconds int) {
	for _, s := range m {
		s.Elapsed(seconds, maxSeconds)
	}
}

func (m MultiSink) EntryCreated(entry history.Entry) {
	for _, s := range m {
		s.EntryCreated(entry)
	}
}

func (m MultiSink) Failure(kind, message string) {
	for _, s := range m {
		s.Failure(kind, message)
	}
}
