package recorder

import (
	"context"
	"time"
)

// Phase names the lifecycle position of a Session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequesting Phase = "requesting"
	PhaseActive     Phase = "active"
	PhaseStopping   Phase = "stopping"
	PhaseStopped    Phase = "stopped"
)

// Outcome describes how the last session ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSuccess   Outcome = "success"
	OutcomeRecovered Outcome = "recovered"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// CapturedAudio is a finished recording with a readable artifact.
type CapturedAudio struct {
	Location        string `json:"location"`
	DurationSeconds int    `json:"durationSeconds"`
	// Recovered is set when the driver reported a stop error but the artifact was usable.
	Recovered bool `json:"recovered"`
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	Phase          Phase   `json:"phase"`
	ElapsedSeconds int     `json:"elapsedSeconds"`
	Outcome        Outcome `json:"outcome,omitempty"`
}

// state is the single source of truth for a Session. Each variant carries
// only the fields that are meaningful in its phase.
type state interface {
	phase() Phase
}

type idleState struct{}

type requestingState struct{}

type activeState struct {
	handle     Handle
	elapsed    int
	startedAt  time.Time
	stopTicker context.CancelFunc
	generation uint64
}

type stoppingState struct {
	elapsed int
	done    chan struct{}
}

type stoppedState struct {
	elapsed int
	outcome Outcome
}

func (idleState) phase() Phase       { return PhaseIdle }
func (requestingState) phase() Phase { return PhaseRequesting }
func (*activeState) phase() Phase    { return PhaseActive }
func (stoppingState) phase() Phase   { return PhaseStopping }
func (stoppedState) phase() Phase    { return PhaseStopped }

func snapshotOf(s state) Snapshot {
	snap := Snapshot{Phase: s.phase()}
	switch st := s.(type) {
	case *activeState:
		snap.ElapsedSeconds = st.elapsed
	case stoppingState:
		snap.ElapsedSeconds = st.elapsed
	case stoppedState:
		snap.ElapsedSeconds = st.elapsed
		snap.Outcome = st.outcome
	}
	return snap
}
