// Package gate decides whether a captured recording is long enough to process.
package gate

import (
	"fmt"

	"speechcoach/pkg/errors"
)

// DefaultMinSeconds is the shortest recording admitted for processing.
const DefaultMinSeconds = 30

// Verdict is the outcome of a gate check.
type Verdict int

const (
	Proceed Verdict = iota
	Reject
)

func (v Verdict) String() string {
	if v == Proceed {
		return "proceed"
	}
	return "too_short"
}

// Decision is the gate's answer for one duration. Err is set only on Reject.
type Decision struct {
	Verdict Verdict
	Err     error
}

// Gate admits recordings of at least MinSeconds.
type Gate struct {
	MinSeconds int
}

// New returns a gate with the given minimum; non-positive values use the default.
func New(minSeconds int) Gate {
	if minSeconds <= 0 {
		minSeconds = DefaultMinSeconds
	}
	return Gate{MinSeconds: minSeconds}
}

// Decide returns Proceed iff durationSeconds >= MinSeconds.
func (g Gate) Decide(durationSeconds int) Decision {
	if g.Admits(durationSeconds) {
		return Decision{Verdict: Proceed}
	}
	return Decision{
		Verdict: Reject,
		Err:     &TooShortError{DurationSeconds: durationSeconds, MinSeconds: g.min()},
	}
}

// Admits reports whether durationSeconds passes the gate.
func (g Gate) Admits(durationSeconds int) bool {
	return durationSeconds >= g.min()
}

func (g Gate) min() int {
	if g.MinSeconds <= 0 {
		return DefaultMinSeconds
	}
	return g.MinSeconds
}

// Decide applies the default gate.
func Decide(durationSeconds int) Decision {
	return New(DefaultMinSeconds).Decide(durationSeconds)
}

// TooShortError reports a recording below the minimum duration.
type TooShortError struct {
	DurationSeconds int
	MinSeconds      int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("recording too short: %ds < %ds", e.DurationSeconds, e.MinSeconds)
}

// UserMessage names the minimum duration.
func (e *TooShortError) UserMessage() string {
	return fmt.Sprintf("Recording must be at least %d seconds long.", e.MinSeconds)
}

func (e *TooShortError) Is(target error) bool {
	return target == errors.ErrTooShort
}
