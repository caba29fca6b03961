// Package recorder owns the microphone recording lifecycle: permission,
// capture start, the elapsed-time ticker, auto-stop at the ceiling and
// teardown into a CapturedAudio.
package recorder

import (
	"context"
	"sync"
	"time"

	"speechcoach/pkg/errors"
	"speechcoach/pkg/gate"
	"speechcoach/pkg/metrics"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxDurationSeconds is the ceiling at which a session stops itself.
	DefaultMaxDurationSeconds = 60
	// DefaultTickInterval is the elapsed-time resolution.
	DefaultTickInterval = time.Second
)

// Device starts microphone captures.
type Device interface {
	Start(ctx context.Context) (Handle, error)
}

// Handle is one in-progress capture owned exclusively by a Session.
type Handle interface {
	// Stop ends the capture and finalizes the artifact.
	Stop(ctx context.Context) error
	// Location reports the artifact location if one was written.
	Location() (string, bool)
	// Discard removes the artifact.
	Discard() error
}

// AutoStopHandler receives the result of a session that stopped at its ceiling.
type AutoStopHandler func(audio *CapturedAudio, err error)

// Options tune a Session.
type Options struct {
	MaxDurationSeconds int
	TickInterval       time.Duration
	// Gate decides whether a recovered artifact is long enough to keep.
	Gate       gate.Gate
	OnAutoStop AutoStopHandler
	// OnTick is called after each elapsed-second increment.
	OnTick func(elapsedSeconds int)
}

// Session is a single-microphone recording session. All methods are safe for
// concurrent use.
type Session struct {
	logger      *logrus.Logger
	device      Device
	permissions PermissionProvider

	maxDuration  int
	tickInterval time.Duration
	gate         gate.Gate
	onAutoStop   AutoStopHandler
	onTick       func(int)

	mu         sync.Mutex
	state      state
	generation uint64
}

// NewSession creates an idle session.
func NewSession(device Device, permissions PermissionProvider, logger *logrus.Logger, opts Options) *Session {
	if opts.MaxDurationSeconds <= 0 {
		opts.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Session{
		logger:       logger,
		device:       device,
		permissions:  permissions,
		maxDuration:  opts.MaxDurationSeconds,
		tickInterval: opts.TickInterval,
		gate:         opts.Gate,
		onAutoStop:   opts.OnAutoStop,
		onTick:       opts.OnTick,
		state:        idleState{},
	}
}

// Snapshot returns the current phase, elapsed seconds and last outcome.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotOf(s.state)
}

// MaxDurationSeconds returns the auto-stop ceiling.
func (s *Session) MaxDurationSeconds() int {
	return s.maxDuration
}

// Start begins a new capture. An active session is aborted first and a
// session that is tearing down is waited for.
func (s *Session) Start(ctx context.Context) error {
	if err := s.claim(ctx); err != nil {
		return err
	}

	if err := s.ensurePermission(ctx); err != nil {
		s.setState(idleState{})
		return err
	}

	handle, err := s.device.Start(ctx)
	if err != nil {
		s.setState(idleState{})
		return errors.Wrapf(errors.ErrRecordingFailed, err, "failed to start capture")
	}

	tickCtx, stopTicker := context.WithCancel(context.Background())

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = &activeState{
		handle:     handle,
		startedAt:  time.Now(),
		stopTicker: stopTicker,
		generation: gen,
	}
	s.mu.Unlock()

	go s.runTicker(tickCtx, gen)

	metrics.SetRecordingActive(true)
	s.logger.WithField("max_duration", s.maxDuration).Info("Recording started")
	return nil
}

// claim moves the session into Requesting, clearing whatever came before.
func (s *Session) claim(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch st := s.state.(type) {
		case requestingState:
			s.mu.Unlock()
			return errors.Wrapf(errors.ErrSessionBusy, nil, "a recording is already starting")

		case *activeState:
			s.mu.Unlock()
			s.logger.Info("Recording restarted; discarding the active session")
			if err := s.Abort(ctx); err != nil {
				s.logger.WithError(err).Warn("Failed to abort previous recording cleanly")
			}
			continue

		case stoppingState:
			s.mu.Unlock()
			select {
			case <-st.done:
				continue
			case <-ctx.Done():
				return errors.Wrapf(errors.ErrCanceled, ctx.Err(), "waiting for previous recording to stop")
			}

		default:
			s.state = requestingState{}
			s.mu.Unlock()
			return nil
		}
	}
}

func (s *Session) ensurePermission(ctx context.Context) error {
	granted, err := s.permissions.Check(ctx)
	if err == nil && granted == PermissionGranted {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Debug("Permission check failed; requesting")
	}

	granted, err = s.permissions.Request(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrPermissionDenied, err, "microphone permission request failed")
	}
	if granted != PermissionGranted {
		s.logger.Info("Microphone permission denied")
		return errors.Wrapf(errors.ErrPermissionDenied, nil, "microphone permission %s", granted)
	}
	return nil
}

func (s *Session) runTicker(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		st, ok := s.state.(*activeState)
		if !ok || st.generation != gen {
			s.mu.Unlock()
			return
		}
		if st.elapsed >= s.maxDuration {
			s.mu.Unlock()
			s.autoStop()
			return
		}
		st.elapsed++
		elapsed := st.elapsed
		s.mu.Unlock()

		if s.onTick != nil {
			s.onTick(elapsed)
		}
	}
}

func (s *Session) autoStop() {
	s.logger.WithField("elapsed", s.maxDuration).Info("Recording reached maximum duration; stopping")
	audio, err := s.Stop(context.Background())
	if audio == nil && err == nil {
		// a manual Stop won the race
		return
	}
	if s.onAutoStop != nil {
		s.onAutoStop(audio, err)
	}
}

// Stop ends the active capture. Without an active capture it is a no-op
// returning (nil, nil), so concurrent callers produce at most one result.
func (s *Session) Stop(ctx context.Context) (*CapturedAudio, error) {
	s.mu.Lock()
	st, ok := s.state.(*activeState)
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	st.stopTicker()
	done := make(chan struct{})
	s.state = stoppingState{elapsed: st.elapsed, done: done}
	s.mu.Unlock()

	metrics.SetRecordingActive(false)

	audio, outcome, err := s.finish(ctx, st.handle, st.elapsed)

	s.mu.Lock()
	s.state = stoppedState{elapsed: st.elapsed, outcome: outcome}
	s.mu.Unlock()
	close(done)

	metrics.RecordRecording(string(outcome), st.elapsed)
	s.logger.WithFields(logrus.Fields{
		"elapsed":   st.elapsed,
		"outcome":   outcome,
		"wall_time": time.Since(st.startedAt).Round(time.Millisecond),
	}).Info("Recording stopped")

	return audio, err
}

func (s *Session) finish(ctx context.Context, handle Handle, elapsed int) (*CapturedAudio, Outcome, error) {
	if err := handle.Stop(ctx); err != nil {
		return s.recoverStop(handle, elapsed, err)
	}

	location, ok := handle.Location()
	if !ok {
		return nil, OutcomeFailed, errors.Wrapf(errors.ErrCaptureIncomplete, nil, "capture stopped without an artifact")
	}
	return &CapturedAudio{Location: location, DurationSeconds: elapsed}, OutcomeSuccess, nil
}

// recoverStop handles a driver-level stop error. The artifact is kept only if
// it exists and the elapsed time would pass the gate.
func (s *Session) recoverStop(handle Handle, elapsed int, stopErr error) (*CapturedAudio, Outcome, error) {
	location, ok := handle.Location()
	if ok && s.gate.Admits(elapsed) {
		s.logger.WithError(stopErr).WithFields(logrus.Fields{
			"location": location,
			"elapsed":  elapsed,
		}).Warn("Capture stop reported an error; keeping the recorded artifact")
		return &CapturedAudio{Location: location, DurationSeconds: elapsed, Recovered: true}, OutcomeRecovered, nil
	}

	s.logger.WithError(stopErr).WithFields(logrus.Fields{
		"has_artifact": ok,
		"elapsed":      elapsed,
	}).Error("Capture stop failed")
	return nil, OutcomeFailed, errors.Wrapf(errors.ErrRecordingFailed, stopErr, "failed to stop recording after %ds", elapsed)
}

// Abort ends the active capture and discards its artifact. It returns once
// the hardware has been released.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	st, ok := s.state.(*activeState)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	st.stopTicker()
	done := make(chan struct{})
	s.state = stoppingState{elapsed: st.elapsed, done: done}
	s.mu.Unlock()

	metrics.SetRecordingActive(false)

	stopErr := st.handle.Stop(ctx)
	discardErr := st.handle.Discard()

	s.mu.Lock()
	s.state = stoppedState{elapsed: st.elapsed, outcome: OutcomeAborted}
	s.mu.Unlock()
	close(done)

	metrics.RecordRecording(string(OutcomeAborted), 0)
	s.logger.WithField("elapsed", st.elapsed).Info("Recording aborted")

	if stopErr != nil {
		return errors.Wrapf(errors.ErrRecordingFailed, stopErr, "failed to abort recording")
	}
	if discardErr != nil {
		return errors.Wrap(discardErr, "failed to discard aborted recording")
	}
	return nil
}

// Reset returns a stopped session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.(stoppedState); ok {
		s.state = idleState{}
	}
}

func (s *Session) setState(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
