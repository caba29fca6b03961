// Package coach orchestrates a practice take: record, gate on duration,
// then transcribe, analyze and store.
package coach

import (
	"context"

	"speechcoach/pkg/errors"
	"speechcoach/pkg/gate"
	"speechcoach/pkg/history"
	"speechcoach/pkg/metrics"
	"speechcoach/pkg/recorder"

	"github.com/sirupsen/logrus"
)

// Controller binds a Recorder, a Gate and a Processor. Every failure is
// reported to the sink and leaves the controller idle.
type Controller struct {
	logger    *logrus.Logger
	recorder  Recorder
	gate      gate.Gate
	processor Processor
	events    EventSink
}

// NewController creates a controller. A nil sink discards events.
func NewController(rec Recorder, g gate.Gate, processor Processor, events EventSink, logger *logrus.Logger) *Controller {
	if events == nil {
		events = NopSink{}
	}
	return &Controller{
		logger:    logger,
		recorder:  rec,
		gate:      g,
		processor: processor,
		events:    events,
	}
}

// Start begins a recording. A recording already in progress is discarded.
func (c *Controller) Start(ctx context.Context) error {
	restarted := c.recorder.Snapshot().Phase == recorder.PhaseActive

	if err := c.recorder.Start(ctx); err != nil {
		if errors.IsErrorType(err, errors.ErrSessionBusy) {
			return err
		}
		c.recorder.Reset()
		c.fail(err)
		return err
	}

	reason := ReasonRecordingStarted
	if restarted {
		reason = ReasonRecordingRestarted
	}
	c.events.StateChanged(StateRecording, reason)
	return nil
}

// Stop ends the recording and processes it. Stopping without an active
// recording returns ErrInvalidInput and emits nothing.
func (c *Controller) Stop(ctx context.Context) (history.Entry, error) {
	audio, err := c.recorder.Stop(ctx)
	if audio == nil && err == nil {
		return history.Entry{}, errors.Wrapf(errors.ErrInvalidInput, nil, "no active recording")
	}
	c.events.StateChanged(StateStopping, ReasonRecordingStopped)
	return c.complete(ctx, audio, err)
}

// HandleAutoStop processes a recording that stopped at its ceiling. It is
// meant to be passed as recorder.Options.OnAutoStop.
func (c *Controller) HandleAutoStop(audio *recorder.CapturedAudio, err error) {
	c.events.StateChanged(StateStopping, ReasonAutoStopped)
	if _, err := c.complete(context.Background(), audio, err); err != nil {
		c.logger.WithError(err).Debug("Auto-stopped recording was not saved")
	}
}

// HandleTick forwards elapsed time to the sink. It is meant to be passed as
// recorder.Options.OnTick.
func (c *Controller) HandleTick(elapsedSeconds int) {
	c.events.Elapsed(elapsedSeconds, c.recorder.MaxDurationSeconds())
}

// Abort discards the active recording.
func (c *Controller) Abort(ctx context.Context) error {
	err := c.recorder.Abort(ctx)
	c.recorder.Reset()
	if err != nil {
		c.fail(err)
		return err
	}
	c.events.StateChanged(StateIdle, ReasonRecordingDiscarded)
	return nil
}

// Status reports the controller state.
func (c *Controller) Status() Status {
	snap := c.recorder.Snapshot()
	processing := c.processor.Processing()

	state := StateIdle
	switch {
	case processing:
		state = StateProcessing
	case snap.Phase == recorder.PhaseActive || snap.Phase == recorder.PhaseRequesting:
		state = StateRecording
	case snap.Phase == recorder.PhaseStopping:
		state = StateStopping
	}

	return Status{
		State:          state,
		Phase:          snap.Phase,
		ElapsedSeconds: snap.ElapsedSeconds,
		MaxSeconds:     c.recorder.MaxDurationSeconds(),
		Processing:     processing,
		LastOutcome:    snap.Outcome,
	}
}

func (c *Controller) complete(ctx context.Context, audio *recorder.CapturedAudio, err error) (history.Entry, error) {
	defer c.recorder.Reset()

	if err != nil {
		c.fail(err)
		return history.Entry{}, err
	}

	decision := c.gate.Decide(audio.DurationSeconds)
	metrics.RecordGateDecision(decision.Verdict.String())
	if decision.Verdict == gate.Reject {
		c.logger.WithFields(logrus.Fields{
			"duration": audio.DurationSeconds,
			"location": audio.Location,
		}).Info("Recording rejected as too short")
		c.fail(decision.Err)
		return history.Entry{}, decision.Err
	}

	c.events.StateChanged(StateProcessing, ReasonTranscribing)
	entry, err := c.processor.Process(ctx, audio.Location, audio.DurationSeconds)
	if err != nil {
		c.fail(err)
		return history.Entry{}, err
	}

	c.events.EntryCreated(entry)
	c.events.StateChanged(StateIdle, ReasonEntryCreated)
	return entry, nil
}

func (c *Controller) fail(err error) {
	kind := errors.Kind(err)
	message := errors.UserMessage(err)
	c.logger.WithError(err).WithField("kind", kind).Warn("Practice session failed")
	c.events.Failure(kind, message)
	c.events.StateChanged(StateIdle, ReasonFailed)
}
