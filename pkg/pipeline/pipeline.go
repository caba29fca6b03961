// Package pipeline turns a captured recording into a persisted history entry:
// transcribe, analyze, store, then optionally publish.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"speechcoach/pkg/analysis"
	"speechcoach/pkg/errors"
	"speechcoach/pkg/history"
	"speechcoach/pkg/metrics"
	"speechcoach/pkg/stt"

	"github.com/sirupsen/logrus"
)

// Publisher receives entries after they are persisted.
type Publisher interface {
	Publish(ctx context.Context, entry history.Entry) error
}

// Pipeline processes recordings one call at a time on the caller's goroutine.
type Pipeline struct {
	logger      *logrus.Logger
	transcriber stt.Transcriber
	store       history.Store
	publisher   Publisher

	inFlight atomic.Int32
}

// New creates a pipeline. publisher may be nil.
func New(transcriber stt.Transcriber, store history.Store, publisher Publisher, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		logger:      logger,
		transcriber: transcriber,
		store:       store,
		publisher:   publisher,
	}
}

// Processing reports whether any Process call is in flight.
func (p *Pipeline) Processing() bool {
	return p.inFlight.Load() > 0
}

// Process transcribes the recording at location, analyzes the transcript and
// appends the resulting entry to the store. On failure nothing is persisted
// and the error matches errors.ErrProcessingFailed.
func (p *Pipeline) Process(ctx context.Context, location string, durationSeconds int) (history.Entry, error) {
	p.inFlight.Add(1)
	metrics.AddPipelineInFlight(1)
	defer func() {
		p.inFlight.Add(-1)
		metrics.AddPipelineInFlight(-1)
	}()

	logger := p.logger.WithFields(logrus.Fields{
		"location": location,
		"duration": durationSeconds,
	})
	startTime := time.Now()

	transcript, err := p.transcriber.Transcribe(ctx, location)
	if err != nil {
		return p.fail(logger, err, "failed to transcribe recording")
	}

	result := analysis.Analyze(transcript)

	entry, err := history.NewEntry(location, durationSeconds, transcript, result)
	if err != nil {
		return p.fail(logger, err, "failed to create history entry")
	}

	if err := p.store.Append(ctx, entry); err != nil {
		return p.fail(logger, err, "failed to save history entry")
	}

	metrics.RecordPipelineRun("success")
	metrics.ObserveScore(result.Score)
	if entries, err := p.store.List(ctx); err == nil {
		metrics.SetHistoryEntries(len(entries))
	}

	logger.WithFields(logrus.Fields{
		"entry_id":    entry.ID,
		"score":       result.ScoreText(),
		"words":       result.Metrics.WordCount,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Recording processed")

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, entry); err != nil {
			logger.WithError(err).WithField("entry_id", entry.ID).Warn("Failed to publish history entry")
		}
	}

	return entry, nil
}

func (p *Pipeline) fail(logger *logrus.Entry, cause error, message string) (history.Entry, error) {
	metrics.RecordPipelineRun("failed")
	logger.WithError(cause).Error(message)
	return history.Entry{}, errors.Wrapf(errors.ErrProcessingFailed, cause, "%s", message)
}
