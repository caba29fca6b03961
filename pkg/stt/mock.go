package stt

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMockTranscript is returned by the mock provider when none is configured.
const DefaultMockTranscript = "Today I want to talk about why I enjoy learning new languages. " +
	"Every language opens a door to a different way of thinking about the world. " +
	"When I practice speaking out loud, I notice where my sentences become unclear. " +
	"Recording myself helps me hear those moments and improve them over time."

// MockProvider returns a fixed transcript without any network calls
type MockProvider struct {
	logger     *logrus.Logger
	transcript string
	delay      time.Duration
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger, transcript string) *MockProvider {
	if transcript == "" {
		transcript = DefaultMockTranscript
	}
	return &MockProvider{
		logger:     logger,
		transcript: transcript,
	}
}

// WithDelay makes each transcription take d, for demos of the processing state.
func (p *MockProvider) WithDelay(d time.Duration) *MockProvider {
	p.delay = d
	return p
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// Transcribe returns the configured transcript once the file is readable
func (p *MockProvider) Transcribe(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", newTranscriptionError(p.Name(), ReasonMissingArtifact, err)
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", newTranscriptionError(p.Name(), ReasonTransport, ctx.Err())
		}
	}

	p.logger.WithField("path", path).Debug("Mock STT provider returning fixed transcript")
	return p.transcript, nil
}
