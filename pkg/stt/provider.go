package stt

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"speechcoach/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Transcriber turns a recorded artifact into text.
type Transcriber interface {
	Transcribe(ctx context.Context, location string) (string, error)
}

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// Transcribe sends the audio file at path to the provider and returns its text
	Transcribe(ctx context.Context, path string) (string, error)
}

// Closer is implemented by providers holding network clients.
type Closer interface {
	Close() error
}

// ProviderManager manages all speech-to-text providers
type ProviderManager struct {
	logger          *logrus.Logger
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider initializes and registers a speech-to-text provider
func (m *ProviderManager) RegisterProvider(provider Provider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize speech-to-text provider")
		return errors.Join(ErrInitializationFailed, err)
	}

	m.mu.Lock()
	m.providers[provider.Name()] = provider
	m.mu.Unlock()

	m.logger.WithField("provider", provider.Name()).Info("Registered speech-to-text provider")
	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (Provider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// Providers returns the registered provider names in sorted order
func (m *ProviderManager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transcribe sends the artifact at location to the default provider. Every
// failure is a *TranscriptionError; there is no retry.
func (m *ProviderManager) Transcribe(ctx context.Context, location string) (string, error) {
	provider, exists := m.GetDefaultProvider()
	if !exists {
		return "", newTranscriptionError(m.defaultProvider, ReasonNoProvider, ErrNoProviderAvailable)
	}
	name := provider.Name()

	info, err := os.Stat(location)
	if err != nil || info.IsDir() || info.Size() == 0 {
		if err == nil {
			err = errors.New("artifact is empty or not a file")
		}
		metrics.RecordSTTRequest(name, "missing_artifact")
		return "", newTranscriptionError(name, ReasonMissingArtifact, err)
	}

	logger := m.logger.WithFields(logrus.Fields{
		"provider": name,
		"location": location,
		"bytes":    info.Size(),
	})
	logger.Info("Starting transcription")

	startTime := time.Now()
	observe := metrics.ObserveSTTLatency(name)
	text, err := provider.Transcribe(ctx, location)
	observe()

	if err != nil {
		var terr *TranscriptionError
		if !errors.As(err, &terr) {
			terr = newTranscriptionError(name, ReasonTransport, err)
		}
		metrics.RecordSTTRequest(name, terr.Reason)
		logger.WithError(terr).WithField("duration_ms", time.Since(startTime).Milliseconds()).Error("Transcription failed")
		return "", terr
	}

	text = strings.TrimSpace(text)
	metrics.RecordSTTRequest(name, "success")
	logger.WithFields(logrus.Fields{
		"duration_ms": time.Since(startTime).Milliseconds(),
		"chars":       len(text),
	}).Info("Transcription completed")

	return text, nil
}

// Close releases provider clients.
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, p := range m.providers {
		if c, ok := p.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
