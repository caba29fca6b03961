package stt

import (
	"fmt"

	"speechcoach/pkg/config"

	"github.com/sirupsen/logrus"
)

// NewProviderManagerFromConfig registers the configured provider as the default.
func NewProviderManagerFromConfig(logger *logrus.Logger, cfg *config.STTConfig, sampleRate int) (*ProviderManager, error) {
	var provider Provider
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(logger, &cfg.OpenAI, cfg.Timeout)
	case "google":
		provider = NewGoogleProvider(logger, &cfg.Google, sampleRate)
	case "amazon":
		provider = NewAmazonTranscribeProvider(logger, &cfg.Amazon, sampleRate)
	case "mock":
		provider = NewMockProvider(logger, cfg.Mock.Transcript)
	default:
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, cfg.Provider)
	}

	manager := NewProviderManager(logger, provider.Name())
	if err := manager.RegisterProvider(provider); err != nil {
		return nil, err
	}
	return manager, nil
}
