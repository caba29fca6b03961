package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"speechcoach/pkg/config"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GoogleProvider implements the Provider interface for Google Speech-to-Text
type GoogleProvider struct {
	logger     *logrus.Logger
	client     *speech.Client
	config     *config.GoogleSTTConfig
	sampleRate int
}

// NewGoogleProvider creates a new Google Speech-to-Text provider
func NewGoogleProvider(logger *logrus.Logger, cfg *config.GoogleSTTConfig, sampleRate int) *GoogleProvider {
	return &GoogleProvider{
		logger:     logger,
		config:     cfg,
		sampleRate: sampleRate,
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize initializes the Google Speech-to-Text client
func (p *GoogleProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Google STT configuration is required")
	}

	var clientOptions []option.ClientOption

	// Use API key if provided, otherwise credentials file, otherwise application default credentials
	if p.config.APIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(p.config.APIKey))
		p.logger.Debug("Using Google STT API key authentication")
	} else if p.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.config.CredentialsFile))
		p.logger.WithField("credentials_file", p.config.CredentialsFile).Debug("Using Google STT credentials file")
	} else {
		p.logger.Debug("Using Google application default credentials")
	}

	var err error
	p.client, err = speech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create Google Speech client")
		return fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"language":         p.config.Language,
		"sample_rate":      p.sampleRate,
		"model":            p.config.Model,
		"auto_punctuation": p.config.EnablePunctuation,
	}).Info("Google Speech-to-Text client initialized successfully")
	return nil
}

// Transcribe sends the whole Ogg/Opus file in a single Recognize call.
// Recordings are capped at a minute, which is within the synchronous limit.
func (p *GoogleProvider) Transcribe(ctx context.Context, path string) (string, error) {
	if p.client == nil {
		return "", newTranscriptionError(p.Name(), ReasonTransport, ErrInitializationFailed)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", newTranscriptionError(p.Name(), ReasonMissingArtifact, err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_OGG_OPUS,
		SampleRateHertz:            int32(p.sampleRate),
		AudioChannelCount:          1,
		LanguageCode:               p.config.Language,
		EnableAutomaticPunctuation: p.config.EnablePunctuation,
	}
	if p.config.Model != "" {
		recognitionConfig.Model = p.config.Model
	}

	resp, err := p.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return "", &TranscriptionError{
			Provider: p.Name(),
			Reason:   ReasonRemoteStatus,
			Payload:  err.Error(),
		}
	}

	return joinGoogleResults(resp.GetResults()), nil
}

func joinGoogleResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Close releases the gRPC connection
func (p *GoogleProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
