package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"speechcoach/pkg/config"
	"speechcoach/pkg/version"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider uploads recordings to an OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAIProvider struct {
	logger  *logrus.Logger
	config  *config.OpenAISTTConfig
	timeout time.Duration
	client  *resty.Client
}

type openAITranscription struct {
	Text string `json:"text"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(logger *logrus.Logger, cfg *config.OpenAISTTConfig, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		logger:  logger,
		config:  cfg,
		timeout: timeout,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Initialize builds the HTTP client
func (p *OpenAIProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("OpenAI STT configuration is required")
	}
	if p.config.BaseURL == "" {
		return fmt.Errorf("OpenAI STT base URL is required")
	}

	p.client = resty.New().
		SetBaseURL(strings.TrimRight(p.config.BaseURL, "/")).
		SetTimeout(p.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	if p.config.APIKey != "" {
		p.client.SetAuthToken(p.config.APIKey)
	} else {
		p.logger.Warn("OPENAI_API_KEY is not set; sending unauthenticated requests")
	}
	if p.config.OrganizationID != "" {
		p.client.SetHeader("OpenAI-Organization", p.config.OrganizationID)
	}

	p.logger.WithFields(logrus.Fields{
		"base_url": p.config.BaseURL,
		"model":    p.config.Model,
	}).Info("OpenAI provider initialized successfully")
	return nil
}

// Transcribe uploads the file as multipart form data
func (p *OpenAIProvider) Transcribe(ctx context.Context, path string) (string, error) {
	if p.client == nil {
		return "", newTranscriptionError(p.Name(), ReasonTransport, ErrInitializationFailed)
	}

	form := map[string]string{
		"model":           p.config.Model,
		"response_format": "json",
	}
	if p.config.Language != "" {
		form["language"] = p.config.Language
	}
	if p.config.Prompt != "" {
		form["prompt"] = p.config.Prompt
	}

	var result openAITranscription
	var apiErr openAIErrorBody

	resp, err := p.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(form).
		SetResult(&result).
		SetError(&apiErr).
		Post("/audio/transcriptions")
	if err != nil {
		return "", newTranscriptionError(p.Name(), ReasonTransport, err)
	}

	if resp.IsError() {
		terr := &TranscriptionError{
			Provider:   p.Name(),
			Reason:     ReasonRemoteStatus,
			StatusCode: resp.StatusCode(),
			Payload:    truncatePayload(resp.Body()),
		}
		p.logger.WithFields(logrus.Fields{
			"status":     resp.StatusCode(),
			"error_type": apiErr.Error.Type,
			"message":    apiErr.Error.Message,
		}).Warn("OpenAI transcription request rejected")
		return "", terr
	}

	if result.Text == "" && len(resp.Body()) > 0 && !strings.Contains(string(resp.Body()), `"text"`) {
		return "", &TranscriptionError{
			Provider:   p.Name(),
			Reason:     ReasonDecode,
			StatusCode: resp.StatusCode(),
			Payload:    truncatePayload(resp.Body()),
		}
	}

	return result.Text, nil
}
