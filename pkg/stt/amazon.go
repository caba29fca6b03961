package stt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"speechcoach/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AmazonTranscribeProvider streams recordings to Amazon Transcribe
type AmazonTranscribeProvider struct {
	logger     *logrus.Logger
	client     *transcribestreaming.Client
	config     *config.AmazonSTTConfig
	sampleRate int
	mutex      sync.RWMutex
}

// NewAmazonTranscribeProvider creates a new Amazon Transcribe provider
func NewAmazonTranscribeProvider(logger *logrus.Logger, cfg *config.AmazonSTTConfig, sampleRate int) *AmazonTranscribeProvider {
	return &AmazonTranscribeProvider{
		logger:     logger,
		config:     cfg,
		sampleRate: sampleRate,
	}
}

// Name returns the provider name
func (p *AmazonTranscribeProvider) Name() string {
	return "amazon"
}

// Initialize initializes the Amazon Transcribe client
func (p *AmazonTranscribeProvider) Initialize() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.config == nil {
		return fmt.Errorf("Amazon STT configuration is required")
	}

	region := p.config.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		// a failed transcription is surfaced to the user, who re-records
		awsconfig.WithRetryMaxAttempts(1),
	}
	if p.config.AccessKeyID != "" && p.config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     p.config.AccessKeyID,
				SecretAccessKey: p.config.SecretAccessKey,
			}, nil
		})))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load AWS configuration")
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	p.client = transcribestreaming.NewFromConfig(cfg)

	p.logger.WithFields(logrus.Fields{
		"region":      region,
		"language":    p.config.Language,
		"sample_rate": p.sampleRate,
	}).Info("Amazon Transcribe provider initialized successfully")

	return nil
}

// Transcribe streams the Ogg/Opus file and concatenates the final results
func (p *AmazonTranscribeProvider) Transcribe(ctx context.Context, path string) (string, error) {
	p.mutex.RLock()
	client := p.client
	p.mutex.RUnlock()
	if client == nil {
		return "", newTranscriptionError(p.Name(), ReasonTransport, ErrInitializationFailed)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", newTranscriptionError(p.Name(), ReasonMissingArtifact, err)
	}
	defer file.Close()

	resp, err := client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(p.config.Language),
		MediaSampleRateHertz: aws.Int32(int32(p.sampleRate)),
		MediaEncoding:        types.MediaEncodingOggOpus,
	})
	if err != nil {
		return "", &TranscriptionError{Provider: p.Name(), Reason: ReasonRemoteStatus, Payload: err.Error()}
	}

	stream := resp.GetStream()
	defer stream.Close()

	chunkSize := p.config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8192
	}

	var transcript []string
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// closing the writer tells Transcribe the audio is complete
		defer stream.Writer.Close()
		buffer := make([]byte, chunkSize)
		for {
			n, readErr := file.Read(buffer)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				event := &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: chunk}}
				if sendErr := stream.Send(gctx, event); sendErr != nil {
					return newTranscriptionError(p.Name(), ReasonTransport, sendErr)
				}
			}
			if readErr == io.EOF {
				return nil
			}
			if readErr != nil {
				return newTranscriptionError(p.Name(), ReasonMissingArtifact, readErr)
			}
		}
	})

	g.Go(func() error {
		for event := range stream.Events() {
			if te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent); ok {
				transcript = append(transcript, finalAmazonResults(te.Value)...)
			}
		}
		if streamErr := stream.Err(); streamErr != nil {
			return &TranscriptionError{Provider: p.Name(), Reason: ReasonRemoteStatus, Payload: streamErr.Error()}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(transcript, " "), nil
}

func finalAmazonResults(event types.TranscriptEvent) []string {
	if event.Transcript == nil {
		return nil
	}
	var parts []string
	for _, result := range event.Transcript.Results {
		if result.IsPartial || len(result.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(aws.ToString(result.Alternatives[0].Transcript)); text != "" {
			parts = append(parts, text)
		}
	}
	return parts
}
