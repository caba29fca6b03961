package stt

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"speechcoach/pkg/config"
	speecherrors "speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSttProvider implements Provider for manager tests
type MockSttProvider struct {
	mock.Mock
}

func (m *MockSttProvider) Initialize() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSttProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSttProvider) Transcribe(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeArtifact(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.ogg")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestRegisterProvider(t *testing.T) {
	manager := NewProviderManager(testLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")

	require.NoError(t, manager.RegisterProvider(provider))
	got, ok := manager.GetDefaultProvider()
	assert.True(t, ok)
	assert.Equal(t, provider, got)
	assert.Equal(t, []string{"test"}, manager.Providers())
	provider.AssertExpectations(t)
}

func TestRegisterProviderInitFailure(t *testing.T) {
	manager := NewProviderManager(testLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(errors.New("no credentials"))
	provider.On("Name").Return("test")

	err := manager.RegisterProvider(provider)
	assert.ErrorIs(t, err, ErrInitializationFailed)
	_, ok := manager.GetProvider("test")
	assert.False(t, ok)
}

func TestTranscribeSuccess(t *testing.T) {
	path := writeArtifact(t, "OggS")
	manager := NewProviderManager(testLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")
	provider.On("Transcribe", mock.Anything, path).Return("  hello there.  ", nil)
	require.NoError(t, manager.RegisterProvider(provider))

	text, err := manager.Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello there.", text)
	provider.AssertExpectations(t)
}

func TestTranscribeMissingArtifact(t *testing.T) {
	manager := NewProviderManager(testLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")
	require.NoError(t, manager.RegisterProvider(provider))

	for _, path := range []string{filepath.Join(t.TempDir(), "missing.ogg"), writeArtifact(t, "")} {
		_, err := manager.Transcribe(context.Background(), path)

		var terr *TranscriptionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, ReasonMissingArtifact, terr.Reason)
		assert.ErrorIs(t, err, speecherrors.ErrTranscriptionFailed)
	}
	provider.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestTranscribeWrapsPlainErrors(t *testing.T) {
	path := writeArtifact(t, "OggS")
	manager := NewProviderManager(testLogger(), "test")
	cause := errors.New("connection reset")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")
	provider.On("Transcribe", mock.Anything, path).Return("", cause).Once()
	require.NoError(t, manager.RegisterProvider(provider))

	_, err := manager.Transcribe(context.Background(), path)

	var terr *TranscriptionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "test", terr.Provider)
	assert.Equal(t, ReasonTransport, terr.Reason)
	assert.ErrorIs(t, err, cause)
	provider.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestTranscribeWithoutProvider(t *testing.T) {
	manager := NewProviderManager(testLogger(), "absent")
	_, err := manager.Transcribe(context.Background(), writeArtifact(t, "OggS"))

	var terr *TranscriptionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ReasonNoProvider, terr.Reason)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestTranscriptionErrorMessage(t *testing.T) {
	err := &TranscriptionError{Provider: "openai", Reason: ReasonRemoteStatus, StatusCode: 429, Payload: `{"error":"slow down"}`}
	assert.Equal(t, `transcription failed (openai): remote_status: status 429: {"error":"slow down"}`, err.Error())
	assert.ErrorIs(t, err, speecherrors.ErrTranscriptionFailed)
}

func TestTruncatePayloadKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, `{"error":"short"}`, truncatePayload([]byte("  {\"error\":\"short\"}\n")))

	// "é" is two bytes; an odd prefix puts the cut inside a rune.
	body := "x" + strings.Repeat("é", maxPayload)
	got := truncatePayload([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxPayload+len("..."))
	assert.Equal(t, maxPayload-1, len(strings.TrimSuffix(got, "...")))
}

func TestNewProviderManagerFromConfig(t *testing.T) {
	manager, err := NewProviderManagerFromConfig(testLogger(), &config.STTConfig{Provider: "mock"}, 16000)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, manager.Providers())

	_, err = NewProviderManagerFromConfig(testLogger(), &config.STTConfig{Provider: "telepathy"}, 16000)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestMockProvider(t *testing.T) {
	provider := NewMockProvider(testLogger(), "")
	require.NoError(t, provider.Initialize())
	assert.Equal(t, "mock", provider.Name())

	text, err := provider.Transcribe(context.Background(), writeArtifact(t, "OggS"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMockTranscript, text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = provider.WithDelay(time.Hour).Transcribe(ctx, writeArtifact(t, "OggS"))
	assert.ErrorIs(t, err, context.Canceled)
}
