package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"speechcoach/pkg/config"
	"speechcoach/pkg/recorder"
	"speechcoach/pkg/stt"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileHandle struct{ path string }

func (h *fileHandle) Stop(context.Context) error {
	return os.WriteFile(h.path, []byte("OggS"), 0o644)
}

func (h *fileHandle) Location() (string, bool) {
	_, err := os.Stat(h.path)
	return h.path, err == nil
}

func (h *fileHandle) Discard() error { return os.Remove(h.path) }

type fileDevice struct{ dir string }

func (d fileDevice) Start(context.Context) (recorder.Handle, error) {
	return &fileHandle{path: filepath.Join(d.dir, "take.ogg")}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		Recording: config.RecordingConfig{
			Directory:          dir,
			MaxDurationSeconds: 60,
			TickInterval:       time.Millisecond,
			SampleRate:         16000,
		},
		Gate: config.GateConfig{MinSeconds: 1},
		STT: config.STTConfig{
			Provider: "mock",
			Timeout:  time.Second,
			Mock:     config.MockSTTConfig{Transcript: "Practice makes progress. Keep going."},
		},
		History:    config.HistoryConfig{Backend: "json", Path: filepath.Join(dir, "history.json")},
		HTTP:       config.HTTPConfig{Host: "127.0.0.1", Port: 0},
		Permission: config.PermissionConfig{Mode: "granted"},
	}
}

func TestNewRecordsAndPersists(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, quietLogger(), Options{Device: fileDevice{dir: cfg.DataDir}})
	require.NoError(t, err)

	require.NoError(t, a.Controller.Start(ctx))
	require.Eventually(t, func() bool {
		return a.Controller.Status().ElapsedSeconds >= 1
	}, 2*time.Second, time.Millisecond)

	entry, err := a.Controller.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Practice makes progress. Keep going.", entry.Transcript)
	assert.Equal(t, 5, entry.Analysis.Metrics.WordCount)

	require.NoError(t, a.Close())

	// a fresh process sees the persisted entry
	reopened, err := New(ctx, cfg, quietLogger(), Options{Device: fileDevice{dir: cfg.DataDir}})
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
}

func TestNewUsesTranscriberOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.STT.Provider = "does-not-exist"

	a, err := New(context.Background(), cfg, quietLogger(), Options{
		Device:      fileDevice{dir: cfg.DataDir},
		Transcriber: stt.NewMockProvider(quietLogger(), "override"),
	})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Providers)
}

func TestNewRejectsUnknownHistoryBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Backend = "postgres"

	_, err := New(context.Background(), cfg, quietLogger(), Options{})
	assert.Error(t, err)
}

func TestNewPermissionProvider(t *testing.T) {
	logger := quietLogger()
	consent := filepath.Join(t.TempDir(), "consent")

	tests := []struct {
		mode    string
		in      io.Reader
		out     io.Writer
		want    interface{}
		wantErr bool
	}{
		{mode: "granted", want: recorder.StaticPermissions{Granted: true}},
		{mode: "denied", want: recorder.StaticPermissions{Granted: false}},
		{mode: "prompt", in: strings.NewReader("y\n"), out: &bytes.Buffer{}, want: &recorder.PromptPermissions{}},
		{mode: "prompt", wantErr: true},
		{mode: "file", want: &recorder.FilePermissions{}},
		{mode: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			provider, err := NewPermissionProvider(&config.PermissionConfig{Mode: tt.mode, ConsentFile: consent}, tt.in, tt.out, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, provider)
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.HTTP.Port = listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	a, err := New(context.Background(), cfg, quietLogger(), Options{Device: fileDevice{dir: cfg.DataDir}})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", cfg.HTTP.Addr())
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
