package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FFmpegConfig configures microphone capture through ffmpeg.
type FFmpegConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	// Directory receives one Ogg/Opus file per capture.
	Directory string
	// StopGrace bounds how long Stop waits for ffmpeg to finalize the file.
	StopGrace time.Duration
	// StartupProbe is how long Start watches for an early exit.
	StartupProbe time.Duration
}

// FFmpegDevice records single-channel Ogg/Opus files with ffmpeg.
type FFmpegDevice struct {
	cfg    FFmpegConfig
	logger *logrus.Logger
}

// NewFFmpegDevice creates a capture device, filling in defaults.
func NewFFmpegDevice(cfg FFmpegConfig, logger *logrus.Logger) *FFmpegDevice {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 3 * time.Second
	}
	if cfg.StartupProbe <= 0 {
		cfg.StartupProbe = 250 * time.Millisecond
	}
	return &FFmpegDevice{cfg: cfg, logger: logger}
}

// Start launches ffmpeg. The process outlives ctx; ctx only bounds the
// startup probe.
func (d *FFmpegDevice) Start(ctx context.Context) (Handle, error) {
	if err := os.MkdirAll(d.cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	path := filepath.Join(d.cfg.Directory, fmt.Sprintf("recording-%s.ogg", uuid.NewString()))
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", d.cfg.InputFormat,
		"-i", d.cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-c:a", "libopus",
		"-b:a", "32k",
		"-application", "voip",
		"-f", "ogg",
		path,
	}

	cmd := exec.Command(d.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = d.cfg.StopGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		_ = os.Remove(path)
		return nil, ctx.Err()
	case <-time.After(d.cfg.StartupProbe):
	}

	d.logger.WithFields(logrus.Fields{
		"path":   path,
		"format": d.cfg.InputFormat,
		"device": d.cfg.InputDevice,
	}).Debug("ffmpeg capture started")

	return &ffmpegHandle{
		path:    path,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		grace:   d.cfg.StopGrace,
	}, nil
}

type ffmpegHandle struct {
	path   string
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error
	grace   time.Duration

	stopOnce sync.Once
	stopErr  error
}

// Stop interrupts ffmpeg so it writes the Ogg trailer, killing it if it does
// not exit within the grace period. If ffmpeg already exited on its own the
// capture was cut short and Stop reports it.
func (h *ffmpegHandle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		select {
		case err := <-h.waitErr:
			h.stopErr = exitedDuringCapture(err)
		default:
			h.stopErr = h.interrupt(ctx)
		}

		if h.stopErr != nil && h.stderr.Len() > 0 {
			h.stopErr = fmt.Errorf("%w: %s", h.stopErr, trimOutput(h.stderr.String()))
		}
	})
	return h.stopErr
}

func (h *ffmpegHandle) interrupt(ctx context.Context) error {
	_ = h.process.Signal(os.Interrupt)

	select {
	case err, ok := <-h.waitErr:
		if !ok {
			return nil
		}
		return normalizeStopErr(err)
	case <-time.After(h.grace):
		return h.kill("ffmpeg did not exit within %s", h.grace)
	case <-ctx.Done():
		return h.kill("stop canceled: %v", ctx.Err())
	}
}

func exitedDuringCapture(err error) error {
	if err == nil {
		return errors.New("ffmpeg exited during capture")
	}
	return fmt.Errorf("ffmpeg exited during capture: %w", err)
}

func (h *ffmpegHandle) kill(format string, args ...interface{}) error {
	_ = h.process.Kill()
	<-h.waitErr
	return fmt.Errorf(format, args...)
}

func (h *ffmpegHandle) Location() (string, bool) {
	info, err := os.Stat(h.path)
	if err != nil || info.Size() == 0 {
		return "", false
	}
	return h.path, true
}

func (h *ffmpegHandle) Discard() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// normalizeStopErr ignores the exit ffmpeg reports after handling SIGINT
// (status 255) or being terminated by it. Any other exit is a failure.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if exitErr.ExitCode() == 255 {
		return nil
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() && status.Signal() == syscall.SIGINT {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
