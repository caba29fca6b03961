package recorder

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	speecherrors "speechcoach/pkg/errors"
	"speechcoach/pkg/gate"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	location string
	stopErr  error
	// release, when set, blocks Stop until closed
	release chan struct{}

	stopCalls    atomic.Int32
	discardCalls atomic.Int32
}

func (h *fakeHandle) Stop(ctx context.Context) error {
	h.stopCalls.Add(1)
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return h.stopErr
}

func (h *fakeHandle) Location() (string, bool) {
	return h.location, h.location != ""
}

func (h *fakeHandle) Discard() error {
	h.discardCalls.Add(1)
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	handles []*fakeHandle
	starts  int
	err     error
}

func (d *fakeDevice) Start(context.Context) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	h := d.handles[d.starts]
	d.starts++
	return h, nil
}

type countingPermissions struct {
	check    Permission
	request  Permission
	requests atomic.Int32
}

func (p *countingPermissions) Check(context.Context) (Permission, error) { return p.check, nil }
func (p *countingPermissions) Request(context.Context) (Permission, error) {
	p.requests.Add(1)
	return p.request, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestSession(device Device, opts Options) *Session {
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	return NewSession(device, StaticPermissions{Granted: true}, testLogger(), opts)
}

// setElapsed simulates ticks without waiting for the clock.
func setElapsed(t *testing.T, s *Session, elapsed int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.(*activeState)
	require.True(t, ok, "session is not active")
	st.elapsed = elapsed
}

func TestStartStopSuccess(t *testing.T) {
	handle := &fakeHandle{location: "/tmp/take.ogg"}
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{handle}}, Options{})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, PhaseActive, s.Snapshot().Phase)
	setElapsed(t, s, 42)

	audio, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, audio)
	assert.Equal(t, CapturedAudio{Location: "/tmp/take.ogg", DurationSeconds: 42}, *audio)

	snap := s.Snapshot()
	assert.Equal(t, PhaseStopped, snap.Phase)
	assert.Equal(t, OutcomeSuccess, snap.Outcome)
	assert.Equal(t, 42, snap.ElapsedSeconds)
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	s := newTestSession(&fakeDevice{}, Options{})
	audio, err := s.Stop(context.Background())
	assert.Nil(t, audio)
	assert.NoError(t, err)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestConcurrentStopTearsDownOnce(t *testing.T) {
	handle := &fakeHandle{location: "/tmp/take.ogg", release: make(chan struct{})}
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{handle}}, Options{})
	require.NoError(t, s.Start(context.Background()))

	first := make(chan *CapturedAudio, 1)
	go func() {
		audio, _ := s.Stop(context.Background())
		first <- audio
	}()

	require.Eventually(t, func() bool { return s.Snapshot().Phase == PhaseStopping }, time.Second, time.Millisecond)

	audio, err := s.Stop(context.Background())
	assert.Nil(t, audio)
	assert.NoError(t, err)

	close(handle.release)
	assert.NotNil(t, <-first)
	assert.Equal(t, int32(1), handle.stopCalls.Load())
}

func TestPermissionDenied(t *testing.T) {
	perms := &countingPermissions{check: PermissionUndetermined, request: PermissionDenied}
	device := &fakeDevice{}
	s := NewSession(device, perms, testLogger(), Options{TickInterval: time.Hour})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, speecherrors.ErrPermissionDenied)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
	assert.Equal(t, int32(1), perms.requests.Load())
	assert.Equal(t, 0, device.starts)
}

func TestPermissionAlreadyGrantedSkipsRequest(t *testing.T) {
	perms := &countingPermissions{check: PermissionGranted}
	s := NewSession(&fakeDevice{handles: []*fakeHandle{{location: "x"}}}, perms, testLogger(), Options{TickInterval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, int32(0), perms.requests.Load())
}

func TestDeviceStartFailure(t *testing.T) {
	s := newTestSession(&fakeDevice{err: errors.New("no input device")}, Options{})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, speecherrors.ErrRecordingFailed)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestMissingLocationIsCaptureIncomplete(t *testing.T) {
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{{}}}, Options{})
	require.NoError(t, s.Start(context.Background()))

	audio, err := s.Stop(context.Background())
	assert.Nil(t, audio)
	assert.ErrorIs(t, err, speecherrors.ErrCaptureIncomplete)
	assert.Equal(t, OutcomeFailed, s.Snapshot().Outcome)
}

func TestRecoverStop(t *testing.T) {
	driverErr := errors.New("audio driver wedged")

	testCases := []struct {
		name      string
		location  string
		elapsed   int
		recovered bool
	}{
		{"ArtifactAndLongEnough", "/tmp/take.ogg", 30, true},
		{"ArtifactButTooShort", "/tmp/take.ogg", 29, false},
		{"NoArtifact", "", 45, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handle := &fakeHandle{location: tc.location, stopErr: driverErr}
			s := newTestSession(&fakeDevice{handles: []*fakeHandle{handle}}, Options{Gate: gate.New(30)})
			require.NoError(t, s.Start(context.Background()))
			setElapsed(t, s, tc.elapsed)

			audio, err := s.Stop(context.Background())
			if tc.recovered {
				require.NoError(t, err)
				require.NotNil(t, audio)
				assert.True(t, audio.Recovered)
				assert.Equal(t, tc.elapsed, audio.DurationSeconds)
				assert.Equal(t, OutcomeRecovered, s.Snapshot().Outcome)
				return
			}
			assert.Nil(t, audio)
			assert.ErrorIs(t, err, speecherrors.ErrRecordingFailed)
			assert.ErrorIs(t, err, driverErr)
			assert.Equal(t, OutcomeFailed, s.Snapshot().Outcome)
		})
	}
}

func TestRecoverStopDirect(t *testing.T) {
	s := newTestSession(&fakeDevice{}, Options{Gate: gate.New(40)})
	audio, outcome, err := s.recoverStop(&fakeHandle{location: "/tmp/a.ogg"}, 35, errors.New("x"))
	assert.Nil(t, audio)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, speecherrors.ErrRecordingFailed)
}

func TestStartWhileActiveAbortsPrevious(t *testing.T) {
	first := &fakeHandle{location: "/tmp/first.ogg"}
	second := &fakeHandle{location: "/tmp/second.ogg"}
	var autoStops atomic.Int32
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{first, second}}, Options{
		OnAutoStop: func(*CapturedAudio, error) { autoStops.Add(1) },
	})

	require.NoError(t, s.Start(context.Background()))
	setElapsed(t, s, 12)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, int32(1), first.stopCalls.Load())
	assert.Equal(t, int32(1), first.discardCalls.Load())
	assert.Equal(t, int32(0), autoStops.Load())

	snap := s.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.Equal(t, 0, snap.ElapsedSeconds)

	audio, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/second.ogg", audio.Location)
}

func TestStartWhileStoppingWaits(t *testing.T) {
	first := &fakeHandle{location: "/tmp/first.ogg", release: make(chan struct{})}
	second := &fakeHandle{location: "/tmp/second.ogg"}
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{first, second}}, Options{})
	require.NoError(t, s.Start(context.Background()))

	stopped := make(chan *CapturedAudio, 1)
	go func() {
		audio, _ := s.Stop(context.Background())
		stopped <- audio
	}()
	require.Eventually(t, func() bool { return s.Snapshot().Phase == PhaseStopping }, time.Second, time.Millisecond)

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()

	select {
	case <-started:
		t.Fatal("start must wait for the previous stop")
	case <-time.After(20 * time.Millisecond):
	}

	close(first.release)
	assert.Equal(t, "/tmp/first.ogg", (<-stopped).Location)
	require.NoError(t, <-started)
	assert.Equal(t, PhaseActive, s.Snapshot().Phase)
}

func TestStartWhileStoppingHonorsContext(t *testing.T) {
	first := &fakeHandle{location: "/tmp/first.ogg", release: make(chan struct{})}
	defer close(first.release)
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{first}}, Options{})
	require.NoError(t, s.Start(context.Background()))

	go func() { _, _ = s.Stop(context.Background()) }()
	require.Eventually(t, func() bool { return s.Snapshot().Phase == PhaseStopping }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Start(ctx), speecherrors.ErrCanceled)
}

func TestAutoStopAtCeiling(t *testing.T) {
	handle := &fakeHandle{location: "/tmp/take.ogg"}
	results := make(chan *CapturedAudio, 1)
	var ticks atomic.Int32

	s := NewSession(&fakeDevice{handles: []*fakeHandle{handle}}, StaticPermissions{Granted: true}, testLogger(), Options{
		MaxDurationSeconds: 60,
		TickInterval:       time.Millisecond,
		OnAutoStop: func(audio *CapturedAudio, err error) {
			assert.NoError(t, err)
			results <- audio
		},
		OnTick: func(int) { ticks.Add(1) },
	})
	require.NoError(t, s.Start(context.Background()))

	select {
	case audio := <-results:
		require.NotNil(t, audio)
		assert.Equal(t, 60, audio.DurationSeconds)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop itself")
	}

	assert.Equal(t, int32(60), ticks.Load())
	assert.Equal(t, PhaseStopped, s.Snapshot().Phase)
	assert.Equal(t, int32(1), handle.stopCalls.Load())
}

func TestAbortDiscardsArtifact(t *testing.T) {
	handle := &fakeHandle{location: "/tmp/take.ogg"}
	s := newTestSession(&fakeDevice{handles: []*fakeHandle{handle}}, Options{})
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Abort(context.Background()))
	assert.Equal(t, int32(1), handle.discardCalls.Load())
	assert.Equal(t, OutcomeAborted, s.Snapshot().Outcome)

	audio, err := s.Stop(context.Background())
	assert.Nil(t, audio)
	assert.NoError(t, err)

	s.Reset()
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}
