package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gzehua/Klarity/internal/ctlerr"
	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/media"
)

// fakeAudioDecoder emits a fixed run of frames then end-of-stream. SeekTo
// always lands exactly on the requested timestamp.
type fakeAudioDecoder struct {
	mu     sync.Mutex
	frames []frame.Frame
	pos    int
	closed bool
}

func newFakeAudioDecoder(n int, step time.Duration) *fakeAudioDecoder {
	d := &fakeAudioDecoder{}
	for i := 0; i < n; i++ {
		d.frames = append(d.frames, frame.Audio(time.Duration(i+1)*step, []byte{byte(i)}))
	}
	return d
}

func (d *fakeAudioDecoder) DecodeAudio() (frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos >= len(d.frames) {
		return frame.EndOfStream(), nil
	}
	f := d.frames[d.pos]
	d.pos++
	return f, nil
}

func (d *fakeAudioDecoder) SeekTo(ts time.Duration, _ bool) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = 0
	return ts, nil
}

func (d *fakeAudioDecoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = 0
	return nil
}

func (d *fakeAudioDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// fakeSampler is a no-op audio sink that just tracks Start/Stop/Close calls.
type fakeSampler struct {
	mu      sync.Mutex
	started bool
	closed  bool
	pos     time.Duration
}

func (s *fakeSampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSampler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *fakeSampler) Flush() error { return nil }

func (s *fakeSampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSampler) Write(f frame.Frame, _, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = f.Timestamp
	return nil
}

func (s *fakeSampler) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

var errProbe = errors.New("probe failed")

// fakeFactory constructs fakeAudioDecoder/fakeSampler pairs. blockProbe, if
// set, makes Probe block until ctx is canceled and then return ctx.Err(),
// simulating a slow probe that Release must be able to interrupt (S3).
type fakeFactory struct {
	media       media.Media
	probeErr    error
	blockProbe  bool
	frameCount  int
	frameStep   time.Duration
	lastDecoder *fakeAudioDecoder
	lastSampler *fakeSampler
}

func (f *fakeFactory) Probe(ctx context.Context, _ string, _, _ bool) (media.Media, error) {
	if f.blockProbe {
		<-ctx.Done()
		return media.Media{}, ctx.Err()
	}
	if f.probeErr != nil {
		return media.Media{}, f.probeErr
	}
	return f.media, nil
}

func (f *fakeFactory) NewAudioDecoder(_ context.Context, _ string) (decoder.AudioDecoder, error) {
	d := newFakeAudioDecoder(f.frameCount, f.frameStep)
	f.lastDecoder = d
	return d, nil
}

func (f *fakeFactory) NewVideoDecoder(_ context.Context, _ string, _ []string) (decoder.VideoDecoder, error) {
	return nil, errors.New("video not supported by this fake")
}

func (f *fakeFactory) NewSampler(_ context.Context, _ media.AudioFormat) (decoder.Sampler, error) {
	s := &fakeSampler{}
	f.lastSampler = s
	return s, nil
}

// sampled reads f's sampler start flag under its own mutex, since the
// playback loop's run goroutine mutates it concurrently with the test.
func sampled(f *fakeFactory) samplerSnapshot {
	f.lastSampler.mu.Lock()
	defer f.lastSampler.mu.Unlock()
	return samplerSnapshot{started: f.lastSampler.started}
}

type samplerSnapshot struct{ started bool }

func newAudioFactory(frameCount int) *fakeFactory {
	return &fakeFactory{
		media:      media.NewAudio(time.Duration(frameCount)*10*time.Millisecond, media.AudioFormat{SampleRate: 44100, Channels: 2}),
		frameCount: frameCount,
		frameStep:  10 * time.Millisecond,
	}
}

func prepareAudio(t *testing.T, c *Controller, frameCount int) *fakeFactory {
	t.Helper()
	factory := newAudioFactory(frameCount)
	c.factory = factory
	require.NoError(t, c.Execute(PrepareCommand{Location: "fake://track", AudioBufferSize: 32, VideoBufferSize: 32}))
	require.Equal(t, StatusReady, c.State().Status)
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)
	return factory
}

func newTestController(factory Factory) *Controller {
	return New(factory, DefaultOptions())
}

func TestPrepare_AudioOnly_ReachesReadyStopped(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 4)
	require.True(t, c.State().Media.HasAudio())
	require.False(t, c.State().Media.HasVideo())
}

func TestPrepare_NoopWhenNotEmpty(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 4)
	// A second Prepare while already Ready must be a silent no-op.
	require.NoError(t, c.Execute(PrepareCommand{Location: "fake://other"}))
	require.Equal(t, StatusReady, c.State().Status)
}

func TestPrepare_FailureRevertsToEmpty(t *testing.T) {
	c := newTestController(&fakeFactory{probeErr: errProbe})
	sub := c.Subscribe()

	err := c.Execute(PrepareCommand{Location: "fake://bad"})
	require.ErrorIs(t, err, errProbe)
	require.Equal(t, StatusEmpty, c.State().Status)

	select {
	case ev := <-sub.Error:
		require.Equal(t, "prepare media", string(ev.Op))
		require.ErrorIs(t, ev.Err, errProbe)
	case <-time.After(time.Second):
		t.Fatal("expected an ErrorEvent")
	}
}

func TestPlayPauseResume(t *testing.T) {
	c := newTestController(nil)
	factory := prepareAudio(t, c, 100)

	require.NoError(t, c.Execute(PlayCommand{}))
	require.Equal(t, PlaybackPlaying, c.State().PlaybackStatus)
	// The playback loop starts the sampler on its own run goroutine, so
	// give it a moment rather than asserting immediately.
	require.Eventually(t, func() bool { return sampled(factory).started }, time.Second, time.Millisecond)

	require.NoError(t, c.Execute(PauseCommand{}))
	require.Equal(t, PlaybackPaused, c.State().PlaybackStatus)
	require.False(t, sampled(factory).started)

	require.NoError(t, c.Execute(ResumeCommand{}))
	require.Equal(t, PlaybackPlaying, c.State().PlaybackStatus)
	require.Eventually(t, func() bool { return sampled(factory).started }, time.Second, time.Millisecond)

	require.NoError(t, c.Execute(StopCommand{}))
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)
}

func TestPlay_CompletesAtEndOfStream(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 2)
	sub := c.Subscribe()

	require.NoError(t, c.Execute(PlayCommand{}))

	select {
	case <-sub.PlaybackComplete:
	case <-time.After(2 * time.Second):
		t.Fatal("expected playback to complete")
	}
	require.Equal(t, PlaybackCompleted, c.State().PlaybackStatus)
}

func TestSeek_WhilePaused_LandsOnRequestedTimestamp(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 50)

	require.NoError(t, c.Execute(PlayCommand{}))
	require.NoError(t, c.Execute(PauseCommand{}))

	require.NoError(t, c.Execute(SeekCommand{Timestamp: 250 * time.Millisecond}))
	require.Equal(t, PlaybackPaused, c.State().PlaybackStatus)
	require.Equal(t, 250*time.Millisecond, c.PlaybackTimestamp())
	require.Equal(t, 250*time.Millisecond, c.BufferTimestamp())
}

func TestRelease_WhilePreparing_CancelsAndReturnsToEmpty(t *testing.T) {
	factory := &fakeFactory{blockProbe: true}
	c := newTestController(factory)

	prepareDone := make(chan error, 1)
	go func() {
		prepareDone <- c.Execute(PrepareCommand{Location: "fake://slow"})
	}()

	require.Eventually(t, func() bool {
		return c.State().Status == StatusPreparing
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Execute(ReleaseCommand{}))

	select {
	case err := <-prepareDone:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Prepare goroutine never unblocked")
	}
	require.Equal(t, StatusEmpty, c.State().Status)
}

func TestCommands_NoopOnWrongStatus(t *testing.T) {
	c := newTestController(nil)
	// Nothing prepared yet: everything but Prepare/Release must no-op.
	require.NoError(t, c.Execute(PlayCommand{}))
	require.Equal(t, PlaybackNone, c.State().PlaybackStatus)
	require.NoError(t, c.Execute(PauseCommand{}))
	require.NoError(t, c.Execute(ResumeCommand{}))
	require.NoError(t, c.Execute(SeekCommand{Timestamp: time.Second}))
}

func TestAttachDetachRenderer(t *testing.T) {
	c := newTestController(nil)
	r := fakeRendererStub{}
	require.NoError(t, c.AttachRenderer(r))
	require.ErrorIs(t, c.AttachRenderer(r), ErrRendererAttached)
	require.NotNil(t, c.DetachRenderer())
	require.NoError(t, c.AttachRenderer(r))
}

type fakeRendererStub struct{}

func (fakeRendererStub) Present(frame.Frame) error { return nil }

func TestChangeSettings_ValidatesSpeedFactor(t *testing.T) {
	c := newTestController(nil)
	require.ErrorIs(t, c.ChangeSettings(Settings{Volume: 1, SpeedFactor: 10}), ErrInvalidSpeedFactor)
	require.NoError(t, c.ChangeSettings(Settings{Volume: 0.5, Muted: true, SpeedFactor: 1.5}))
	require.Equal(t, 1.5, c.Settings().SpeedFactor)
}

func TestSubscribe_PrimesCurrentValues(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 4)
	require.NoError(t, c.ChangeSettings(Settings{Volume: 0.5, SpeedFactor: 1.5}))

	// Subscribe after state/settings have already changed: the new
	// subscriber must see the current snapshot without a further change.
	sub := c.Subscribe()

	select {
	case ev := <-sub.StateChanged:
		require.Equal(t, StatusReady, ev.Current.Status)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate StateChangedEvent on subscribe")
	}

	select {
	case ev := <-sub.SettingsChanged:
		require.Equal(t, 1.5, ev.Settings.SpeedFactor)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate SettingsChangedEvent on subscribe")
	}

	select {
	case <-sub.BufferTimestamp:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate buffer TimestampEvent on subscribe")
	}

	select {
	case <-sub.PlaybackTime:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate playback TimestampEvent on subscribe")
	}
}

func TestPlayPauseResumeSeek_NoopOnNonContinuousMedia(t *testing.T) {
	c := newTestController(nil)
	// Duration 0 makes this a valid but non-continuous media, e.g. a
	// single-image stream, even though it's shaped as audio here for
	// simplicity (Continuous() only looks at Duration).
	factory := &fakeFactory{
		media:      media.NewAudio(0, media.AudioFormat{SampleRate: 44100, Channels: 2}),
		frameCount: 4,
		frameStep:  10 * time.Millisecond,
	}
	c.factory = factory
	require.NoError(t, c.Execute(PrepareCommand{Location: "fake://image", AudioBufferSize: 32}))
	require.Equal(t, StatusReady, c.State().Status)
	require.False(t, c.State().Media.Continuous())

	require.NoError(t, c.Execute(PlayCommand{}))
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)

	require.NoError(t, c.Execute(PauseCommand{}))
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)

	require.NoError(t, c.Execute(ResumeCommand{}))
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)

	require.NoError(t, c.Execute(SeekCommand{Timestamp: time.Second}))
	require.Equal(t, PlaybackStopped, c.State().PlaybackStatus)
	require.Zero(t, c.PlaybackTimestamp())
}

func TestOnLoopException_AutoReleasesToEmpty(t *testing.T) {
	c := newTestController(nil)
	prepareAudio(t, c, 10)
	sub := c.Subscribe()

	require.NoError(t, c.Execute(PlayCommand{}))
	c.onLoopException(ctlerr.OpPlay, errors.New("boom"))

	select {
	case ev := <-sub.Error:
		require.Error(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("expected an ErrorEvent")
	}
	require.Equal(t, StatusEmpty, c.State().Status)
}
