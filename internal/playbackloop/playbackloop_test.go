package playbackloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gzehua/Klarity/internal/corebuffer"
	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/framepool"
	"github.com/gzehua/Klarity/internal/pipeline"
)

type fakeSampler struct {
	mu       sync.Mutex
	written  []frame.Frame
	position time.Duration
	writeErr error
}

func (s *fakeSampler) Start() error { return nil }
func (s *fakeSampler) Stop() error  { return nil }
func (s *fakeSampler) Flush() error { return nil }
func (s *fakeSampler) Close() error { return nil }

func (s *fakeSampler) Write(f frame.Frame, gain, speed float64) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, f)
	s.position = f.Timestamp
	return nil
}

func (s *fakeSampler) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func TestAudioLoop_PlaysUntilEndOfStream(t *testing.T) {
	buf := corebuffer.New[frame.Frame](8)
	require.NoError(t, buf.Put(frame.Audio(10*time.Millisecond, []byte{1})))
	require.NoError(t, buf.Put(frame.Audio(20*time.Millisecond, []byte{2})))
	require.NoError(t, buf.Put(frame.EndOfStream()))

	sampler := &fakeSampler{}
	p := pipeline.NewAudioPipeline(nil, buf, sampler)
	loop := NewAudioLoop(p, StaticSettings{Gain: 1, Speed: 1})

	var timestamps []time.Duration
	done := make(chan struct{})
	require.NoError(t, loop.Start(
		func(err error) { t.Fatalf("unexpected exception: %v", err) },
		func(ts time.Duration) { timestamps = append(timestamps, ts) },
		func() { close(done) },
	))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for end of media")
	}

	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, timestamps)
}

func TestAudioLoop_WriteErrorWrapped(t *testing.T) {
	buf := corebuffer.New[frame.Frame](8)
	require.NoError(t, buf.Put(frame.Audio(1, []byte{1})))

	wantErr := errors.New("device gone")
	sampler := &fakeSampler{writeErr: wantErr}
	p := pipeline.NewAudioPipeline(nil, buf, sampler)
	loop := NewAudioLoop(p, nil)

	excCh := make(chan error, 1)
	require.NoError(t, loop.Start(func(err error) { excCh <- err }, nil, nil))

	select {
	case err := <-excCh:
		var exc *Exception
		require.ErrorAs(t, err, &exc)
		require.ErrorIs(t, err, wantErr)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exception")
	}
}

type fakeRenderer struct {
	mu       sync.Mutex
	presented []frame.Frame
}

func (r *fakeRenderer) Present(f frame.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presented = append(r.presented, f)
	return nil
}

// stepClock advances only when Sleep is called, so wall-clock pacing tests
// run instantly instead of sleeping in real time.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock { return &stepClock{now: time.Unix(0, 0)} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func TestVideoLoop_ReleasesPoolBlockAfterPresent(t *testing.T) {
	pool := framepool.New(2, 16)
	block, err := pool.Acquire()
	require.NoError(t, err)

	buf := corebuffer.New[frame.Frame](8)
	require.NoError(t, buf.Put(frame.Video(0, block)))
	require.NoError(t, buf.Put(frame.EndOfStream()))

	p := pipeline.NewVideoPipeline(nil, pool, buf)
	renderer := &fakeRenderer{}
	loop := NewVideoLoop(p, StaticRenderer{Renderer: renderer}, StaticSettings{Gain: 1, Speed: 1}).WithClock(newStepClock())

	done := make(chan struct{})
	require.NoError(t, loop.Start(
		func(err error) { t.Fatalf("unexpected exception: %v", err) },
		nil,
		func() { close(done) },
	))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for end of media")
	}

	require.Len(t, renderer.presented, 1)
	require.Equal(t, 2, pool.Len())
}

// TestAudioVideoLoop_AudioFailureCancelsVideo asserts that a sampler
// failure on the audio side promptly unblocks the video side's blocked
// buffer take, rather than waiting for it to separately reach end-of-stream
// or stall forever on an empty buffer.
func TestAudioVideoLoop_AudioFailureCancelsVideo(t *testing.T) {
	audioBuf := corebuffer.New[frame.Frame](8)
	require.NoError(t, audioBuf.Put(frame.Audio(1, []byte{1})))
	videoBuf := corebuffer.New[frame.Frame](8) // left empty: runVideo blocks here
	pool := framepool.New(2, 16)

	wantErr := errors.New("device gone")
	sampler := &fakeSampler{writeErr: wantErr}
	p := pipeline.NewAudioVideoPipeline(nil, nil, audioBuf, videoBuf, pool, sampler)
	renderer := &fakeRenderer{}
	loop := NewAudioVideoLoop(p, StaticRenderer{Renderer: renderer}, StaticSettings{Gain: 1, Speed: 1}, 40*time.Millisecond, 250*time.Millisecond).WithClock(newStepClock())

	excCh := make(chan error, 1)
	require.NoError(t, loop.Start(
		func(err error) { excCh <- err },
		nil,
		func() { t.Fatal("should not reach end of media") },
	))

	select {
	case err := <-excCh:
		var exc *Exception
		require.ErrorAs(t, err, &exc)
		require.ErrorIs(t, err, wantErr)
	case <-time.After(time.Second):
		t.Fatal("video stream blocked on an empty buffer instead of being canceled by the audio failure")
	}
}

func TestAudioVideoLoop_DropsLateVideoFrame(t *testing.T) {
	audioBuf := corebuffer.New[frame.Frame](8)
	videoBuf := corebuffer.New[frame.Frame](8)
	pool := framepool.New(2, 16)

	// The sampler's master clock starts at 500ms, well past the video
	// frame's 0ms timestamp plus a 40ms threshold, so the race between the
	// audio and video goroutines can't affect which branch is taken.
	require.NoError(t, audioBuf.Put(frame.EndOfStream()))

	block, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, videoBuf.Put(frame.Video(0, block)))
	require.NoError(t, videoBuf.Put(frame.EndOfStream()))

	sampler := &fakeSampler{position: 500 * time.Millisecond}
	p := pipeline.NewAudioVideoPipeline(nil, nil, audioBuf, videoBuf, pool, sampler)
	renderer := &fakeRenderer{}
	loop := NewAudioVideoLoop(p, StaticRenderer{Renderer: renderer}, StaticSettings{Gain: 1, Speed: 1}, 40*time.Millisecond, 250*time.Millisecond).WithClock(newStepClock())

	done := make(chan struct{})
	require.NoError(t, loop.Start(
		func(err error) { t.Fatalf("unexpected exception: %v", err) },
		nil,
		func() { close(done) },
	))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for end of media")
	}

	require.Empty(t, renderer.presented, "late video frame should have been dropped, not presented")
	require.Equal(t, 2, pool.Len())
}
