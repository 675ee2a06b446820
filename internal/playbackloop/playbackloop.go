// Package playbackloop implements the playback loop described in spec.md
// §4.5: it drains a pipeline's buffer(s), hands frames to the sampler
// and/or renderer at the right pace, and reports playback timestamps and
// end-of-media the same way a buffer loop reports buffering progress.
package playbackloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/looprunner"
	"github.com/gzehua/Klarity/internal/pipeline"
)

// Exception wraps any sampler/renderer/buffer failure surfaced by a
// playback loop, matching spec.md §4.5's "wrapped as PlaybackLoopException(cause)".
type Exception struct {
	Cause error
}

func (e *Exception) Error() string { return fmt.Sprintf("playback loop: %v", e.Cause) }
func (e *Exception) Unwrap() error { return e.Cause }

// ErrAlreadyPlaying is returned by Start when a run is already in flight.
var ErrAlreadyPlaying = looprunner.ErrAlreadyRunning

// Loop is implemented by each of the three pipeline-shaped playback loops.
type Loop interface {
	// Start begins playback. onTimestamp is called with each newly
	// reported playback timestamp; onEndOfMedia is called exactly once
	// when playback has drained the end-of-stream sentinel(s);
	// onException is called (on a fresh goroutine) if playback fails.
	Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error
	// Stop cancels the running playback and blocks until it exits.
	Stop()
	// Close cancels without waiting.
	Close()
	// IsPlaying reports whether playback is currently in flight.
	IsPlaying() bool
}

// Clock provides the wall-clock pacing a video-only loop paces frames
// against. Production code uses a real-time clock; tests substitute a
// controllable one.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func dispatch(r *looprunner.Runner, run func(ctx context.Context) error, onException func(error), onEndOfMedia func()) error {
	return r.Start(run, func(err error) {
		if err == nil {
			if onEndOfMedia != nil {
				onEndOfMedia()
			}
			return
		}
		if onException != nil {
			onException(&Exception{Cause: err})
		}
	})
}

// Settings carries the mutable per-run playback controls a controller
// applies live (spec.md §4.6's changeSettings): gain, mute and speed.
// A playbackloop reads Get() once per frame, so a controller can update it
// mid-playback without restarting the loop.
type Settings struct {
	Gain  float64
	Speed float64
}

// SettingsSource is read once per frame by a playback loop.
type SettingsSource interface {
	Get() Settings
}

// StaticSettings implements SettingsSource with a fixed value, useful for
// tests and for callers that don't need live updates.
type StaticSettings Settings

func (s StaticSettings) Get() Settings { return Settings(s) }

// RendererSource is read once per video frame, so a controller's
// attachRenderer/detachRenderer takes effect on the very next frame
// without restarting the loop (spec.md §4.6's "the playback loop must
// observe renderer changes between frames").
type RendererSource interface {
	Get() decoder.Renderer
}

// StaticRenderer implements RendererSource with a fixed renderer.
type StaticRenderer struct{ Renderer decoder.Renderer }

func (r StaticRenderer) Get() decoder.Renderer { return r.Renderer }

// AudioLoop plays frames from an AudioPipeline, paced by the sampler's own
// clock: Sampler.Write blocks until the sampler is ready for the next
// frame, so the loop never paces independently.
type AudioLoop struct {
	p        *pipeline.AudioPipeline
	settings SettingsSource
	r        looprunner.Runner
}

// NewAudioLoop creates a playback loop over p, reading live gain/speed from settings.
func NewAudioLoop(p *pipeline.AudioPipeline, settings SettingsSource) *AudioLoop {
	if settings == nil {
		settings = StaticSettings{Gain: 1, Speed: 1}
	}
	return &AudioLoop{p: p, settings: settings}
}

func (l *AudioLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		if err := l.p.Sampler.Start(); err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := l.p.Buffer.TakeContext(ctx)
			if err != nil {
				return err
			}
			if f.IsEndOfStream() {
				return nil
			}
			s := l.settings.Get()
			if err := l.p.Sampler.Write(f, s.Gain, s.Speed); err != nil {
				return err
			}
			if onTimestamp != nil {
				onTimestamp(l.p.Sampler.Position())
			}
		}
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *AudioLoop) Stop()           { l.r.Stop() }
func (l *AudioLoop) Close()          { l.r.Close() }
func (l *AudioLoop) IsPlaying() bool { return l.r.Running() }

// VideoLoop plays frames from a VideoPipeline, pacing presentation to a
// wall clock scaled by the current speed factor, per spec.md §4.5. The
// pool block backing each frame is released once Present returns.
type VideoLoop struct {
	p        *pipeline.VideoPipeline
	renderer RendererSource
	settings SettingsSource
	clock    Clock
	r        looprunner.Runner
}

// NewVideoLoop creates a playback loop over p, presenting frames to
// whatever renderer is current per the given RendererSource.
func NewVideoLoop(p *pipeline.VideoPipeline, renderer RendererSource, settings SettingsSource) *VideoLoop {
	if settings == nil {
		settings = StaticSettings{Gain: 1, Speed: 1}
	}
	return &VideoLoop{p: p, renderer: renderer, settings: settings, clock: realClock{}}
}

// WithClock overrides the wall clock used for pacing, for tests.
func (l *VideoLoop) WithClock(c Clock) *VideoLoop {
	l.clock = c
	return l
}

func (l *VideoLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		start := l.clock.Now()
		var baseTimestamp time.Duration
		haveBase := false

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := l.p.Buffer.TakeContext(ctx)
			if err != nil {
				return err
			}
			if f.IsEndOfStream() {
				return nil
			}

			if !haveBase {
				baseTimestamp = f.Timestamp
				start = l.clock.Now()
				haveBase = true
			}

			s := l.settings.Get()
			speed := s.Speed
			if speed <= 0 {
				speed = 1
			}
			elapsedMedia := f.Timestamp - baseTimestamp
			targetWall := start.Add(time.Duration(float64(elapsedMedia) / speed))
			if wait := targetWall.Sub(l.clock.Now()); wait > 0 {
				if err := l.clock.Sleep(ctx, wait); err != nil {
					_ = l.p.Pool.Release(f.Data)
					return err
				}
			}

			var presentErr error
			if renderer := l.renderer.Get(); renderer != nil {
				presentErr = renderer.Present(f)
			}
			_ = l.p.Pool.Release(f.Data)
			if presentErr != nil {
				return presentErr
			}
			if onTimestamp != nil {
				onTimestamp(f.Timestamp)
			}
		}
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *VideoLoop) Stop()           { l.r.Stop() }
func (l *VideoLoop) Close()          { l.r.Close() }
func (l *VideoLoop) IsPlaying() bool { return l.r.Running() }

// AudioVideoLoop plays audio and video frames from an AudioVideoPipeline,
// using the sampler's Position() as the master clock (spec.md §4.5): video
// frames that lag the master clock by more than lateDropThreshold are
// dropped without presenting, and frames that lead it by more than
// earlyWaitCap are waited on for at most earlyWaitCap before presenting
// anyway, so a stalled audio clock can never stall video indefinitely.
type AudioVideoLoop struct {
	p                 *pipeline.AudioVideoPipeline
	renderer          RendererSource
	settings          SettingsSource
	clock             Clock
	lateDropThreshold time.Duration
	earlyWaitCap      time.Duration
	r                 looprunner.Runner
}

// NewAudioVideoLoop creates a playback loop over p with the given sync thresholds.
func NewAudioVideoLoop(p *pipeline.AudioVideoPipeline, renderer RendererSource, settings SettingsSource, lateDropThreshold, earlyWaitCap time.Duration) *AudioVideoLoop {
	if settings == nil {
		settings = StaticSettings{Gain: 1, Speed: 1}
	}
	return &AudioVideoLoop{
		p:                 p,
		renderer:          renderer,
		settings:          settings,
		clock:             realClock{},
		lateDropThreshold: lateDropThreshold,
		earlyWaitCap:      earlyWaitCap,
	}
}

// WithClock overrides the wall clock used for early-wait pacing, for tests.
func (l *AudioVideoLoop) WithClock(c Clock) *AudioVideoLoop {
	l.clock = c
	return l
}

func (l *AudioVideoLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		if err := l.p.Sampler.Start(); err != nil {
			return err
		}

		// childCtx is canceled the moment either stream fails, so the
		// sibling's blocked buffer call unblocks immediately instead of
		// running until it separately hits end-of-stream or stalls.
		childCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var wg sync.WaitGroup
		var once sync.Once
		var firstErr error
		fail := func(err error) {
			once.Do(func() {
				firstErr = err
				cancel()
			})
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := l.runAudio(childCtx, onTimestamp); err != nil {
				fail(err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := l.runVideo(childCtx); err != nil {
				fail(err)
			}
		}()
		wg.Wait()

		return firstErr
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *AudioVideoLoop) runAudio(ctx context.Context, onTimestamp func(time.Duration)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := l.p.AudioBuffer.TakeContext(ctx)
		if err != nil {
			return err
		}
		if f.IsEndOfStream() {
			return nil
		}
		s := l.settings.Get()
		if err := l.p.Sampler.Write(f, s.Gain, s.Speed); err != nil {
			return err
		}
		if onTimestamp != nil {
			onTimestamp(l.p.Sampler.Position())
		}
	}
}

func (l *AudioVideoLoop) runVideo(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := l.p.VideoBuffer.TakeContext(ctx)
		if err != nil {
			return err
		}
		if f.IsEndOfStream() {
			return nil
		}

		master := l.p.Sampler.Position()
		delta := f.Timestamp - master // positive: video is ahead of audio

		if delta < -l.lateDropThreshold {
			// Video has fallen too far behind; drop it without presenting.
			_ = l.p.VideoPool.Release(f.Data)
			continue
		}
		if delta > 0 {
			wait := delta
			if wait > l.earlyWaitCap {
				wait = l.earlyWaitCap
			}
			if err := l.clock.Sleep(ctx, wait); err != nil {
				_ = l.p.VideoPool.Release(f.Data)
				return err
			}
		}

		var presentErr error
		if renderer := l.renderer.Get(); renderer != nil {
			presentErr = renderer.Present(f)
		}
		_ = l.p.VideoPool.Release(f.Data)
		if presentErr != nil {
			return presentErr
		}
	}
}

func (l *AudioVideoLoop) Stop()           { l.r.Stop() }
func (l *AudioVideoLoop) Close()          { l.r.Close() }
func (l *AudioVideoLoop) IsPlaying() bool { return l.r.Running() }

var _ Loop = (*AudioLoop)(nil)
var _ Loop = (*VideoLoop)(nil)
var _ Loop = (*AudioVideoLoop)(nil)
