// Package bufferloop implements the buffer loop described in spec.md §4.4:
// it drives a pipeline's decoder(s), fills the bounded buffer(s), reports
// per-frame timestamps, and signals end-of-media.
package bufferloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/looprunner"
	"github.com/gzehua/Klarity/internal/pipeline"
)

// Exception wraps any decoder/buffer/pool failure surfaced by a buffer
// loop, matching spec.md §4.4's "wrapped as BufferLoopException(cause)".
type Exception struct {
	Cause error
}

func (e *Exception) Error() string { return fmt.Sprintf("buffer loop: %v", e.Cause) }
func (e *Exception) Unwrap() error { return e.Cause }

// ErrAlreadyBuffering is returned by Start when a run is already in flight.
var ErrAlreadyBuffering = looprunner.ErrAlreadyRunning

// Loop is implemented by each of the three pipeline-shaped buffer loops.
type Loop interface {
	// Start begins decoding. onTimestamp is called with each newly
	// reported buffer timestamp; onEndOfMedia is called exactly once when
	// every stream has reached end-of-stream; onException is called
	// (on a fresh goroutine) if decoding fails.
	Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error
	// Stop cancels the running decode work and blocks until it exits.
	Stop()
	// Close cancels without waiting.
	Close()
	// IsBuffering reports whether decoding is currently in flight.
	IsBuffering() bool
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

// AudioLoop buffers frames for an AudioPipeline.
type AudioLoop struct {
	p *pipeline.AudioPipeline
	r looprunner.Runner
}

// NewAudioLoop creates a buffer loop over p.
func NewAudioLoop(p *pipeline.AudioPipeline) *AudioLoop { return &AudioLoop{p: p} }

func (l *AudioLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := l.p.Decoder.DecodeAudio()
			if err != nil {
				return err
			}
			if f.IsEndOfStream() {
				return l.p.Buffer.PutContext(ctx, frame.EndOfStream())
			}
			if err := l.p.Buffer.PutContext(ctx, f); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if onTimestamp != nil {
				onTimestamp(f.Timestamp)
			}
		}
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *AudioLoop) Stop()             { l.r.Stop() }
func (l *AudioLoop) Close()            { l.r.Close() }
func (l *AudioLoop) IsBuffering() bool { return l.r.Running() }

// VideoLoop buffers frames for a VideoPipeline.
type VideoLoop struct {
	p *pipeline.VideoPipeline
	r looprunner.Runner
}

// NewVideoLoop creates a buffer loop over p.
func NewVideoLoop(p *pipeline.VideoPipeline) *VideoLoop { return &VideoLoop{p: p} }

func (l *VideoLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, err := l.p.Pool.AcquireContext(ctx)
			if err != nil {
				return err
			}

			f, err := l.p.Decoder.DecodeVideo(block)
			if err != nil {
				// Release the block back before surfacing the failure,
				// per spec.md §4.4.
				_ = l.p.Pool.Release(block)
				return err
			}
			if f.IsEndOfStream() {
				_ = l.p.Pool.Release(block)
				return l.p.Buffer.PutContext(ctx, frame.EndOfStream())
			}
			if err := l.p.Buffer.PutContext(ctx, f); err != nil {
				_ = l.p.Pool.Release(block)
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if onTimestamp != nil {
				onTimestamp(f.Timestamp)
			}
		}
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *VideoLoop) Stop()             { l.r.Stop() }
func (l *VideoLoop) Close()            { l.r.Close() }
func (l *VideoLoop) IsBuffering() bool { return l.r.Running() }

// AudioVideoLoop runs two cooperating decode tasks (audio and video)
// sharing a strictly-monotonic lastReportedTimestamp, per spec.md §4.4.
type AudioVideoLoop struct {
	p *pipeline.AudioVideoPipeline
	r looprunner.Runner
}

// NewAudioVideoLoop creates a buffer loop over p.
func NewAudioVideoLoop(p *pipeline.AudioVideoPipeline) *AudioVideoLoop {
	return &AudioVideoLoop{p: p}
}

func (l *AudioVideoLoop) Start(onException func(error), onTimestamp func(time.Duration), onEndOfMedia func()) error {
	run := func(ctx context.Context) error {
		var lastReported atomic.Int64 // nanoseconds; zero value means "nothing reported yet"
		var lastReportedSeen atomic.Bool

		report := func(ts time.Duration) {
			for {
				seen := lastReportedSeen.Load()
				current := time.Duration(lastReported.Load())
				if seen && ts <= current {
					return
				}
				if lastReported.CompareAndSwap(int64(current), int64(ts)) {
					lastReportedSeen.Store(true)
					if onTimestamp != nil {
						onTimestamp(ts)
					}
					return
				}
			}
		}

		// childCtx is canceled the moment either stream fails, so the
		// sibling's blocked buffer/pool call unblocks immediately instead
		// of running until it separately hits end-of-stream or stalls.
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
			if err := l.runAudio(childCtx, report); err != nil {
				fail(err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := l.runVideo(childCtx, report); err != nil {
				fail(err)
			}
		}()
		wg.Wait()

		return firstErr
	}
	return dispatch(&l.r, run, onException, onEndOfMedia)
}

func (l *AudioVideoLoop) runAudio(ctx context.Context, report func(time.Duration)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := l.p.AudioDecoder.DecodeAudio()
		if err != nil {
			return err
		}
		if f.IsEndOfStream() {
			return l.p.AudioBuffer.PutContext(ctx, frame.EndOfStream())
		}
		if err := l.p.AudioBuffer.PutContext(ctx, f); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		report(f.Timestamp)
	}
}

func (l *AudioVideoLoop) runVideo(ctx context.Context, report func(time.Duration)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := l.p.VideoPool.AcquireContext(ctx)
		if err != nil {
			return err
		}

		f, err := l.p.VideoDecoder.DecodeVideo(block)
		if err != nil {
			_ = l.p.VideoPool.Release(block)
			return err
		}
		if f.IsEndOfStream() {
			_ = l.p.VideoPool.Release(block)
			return l.p.VideoBuffer.PutContext(ctx, frame.EndOfStream())
		}
		if err := l.p.VideoBuffer.PutContext(ctx, f); err != nil {
			_ = l.p.VideoPool.Release(block)
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		report(f.Timestamp)
	}
}

func (l *AudioVideoLoop) Stop()             { l.r.Stop() }
func (l *AudioVideoLoop) Close()            { l.r.Close() }
func (l *AudioVideoLoop) IsBuffering() bool { return l.r.Running() }

var _ Loop = (*AudioLoop)(nil)
var _ Loop = (*VideoLoop)(nil)
var _ Loop = (*AudioVideoLoop)(nil)
