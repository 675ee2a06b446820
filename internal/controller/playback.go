package controller

import (
	"context"

	"github.com/gzehua/Klarity/internal/ctlerr"
	"github.com/gzehua/Klarity/internal/media"
)

// isStoppable reports the statuses from which Stop is a valid transition
// (spec.md §4.6's table row "PLAYING/PAUSED/COMPLETED/SEEKING").
func isStoppable(s PlaybackStatus) bool {
	switch s {
	case PlaybackPlaying, PlaybackPaused, PlaybackCompleted, PlaybackSeeking:
		return true
	default:
		return false
	}
}

// isSeekable reports the statuses SeekTo is valid from.
func isSeekable(s PlaybackStatus) bool {
	switch s {
	case PlaybackPlaying, PlaybackPaused, PlaybackStopped, PlaybackCompleted, PlaybackSeeking:
		return true
	default:
		return false
	}
}

func (c *Controller) play() error {
	return c.runJob(func(_ context.Context) error {
		c.stateMu.Lock()
		if c.status != StatusReady || c.playbackStatus != PlaybackStopped || !c.currentMedia.Continuous() {
			c.stateMu.Unlock()
			return nil
		}
		c.playbackStatus = PlaybackTransition
		bufLoop, playLoop := c.bufferLoop, c.playbackLoop
		c.bufferComplete = false
		c.stateMu.Unlock()
		c.publishState()

		// playLoop.Start starts the sampler itself as the first step of its
		// run loop (audio/audio-video playback loops), so Play does not
		// start it a second time here.
		if err := playLoop.Start(c.playbackExceptionHandler(), c.onPlaybackTimestamp, c.onPlaybackEndOfMedia); err != nil {
			return c.failReady(ctlerr.OpPlay, err)
		}
		if err := bufLoop.Start(c.bufferExceptionHandler(), c.onBufferTimestamp, c.onBufferEndOfMedia); err != nil {
			return c.failReady(ctlerr.OpPlay, err)
		}

		c.setStatus(StatusReady, PlaybackPlaying)
		return nil
	})
}

func (c *Controller) pause() error {
	return c.runJob(func(_ context.Context) error {
		c.stateMu.Lock()
		if c.status != StatusReady || c.playbackStatus != PlaybackPlaying || !c.currentMedia.Continuous() {
			c.stateMu.Unlock()
			return nil
		}
		c.playbackStatus = PlaybackTransition
		pl, playLoop := c.pipeline, c.playbackLoop
		c.stateMu.Unlock()
		c.publishState()

		playLoop.Stop()
		if sampler := samplerOf(pl); sampler != nil {
			_ = sampler.Stop()
		}

		c.setStatus(StatusReady, PlaybackPaused)
		return nil
	})
}

func (c *Controller) resume() error {
	return c.runJob(func(_ context.Context) error {
		c.stateMu.Lock()
		if c.status != StatusReady || c.playbackStatus != PlaybackPaused || !c.currentMedia.Continuous() {
			c.stateMu.Unlock()
			return nil
		}
		c.playbackStatus = PlaybackTransition
		playLoop := c.playbackLoop
		c.stateMu.Unlock()
		c.publishState()

		if err := playLoop.Start(c.playbackExceptionHandler(), c.onPlaybackTimestamp, c.onPlaybackEndOfMedia); err != nil {
			return c.failReady(ctlerr.OpResume, err)
		}

		c.setStatus(StatusReady, PlaybackPlaying)
		return nil
	})
}

func (c *Controller) stop() error {
	return c.runJob(func(_ context.Context) error {
		c.stateMu.Lock()
		if c.status != StatusReady || !isStoppable(c.playbackStatus) {
			c.stateMu.Unlock()
			return nil
		}
		c.playbackStatus = PlaybackTransition
		pl, bufLoop, playLoop := c.pipeline, c.bufferLoop, c.playbackLoop
		c.stateMu.Unlock()
		c.publishState()

		playLoop.Stop()
		bufLoop.Stop()
		if sampler := samplerOf(pl); sampler != nil {
			_ = sampler.Flush()
		}
		clearBuffers(pl)
		resetPools(pl)
		if err := resetDecoders(pl); err != nil {
			return c.failReady(ctlerr.OpStop, err)
		}

		c.zeroTimestamps()
		c.setStatus(StatusReady, PlaybackStopped)
		return nil
	})
}

func (c *Controller) seekTo(cmd SeekCommand) error {
	return c.runJob(func(_ context.Context) error {
		c.stateMu.Lock()
		if c.status != StatusReady || !isSeekable(c.playbackStatus) || !c.currentMedia.Continuous() {
			c.stateMu.Unlock()
			return nil
		}
		c.playbackStatus = PlaybackTransition
		pl, bufLoop, playLoop := c.pipeline, c.bufferLoop, c.playbackLoop
		c.stateMu.Unlock()
		c.publishState()
		c.setStatus(StatusReady, PlaybackSeeking)

		playLoop.Stop()
		bufLoop.Stop()
		if sampler := samplerOf(pl); sampler != nil {
			_ = sampler.Flush()
		}
		clearBuffers(pl)
		resetPools(pl)

		landedTs, err := seekPipeline(pl, cmd.Timestamp, cmd.KeyFramesOnly)
		if err != nil {
			return c.failReady(ctlerr.OpSeek, err)
		}

		c.stateMu.Lock()
		c.bufferComplete = false
		c.stateMu.Unlock()
		if err := bufLoop.Start(c.bufferExceptionHandler(), c.onBufferTimestamp, c.onBufferEndOfMedia); err != nil {
			return c.failReady(ctlerr.OpSeek, err)
		}

		c.bufferTimestamp.Store(int64(landedTs))
		c.playbackTimestamp.Store(int64(landedTs))
		c.events.publishBufferTimestamp(TimestampEvent{Timestamp: landedTs})
		c.events.publishPlaybackTimestamp(TimestampEvent{Timestamp: landedTs})

		c.setStatus(StatusReady, PlaybackPaused)
		return nil
	})
}

func (c *Controller) release() error {
	c.cancelCurrentJobAndWait()

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stateMu.Lock()
	if c.status == StatusEmpty {
		c.stateMu.Unlock()
		return nil
	}
	c.playbackStatus = PlaybackReleasing
	pl, bufLoop, playLoop := c.pipeline, c.bufferLoop, c.playbackLoop
	c.stateMu.Unlock()
	c.publishState()

	if playLoop != nil {
		playLoop.Close()
	}
	if bufLoop != nil {
		bufLoop.Close()
	}
	var closeErr error
	if pl != nil {
		closeErr = pl.Close()
	}

	c.stateMu.Lock()
	c.status = StatusEmpty
	c.playbackStatus = PlaybackNone
	c.currentMedia = media.Media{}
	c.pipeline = nil
	c.bufferLoop = nil
	c.playbackLoop = nil
	c.bufferComplete = false
	c.stateMu.Unlock()
	c.zeroTimestamps()
	c.publishState()
	return closeErr
}

// failReady reverts a failed Play/Pause/Resume/Stop/Seek transition back
// to a settled Ready status (rather than leaving TRANSITION/SEEKING
// stuck), publishes the error event, and returns err. Per spec.md §7,
// contract-violation-style runtime failures inside a command leave state
// otherwise unchanged; loop-surfaced exceptions instead auto-release
// (handled separately in exceptions.go).
func (c *Controller) failReady(op ctlerr.Op, err error) error {
	c.setStatus(StatusReady, PlaybackStopped)
	c.events.publishError(ErrorEvent{Op: op, Err: err})
	return err
}

