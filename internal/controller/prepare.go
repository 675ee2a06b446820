package controller

import (
	"context"

	"github.com/gzehua/Klarity/internal/bufferloop"
	"github.com/gzehua/Klarity/internal/corebuffer"
	"github.com/gzehua/Klarity/internal/ctlerr"
	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/framepool"
	"github.com/gzehua/Klarity/internal/media"
	"github.com/gzehua/Klarity/internal/pipeline"
	"github.com/gzehua/Klarity/internal/playbackloop"
)

// prepare implements spec.md §4.6's Prepare transition: Empty -> Preparing
// -> Ready/STOPPED on success, or back to Empty on failure with every
// partially-built resource closed in reverse order (Testable Property 6).
// Prepare fires only from Empty; any other status is a silent no-op.
func (c *Controller) prepare(cmd PrepareCommand) error {
	c.stateMu.Lock()
	if c.status != StatusEmpty {
		c.stateMu.Unlock()
		return nil
	}
	c.status = StatusPreparing
	c.stateMu.Unlock()
	c.publishState()

	err := c.runJob(func(ctx context.Context) error {
		return c.buildPipeline(ctx, cmd)
	})
	if err != nil {
		c.setStatus(StatusEmpty, PlaybackNone)
		c.events.publishError(ErrorEvent{Op: ctlerr.OpPrepare, Err: err})
		return err
	}
	return nil
}

// buildPipeline does the actual probing and construction work, rolling
// back everything it built if any step fails or ctx is canceled midway
// (a concurrent Release, per the S3 scenario).
func (c *Controller) buildPipeline(ctx context.Context, cmd PrepareCommand) (err error) {
	m, err := c.factory.Probe(ctx, cmd.Location, true, true)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var built []closerFunc
	defer func() {
		if err != nil {
			for i := len(built) - 1; i >= 0; i-- {
				_ = built[i]()
			}
		}
	}()

	var pl pipeline.Pipeline
	var bufLoop bufferloop.Loop
	var playLoop playbackloop.Loop

	switch m.Kind {
	case media.KindAudio:
		pl, bufLoop, playLoop, err = c.buildAudioOnly(ctx, cmd, m, &built)
	case media.KindVideo:
		pl, bufLoop, playLoop, err = c.buildVideoOnly(ctx, cmd, m, &built)
	case media.KindAudioVideo:
		pl, bufLoop, playLoop, err = c.buildAudioVideo(ctx, cmd, m, &built)
	}
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	c.stateMu.Lock()
	c.currentMedia = m
	c.pipeline = pl
	c.bufferLoop = bufLoop
	c.playbackLoop = playLoop
	c.status = StatusReady
	c.playbackStatus = PlaybackStopped
	c.bufferComplete = false
	c.stateMu.Unlock()
	c.zeroTimestamps()
	c.publishState()
	return nil
}

func (c *Controller) buildAudioOnly(ctx context.Context, cmd PrepareCommand, m media.Media, built *[]closerFunc) (pipeline.Pipeline, bufferloop.Loop, playbackloop.Loop, error) {
	dec, err := c.factory.NewAudioDecoder(ctx, cmd.Location)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, dec.Close)
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	sampler, err := c.factory.NewSampler(ctx, m.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, sampler.Close)

	buf := corebuffer.New[frame.Frame](cmd.AudioBufferSize)
	*built = append(*built, func() error { buf.Close(); return nil })

	ap := pipeline.NewAudioPipeline(dec, buf, sampler)
	return ap, bufferloop.NewAudioLoop(ap), playbackloop.NewAudioLoop(ap, c.settingsSourceValue()), nil
}

func (c *Controller) buildVideoOnly(ctx context.Context, cmd PrepareCommand, m media.Media, built *[]closerFunc) (pipeline.Pipeline, bufferloop.Loop, playbackloop.Loop, error) {
	dec, err := c.factory.NewVideoDecoder(ctx, cmd.Location, cmd.HardwareAccelerationCandidates)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, dec.Close)
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	pool := framepool.New(c.opts.VideoPoolSize, m.VideoFormat.BufferCapacity)
	*built = append(*built, func() error { pool.Close(); return nil })

	buf := corebuffer.New[frame.Frame](cmd.VideoBufferSize)
	*built = append(*built, func() error { buf.Close(); return nil })

	vp := pipeline.NewVideoPipeline(dec, pool, buf)
	playLoop := playbackloop.NewVideoLoop(vp, c.rendererSourceValue(), c.settingsSourceValue())
	return vp, bufferloop.NewVideoLoop(vp), playLoop, nil
}

func (c *Controller) buildAudioVideo(ctx context.Context, cmd PrepareCommand, m media.Media, built *[]closerFunc) (pipeline.Pipeline, bufferloop.Loop, playbackloop.Loop, error) {
	audioDec, err := c.factory.NewAudioDecoder(ctx, cmd.Location)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, audioDec.Close)
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	videoDec, err := c.factory.NewVideoDecoder(ctx, cmd.Location, cmd.HardwareAccelerationCandidates)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, videoDec.Close)
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	sampler, err := c.factory.NewSampler(ctx, m.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	*built = append(*built, sampler.Close)

	pool := framepool.New(c.opts.VideoPoolSize, m.VideoFormat.BufferCapacity)
	*built = append(*built, func() error { pool.Close(); return nil })

	audioBuf := corebuffer.New[frame.Frame](cmd.AudioBufferSize)
	*built = append(*built, func() error { audioBuf.Close(); return nil })
	videoBuf := corebuffer.New[frame.Frame](cmd.VideoBufferSize)
	*built = append(*built, func() error { videoBuf.Close(); return nil })

	avp := pipeline.NewAudioVideoPipeline(audioDec, videoDec, audioBuf, videoBuf, pool, sampler)
	playLoop := playbackloop.NewAudioVideoLoop(avp, c.rendererSourceValue(), c.settingsSourceValue(), c.opts.LateDropThreshold, c.opts.EarlyWaitCap)
	return avp, bufferloop.NewAudioVideoLoop(avp), playLoop, nil
}
