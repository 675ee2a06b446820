package controller

import (
	"sync"
	"time"

	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/pipeline"
)

// closerFunc adapts a bare func() error to an io.Closer-shaped value, used
// to record partially-built Prepare resources for atomicity rollback
// (spec.md's Testable Property 6) regardless of whether the underlying
// type's own Close returns an error.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func samplerOf(pl pipeline.Pipeline) decoder.Sampler {
	switch p := pl.(type) {
	case *pipeline.AudioPipeline:
		return p.Sampler
	case *pipeline.AudioVideoPipeline:
		return p.Sampler
	default:
		return nil
	}
}

// clearBuffers discards any frames left buffered without closing the
// buffer, per Stop's "clear buffers" side effect (spec.md §4.6).
func clearBuffers(pl pipeline.Pipeline) {
	switch p := pl.(type) {
	case *pipeline.AudioPipeline:
		p.Buffer.Clear()
	case *pipeline.VideoPipeline:
		p.Buffer.Clear()
	case *pipeline.AudioVideoPipeline:
		p.AudioBuffer.Clear()
		p.VideoBuffer.Clear()
	}
}

// resetPools returns every outstanding video block to its pool's free
// list. Callers must have already stopped the buffer loop that might be
// holding one, per framepool.Pool.Reset's contract.
func resetPools(pl pipeline.Pipeline) {
	switch p := pl.(type) {
	case *pipeline.VideoPipeline:
		p.Pool.Reset()
	case *pipeline.AudioVideoPipeline:
		p.VideoPool.Reset()
	}
}

// resetDecoders resets every decoder owned by pl, attempting all of them
// even if one fails, and returns the first error seen.
func resetDecoders(pl pipeline.Pipeline) error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	switch p := pl.(type) {
	case *pipeline.AudioPipeline:
		record(p.Decoder.Reset())
	case *pipeline.VideoPipeline:
		record(p.Decoder.Reset())
	case *pipeline.AudioVideoPipeline:
		record(p.AudioDecoder.Reset())
		record(p.VideoDecoder.Reset())
	}
	return first
}

// seekPipeline repositions every decoder pl owns to timestamp, running
// audio and video seeks concurrently for an AudioVideoPipeline, and
// returns the effective landed timestamp: max(returnedAudioTs,
// returnedVideoTs) for AudioVideo, or the single decoder's own result
// otherwise (spec.md §4.6's SeekTo side effects).
func seekPipeline(pl pipeline.Pipeline, timestamp time.Duration, keyFramesOnly bool) (time.Duration, error) {
	switch p := pl.(type) {
	case *pipeline.AudioPipeline:
		return p.Decoder.SeekTo(timestamp, keyFramesOnly)
	case *pipeline.VideoPipeline:
		return p.Decoder.SeekTo(timestamp, keyFramesOnly)
	case *pipeline.AudioVideoPipeline:
		var wg sync.WaitGroup
		var audioTs, videoTs time.Duration
		var audioErr, videoErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			audioTs, audioErr = p.AudioDecoder.SeekTo(timestamp, keyFramesOnly)
		}()
		go func() {
			defer wg.Done()
			videoTs, videoErr = p.VideoDecoder.SeekTo(timestamp, keyFramesOnly)
		}()
		wg.Wait()
		if audioErr != nil {
			return 0, audioErr
		}
		if videoErr != nil {
			return 0, videoErr
		}
		if audioTs > videoTs {
			return audioTs, nil
		}
		return videoTs, nil
	default:
		return 0, nil
	}
}
