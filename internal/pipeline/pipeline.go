// Package pipeline defines the per-media resource bundle described in
// spec.md §4.3: three distinct shapes (audio-only, video-only, audio+video)
// deliberately kept as separate Go types rather than one interface with
// optional fields, because their owned resource sets differ (spec.md §9).
package pipeline

import (
	"errors"

	"github.com/gzehua/Klarity/internal/corebuffer"
	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/framepool"
)

// Pipeline is implemented by all three shapes so the controller can close
// whichever one it is holding without a type switch at every call site.
// Nothing else is shared behind this interface — spec.md §9 forbids
// unifying decoder/buffer access behind it.
type Pipeline interface {
	// Close releases every owned component in reverse construction order,
	// returning the first error encountered (if any) while still
	// attempting to close the rest.
	Close() error
}

// AudioPipeline bundles an audio decoder, its frame buffer, and the
// sampler that consumes it.
type AudioPipeline struct {
	Decoder decoder.AudioDecoder
	Buffer  *corebuffer.Buffer[frame.Frame]
	Sampler decoder.Sampler
}

// NewAudioPipeline constructs an AudioPipeline. Ownership of dec, buf, and
// sampler transfers to the returned Pipeline.
func NewAudioPipeline(dec decoder.AudioDecoder, buf *corebuffer.Buffer[frame.Frame], sampler decoder.Sampler) *AudioPipeline {
	return &AudioPipeline{Decoder: dec, Buffer: buf, Sampler: sampler}
}

// Close closes the sampler, then the buffer, then the decoder — the
// reverse of construction order.
func (p *AudioPipeline) Close() error {
	return firstErr(
		closeOrNil(p.Sampler),
		func() error { p.Buffer.Close(); return nil },
		p.Decoder.Close,
	)
}

// VideoPipeline bundles a video decoder, the raw-block pool it decodes
// into, and the frame buffer downstream of it.
type VideoPipeline struct {
	Decoder decoder.VideoDecoder
	Pool    *framepool.Pool
	Buffer  *corebuffer.Buffer[frame.Frame]
}

// NewVideoPipeline constructs a VideoPipeline.
func NewVideoPipeline(dec decoder.VideoDecoder, pool *framepool.Pool, buf *corebuffer.Buffer[frame.Frame]) *VideoPipeline {
	return &VideoPipeline{Decoder: dec, Pool: pool, Buffer: buf}
}

// Close closes the buffer, then the pool, then the decoder.
func (p *VideoPipeline) Close() error {
	return firstErr(
		func() error { p.Buffer.Close(); return nil },
		func() error { p.Pool.Close(); return nil },
		p.Decoder.Close,
	)
}

// AudioVideoPipeline bundles independent audio and video decoders and
// buffers, the video pool, and the shared sampler.
type AudioVideoPipeline struct {
	AudioDecoder decoder.AudioDecoder
	VideoDecoder decoder.VideoDecoder
	AudioBuffer  *corebuffer.Buffer[frame.Frame]
	VideoBuffer  *corebuffer.Buffer[frame.Frame]
	VideoPool    *framepool.Pool
	Sampler      decoder.Sampler
}

// NewAudioVideoPipeline constructs an AudioVideoPipeline.
func NewAudioVideoPipeline(
	audioDec decoder.AudioDecoder,
	videoDec decoder.VideoDecoder,
	audioBuf, videoBuf *corebuffer.Buffer[frame.Frame],
	pool *framepool.Pool,
	sampler decoder.Sampler,
) *AudioVideoPipeline {
	return &AudioVideoPipeline{
		AudioDecoder: audioDec,
		VideoDecoder: videoDec,
		AudioBuffer:  audioBuf,
		VideoBuffer:  videoBuf,
		VideoPool:    pool,
		Sampler:      sampler,
	}
}

// Close tears down both streams' resources in reverse construction order
// (sampler, pool, video buffer, audio buffer, video decoder, audio decoder),
// attempting every step even after the first failure, and returns the
// first error seen.
func (p *AudioVideoPipeline) Close() error {
	return firstErr(
		closeOrNil(p.Sampler),
		func() error { p.VideoPool.Close(); return nil },
		func() error { p.VideoBuffer.Close(); return nil },
		func() error { p.AudioBuffer.Close(); return nil },
		p.VideoDecoder.Close,
		p.AudioDecoder.Close,
	)
}

func closeOrNil(s decoder.Sampler) func() error {
	return func() error {
		if s == nil {
			return nil
		}
		return s.Close()
	}
}

// firstErr calls every step regardless of earlier failures and returns the
// first non-nil error, matching spec.md §4.3's "propagates the first error
// if any but still attempts the remainder".
func firstErr(steps ...func() error) error {
	var first error
	for _, step := range steps {
		if err := step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ErrUnknownVariant names a Pipeline whose concrete type is none of the
// three shapes above. The controller's helpers that switch on the concrete
// type do not return it; their default case is a no-op.
var ErrUnknownVariant = errors.New("pipeline: unknown variant")
