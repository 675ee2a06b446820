// Package decoder defines the external-collaborator contracts consumed by
// the playback core, per spec.md §6: concrete decoders, the audio sampler,
// and the video renderer are out of scope for this module — only their
// interfaces are. Callers supply concrete implementations (see
// internal/audiodecoder, internal/audiosink, internal/videosink for the
// ones this repository wires up).
package decoder

import (
	"time"

	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/media"
)

// AudioDecoder decodes one audio stream, frame by frame.
type AudioDecoder interface {
	// DecodeAudio decodes the next audio frame, or returns the
	// end-of-stream sentinel once the stream is exhausted.
	DecodeAudio() (frame.Frame, error)
	// SeekTo repositions the stream and returns the timestamp actually
	// landed on (which may differ from the requested one, e.g. when
	// keyframesOnly forces alignment to the nearest keyframe).
	SeekTo(timestamp time.Duration, keyframesOnly bool) (time.Duration, error)
	// Reset returns the decoder to a freshly-probed, unstarted state.
	Reset() error
	// Close releases all resources. Idempotent.
	Close() error
}

// VideoDecoder decodes one video stream, frame by frame, writing raw
// picture data into a pool-owned destination block.
type VideoDecoder interface {
	// DecodeVideo decodes the next video frame into dest, or returns the
	// end-of-stream sentinel once the stream is exhausted. dest is sized
	// to media.VideoFormat.BufferCapacity and owned by a framepool.Pool;
	// the decoder must not retain dest past the call.
	DecodeVideo(dest []byte) (frame.Frame, error)
	SeekTo(timestamp time.Duration, keyframesOnly bool) (time.Duration, error)
	Reset() error
	Close() error
}

// Prober probes a location for its media shape without starting decode.
// findAudio/findVideo let the caller ask for only the streams it needs
// (e.g. an audio-only pipeline never asks for a video stream).
type Prober interface {
	Probe(location string, findAudio, findVideo bool) (media.Media, error)
}

// Sampler is the audio presentation sink: it owns its own wall clock and
// accepts audio frames to play. All operations may block (they perform
// I/O against an audio device or equivalent).
type Sampler interface {
	Start() error
	Stop() error
	// Flush discards any buffered-but-not-yet-played audio.
	Flush() error
	Close() error
	// Write hands one audio frame to the sampler for playback, scaled by
	// gain (0 implements mute) and speed (spec.md's playbackSpeedFactor).
	// Write blocks until the sampler has accepted the frame.
	Write(f frame.Frame, gain, speed float64) error
	// Position reports the sampler's own playback clock, used by the
	// playback loop to report playbackTimestamp and, in AudioVideo
	// pipelines, as the video sync master clock.
	Position() time.Duration
}

// Renderer is the video presentation sink. Present must return only after
// it is safe for the caller to reuse/release the frame's backing data.
type Renderer interface {
	Present(f frame.Frame) error
}
