package controller

import (
	"context"

	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/media"
)

// Factory constructs the external collaborators a Prepare command needs:
// the probe, and the decoder(s)/sampler matching the probed media's shape
// (spec.md §6's Decoder/Sampler contracts). Concrete wiring lives in
// internal/audiodecoder/internal/audiosink; the controller only depends on
// this interface, so it can be tested against a fake.
//
// Every method takes a context so a Prepare in flight can be interrupted
// by a concurrent Release (spec.md's S3 scenario): implementations that
// perform blocking I/O should select on ctx.Done() where practical.
type Factory interface {
	// Probe inspects location without starting decode.
	Probe(ctx context.Context, location string, findAudio, findVideo bool) (media.Media, error)
	// NewAudioDecoder constructs a decoder for location's audio stream.
	NewAudioDecoder(ctx context.Context, location string) (decoder.AudioDecoder, error)
	// NewVideoDecoder constructs a decoder for location's video stream,
	// preferring the given hardware acceleration candidates in order.
	NewVideoDecoder(ctx context.Context, location string, hwAccelCandidates []string) (decoder.VideoDecoder, error)
	// NewSampler constructs the audio presentation sink for the given format.
	NewSampler(ctx context.Context, format media.AudioFormat) (decoder.Sampler, error)
}
