// Package mediafactory wires internal/audiodecoder, internal/audiosink and
// internal/videosink into the controller.Factory contract cmd/klarityd
// constructs a Controller with.
package mediafactory

import (
	"context"
	"fmt"

	"github.com/gzehua/Klarity/internal/audiodecoder"
	"github.com/gzehua/Klarity/internal/audiosink"
	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/media"
)

// Factory implements controller.Factory using the audio codecs adapted from
// the original player (MP3/FLAC/M4A) and the beep-backed sampler. Video
// decode is not implemented by this repository — only video presentation
// (internal/videosink) is — so NewVideoDecoder always fails; every location
// this Factory can actually Prepare is audio-only.
type Factory struct {
	prober audiodecoder.Prober
}

// New constructs a Factory.
func New() *Factory {
	return &Factory{prober: audiodecoder.NewProber()}
}

// Probe inspects location, honoring ctx cancellation while the (currently
// synchronous, file-header-only) probe runs.
func (f *Factory) Probe(ctx context.Context, location string, findAudio, findVideo bool) (media.Media, error) {
	type result struct {
		m   media.Media
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := f.prober.Probe(location, findAudio, findVideo)
		done <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return media.Media{}, ctx.Err()
	case r := <-done:
		return r.m, r.err
	}
}

// NewAudioDecoder constructs an audio decoder for location.
func (f *Factory) NewAudioDecoder(ctx context.Context, location string) (decoder.AudioDecoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audiodecoder.NewAudioDecoder(location)
}

// NewVideoDecoder is unsupported: this repository's video path only
// implements presentation (internal/videosink), not decode.
func (f *Factory) NewVideoDecoder(_ context.Context, location string, _ []string) (decoder.VideoDecoder, error) {
	return nil, fmt.Errorf("mediafactory: video decode not supported (%q)", location)
}

// NewSampler constructs the beep-backed audio sink for format.
func (f *Factory) NewSampler(ctx context.Context, format media.AudioFormat) (decoder.Sampler, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := audiosink.New(format)
	if err != nil {
		return nil, err
	}
	return s, nil
}
