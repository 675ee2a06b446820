package audiodecoder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gzehua/Klarity/internal/media"
)

// Prober inspects a location's audio shape without decoding it, in the
// decoder.Prober shape. Video probing is not supported by this package;
// video presentation is handled separately by internal/videosink.
type Prober struct{}

// NewProber constructs a Prober. It carries no state.
func NewProber() Prober { return Prober{} }

// Probe opens location just long enough to read its format and length.
// When findVideo is set together with findAudio, only the audio stream is
// probed and the result is audio-only; findVideo alone is an error.
func (Prober) Probe(location string, findAudio, findVideo bool) (media.Media, error) {
	if !findAudio {
		if findVideo {
			return media.Media{}, fmt.Errorf("audiodecoder: video probing not supported for %q", location)
		}
		return media.Media{}, errors.New("audiodecoder: probe requested neither audio nor video")
	}

	streamer, format, _, err := openStream(location)
	if err != nil {
		return media.Media{}, err
	}
	defer streamer.Close()

	duration := format.SampleRate.D(streamer.Len())
	return media.NewAudio(duration, media.AudioFormat{SampleRate: int(format.SampleRate), Channels: 2}), nil
}

// SupportsExtension reports whether location's extension is one of the
// codecs this package decodes.
func SupportsExtension(location string) bool {
	switch strings.ToLower(filepath.Ext(location)) {
	case extMP3, extFLAC, extM4A, extMP4:
		return true
	default:
		return false
	}
}
