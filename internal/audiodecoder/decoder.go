// Package audiodecoder adapts the beep-based container/codec decoders
// (MP3 via go-mp3, FLAC via beep's own flac subpackage, M4A/MP4 via go-m4a
// with AAC or ALAC payloads) into the decoder.AudioDecoder and
// decoder.Prober contracts internal/controller depends on.
//
// Frame.Bytes carries interleaved 16-bit little-endian stereo PCM at the
// probed sample rate — spec.md leaves the wire/byte-level layout of frames
// unspecified, so this is the convention audiosink.Sampler decodes back.
package audiodecoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"

	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/media"
)

const (
	extMP3 = ".mp3"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP4  = ".mp4"
)

// decodeChunkFrames bounds how many stereo sample pairs DecodeAudio pulls
// per call, i.e. how many samples one frame.Frame carries.
const decodeChunkFrames = 4096

// openStream opens location and dispatches to the codec matching its
// extension, returning a seekable beep stream, its format and the codec
// name. Closing the stream closes the underlying file.
func openStream(location string) (beep.StreamSeekCloser, beep.Format, string, error) {
	ext := strings.ToLower(filepath.Ext(location))

	f, err := os.Open(location)
	if err != nil {
		return nil, beep.Format{}, "", err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	var codec string

	switch ext {
	case extMP3:
		streamer, format, err = decodeGoMP3(f)
		codec = "MP3"
	case extFLAC:
		if err = skipID3v2(f); err == nil {
			streamer, format, err = flac.Decode(f)
		}
		codec = "FLAC"
	case extM4A, extMP4:
		streamer, format, codec, err = decodeM4A(f)
	default:
		f.Close()
		return nil, beep.Format{}, "", fmt.Errorf("audiodecoder: unsupported format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, "", err
	}
	return streamer, format, codec, nil
}

// skipID3v2 skips a leading ID3v2 tag, which some taggers prepend even to
// FLAC files even though the FLAC decoder does not expect one.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if n < 10 {
			_, serr := r.Seek(0, io.SeekStart)
			return serr
		}
		return err
	}
	if string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}

// AudioDecoder decodes one audio file, frame by frame, in the
// decoder.AudioDecoder shape.
type AudioDecoder struct {
	mu       sync.Mutex
	location string
	streamer beep.StreamSeekCloser
	format   beep.Format
	scratch  [][2]float64
}

// NewAudioDecoder opens location's audio stream.
func NewAudioDecoder(location string) (*AudioDecoder, error) {
	streamer, format, _, err := openStream(location)
	if err != nil {
		return nil, err
	}
	return &AudioDecoder{
		location: location,
		streamer: streamer,
		format:   format,
		scratch:  make([][2]float64, decodeChunkFrames),
	}, nil
}

// DecodeAudio decodes the next chunk of PCM into a Frame, or returns the
// end-of-stream sentinel once the stream is exhausted.
func (d *AudioDecoder) DecodeAudio() (frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.streamer.Stream(d.scratch)
	if n == 0 {
		if !ok {
			if err := d.streamer.Err(); err != nil {
				return frame.Frame{}, err
			}
			return frame.EndOfStream(), nil
		}
		return frame.EndOfStream(), nil
	}

	ts := d.format.SampleRate.D(d.streamer.Position())
	return frame.Audio(ts, encodePCM16(d.scratch[:n])), nil
}

// SeekTo repositions the underlying stream to the requested timestamp,
// clamped to the stream's length, and returns the position the stream
// reports after seeking. For M4A that is the container sample boundary the
// seek landed on, which can differ from the requested timestamp.
func (d *AudioDecoder) SeekTo(timestamp time.Duration, _ bool) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.format.SampleRate.N(timestamp)
	if pos < 0 {
		pos = 0
	}
	if max := d.streamer.Len(); pos > max {
		pos = max
	}
	if err := d.streamer.Seek(pos); err != nil {
		return 0, err
	}
	return d.format.SampleRate.D(d.streamer.Position()), nil
}

// Reset returns the decoder to its unstarted state.
func (d *AudioDecoder) Reset() error {
	_, err := d.SeekTo(0, false)
	return err
}

// Close releases the underlying file/decoder. It is not idempotent: a
// second call closes the file again and returns that error.
func (d *AudioDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamer.Close()
}

// Format reports the sample rate/channel layout DecodeAudio's frames are
// encoded at, for constructing a matching audiosink.Sampler.
func (d *AudioDecoder) Format() media.AudioFormat {
	return media.AudioFormat{SampleRate: int(d.format.SampleRate), Channels: 2}
}

// Duration reports the stream's total length.
func (d *AudioDecoder) Duration() time.Duration {
	return d.format.SampleRate.D(d.streamer.Len())
}

// encodePCM16 converts stereo float64 samples in [-1,1] to interleaved
// 16-bit little-endian PCM bytes.
func encodePCM16(samples [][2]float64) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(clampInt16(s[0])))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(clampInt16(s[1])))
	}
	return buf
}

func clampInt16(v float64) int16 {
	switch {
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(v * 32767)
}
