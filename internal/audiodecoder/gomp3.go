package audiodecoder

import (
	"io"

	"github.com/gopxl/beep/v2"
	gomp3 "github.com/llehouerou/go-mp3"
)

// goMP3Decoder wraps llehouerou/go-mp3 to implement beep.StreamSeekCloser.
// go-mp3 always outputs 16-bit stereo PCM regardless of the source's own
// channel count.
type goMP3Decoder struct {
	decoder *gomp3.Decoder
	closer  io.Closer
	raw     []byte
	err     error
}

// decodeGoMP3 creates a decoder for an MP3 stream.
func decodeGoMP3(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	decoder, err := gomp3.NewDecoder(rc)
	if err != nil {
		return nil, beep.Format{}, err
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(decoder.SampleRate()),
		NumChannels: 2,
		Precision:   2,
	}

	return &goMP3Decoder{decoder: decoder, closer: rc, raw: make([]byte, 4*4096)}, format, nil
}

// Stream reads audio samples into the provided buffer.
func (d *goMP3Decoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}

	for n < len(samples) {
		want := (len(samples) - n) * 4
		if want > len(d.raw) {
			want = len(d.raw)
		}
		read, err := io.ReadFull(d.decoder, d.raw[:want])
		if read == 0 {
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				d.err = err
			}
			return n, n > 0
		}
		for i := 0; i+4 <= read; i += 4 {
			left := int16(d.raw[i]) | int16(d.raw[i+1])<<8
			right := int16(d.raw[i+2]) | int16(d.raw[i+3])<<8
			samples[n][0] = float64(left) / 32768.0
			samples[n][1] = float64(right) / 32768.0
			n++
		}
		if err != nil {
			break
		}
	}
	return n, true
}

// Err returns any error that occurred during streaming.
func (d *goMP3Decoder) Err() error { return d.err }

// Len returns the total number of samples.
func (d *goMP3Decoder) Len() int { return int(d.decoder.SampleCount()) }

// Position returns the current sample position.
func (d *goMP3Decoder) Position() int { return int(d.decoder.SamplePosition()) }

// Seek seeks to the given sample position.
func (d *goMP3Decoder) Seek(p int) error {
	if err := d.decoder.SeekToSample(int64(p)); err != nil {
		return err
	}
	d.err = nil
	return nil
}

// Close closes the underlying file.
func (d *goMP3Decoder) Close() error { return d.closer.Close() }
