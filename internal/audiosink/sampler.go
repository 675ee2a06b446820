// Package audiosink adapts the original player's beep/speaker wiring
// (stream.go's beep.Ctrl/effects.Volume chain, controls.go's Pause/Resume,
// volume.go's mute handling) into the decoder.Sampler contract: a push-based
// sink the playback loop writes decoded frames into, rather than a
// file-backed beep.Streamer that beep itself pulls from.
package audiosink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/media"
)

var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
	speakerInit bool
)

// initSpeaker initializes the process-wide beep speaker device on first use,
// exactly once, at the first Sampler's sample rate — mirroring stream.go's
// speakerInitialized/speakerSampleRate package globals.
func initSpeaker(rate beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerInit {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	speakerRate = rate
	speakerInit = true
	return nil
}

// pcmStreamer is a beep.Streamer fed by Write instead of a decoded file. It
// blocks on an empty queue rather than emitting silence, so beep's mixer
// goroutine paces itself to whatever is pushing samples in.
type pcmStreamer struct {
	queue  chan [2]float64
	stopCh chan struct{}
	closed atomic.Bool
	played atomic.Int64
	err    error
}

func newPCMStreamer(capacity int) *pcmStreamer {
	return &pcmStreamer{
		queue:  make(chan [2]float64, capacity),
		stopCh: make(chan struct{}),
	}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		select {
		case sample, open := <-s.queue:
			if !open {
				return n, n > 0
			}
			samples[n] = sample
			n++
			s.played.Add(1)
		case <-s.stopCh:
			return n, n > 0
		}
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return s.err }

// push enqueues one stereo sample, blocking while the queue is full. It
// returns false if the streamer was closed while waiting.
func (s *pcmStreamer) push(sample [2]float64) bool {
	select {
	case s.queue <- sample:
		return true
	case <-s.stopCh:
		return false
	}
}

// drain discards any queued-but-unplayed samples without closing the queue.
func (s *pcmStreamer) drain() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

func (s *pcmStreamer) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
}

// Sampler is the audio presentation sink. One Sampler owns exactly one
// beep.Ctrl/effects.Volume chain registered with the shared speaker.
type Sampler struct {
	mu       sync.Mutex
	format   media.AudioFormat
	streamer *pcmStreamer
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	playing  bool
	closed   bool
}

// queueCapacity bounds how many samples may be buffered ahead of the audio
// device; the playback loop's Write blocks once it fills, which is how
// backpressure reaches the buffer loop through the pipeline.
const queueCapacity = 1 << 16

// New constructs a Sampler for format, initializing the shared speaker
// device on first use and resampling if a prior Sampler already fixed the
// device's rate to something else (stream.go's beep.Resample(4, ...) path).
func New(format media.AudioFormat) (*Sampler, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("audiosink: invalid sample rate %d", format.SampleRate)
	}
	rate := beep.SampleRate(format.SampleRate)
	if err := initSpeaker(rate); err != nil {
		return nil, fmt.Errorf("audiosink: init speaker: %w", err)
	}

	streamer := newPCMStreamer(queueCapacity)
	var playStreamer beep.Streamer = streamer
	if rate != speakerRate {
		playStreamer = beep.Resample(4, rate, speakerRate, streamer)
	}
	ctrl := &beep.Ctrl{Streamer: playStreamer, Paused: true}
	volume := &effects.Volume{Streamer: ctrl, Base: 2, Volume: 0, Silent: false}

	return &Sampler{format: format, streamer: streamer, ctrl: ctrl, volume: volume}, nil
}

// Start registers the sampler with the speaker (once) and unpauses it.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("audiosink: sampler closed")
	}
	if !s.playing {
		speaker.Play(s.volume)
		s.playing = true
	}
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Stop pauses the sampler without discarding queued audio.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return nil
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Flush discards buffered-but-unplayed audio, used before a stop or seek so
// stale samples don't linger past the transition.
func (s *Sampler) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamer.drain()
	return nil
}

// Close permanently stops and unregisters the sampler.
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	s.streamer.close()
	return nil
}

// Write decodes f's interleaved PCM16 stereo bytes, applies gain and a
// naive nearest-neighbor speed resampling, and enqueues the result. It
// blocks while the queue is full.
func (s *Sampler) Write(f frame.Frame, gain, speed float64) error {
	if f.IsEndOfStream() {
		return nil
	}

	muted := gain <= 0
	speaker.Lock()
	s.volume.Silent = muted
	speaker.Unlock()

	samples := decodePCM16(f.Bytes)
	if !muted && gain != 1 {
		for i := range samples {
			samples[i][0] *= gain
			samples[i][1] *= gain
		}
	}

	step := speed
	if step <= 0 {
		step = 1
	}
	for idx := 0.0; int(idx) < len(samples); idx += step {
		if !s.streamer.push(samples[int(idx)]) {
			return errors.New("audiosink: sampler closed while writing")
		}
	}
	return nil
}

// Position reports how much audio has actually been pulled by the speaker's
// mixer, used as the A/V sync master clock.
func (s *Sampler) Position() time.Duration {
	played := s.streamer.played.Load()
	return time.Duration(float64(played) / float64(s.format.SampleRate) * float64(time.Second))
}

// decodePCM16 converts interleaved 16-bit little-endian stereo PCM bytes
// back into stereo float64 samples in [-1,1], the inverse of
// audiodecoder's encodePCM16.
func decodePCM16(b []byte) [][2]float64 {
	n := len(b) / 4
	samples := make([][2]float64, n)
	for i := range n {
		left := int16(binary.LittleEndian.Uint16(b[i*4:]))
		right := int16(binary.LittleEndian.Uint16(b[i*4+2:]))
		samples[i][0] = float64(left) / 32768.0
		samples[i][1] = float64(right) / 32768.0
	}
	return samples
}
