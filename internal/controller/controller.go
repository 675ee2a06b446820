// Package controller implements the Player Controller described in
// spec.md §4.6: a command-serialized state machine that owns a pipeline's
// lifecycle, drives its buffer and playback loops, exposes a pluggable
// renderer slot, live-swappable settings, and a broadcast event bus.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gzehua/Klarity/internal/bufferloop"
	"github.com/gzehua/Klarity/internal/ctlerr"
	"github.com/gzehua/Klarity/internal/decoder"
	"github.com/gzehua/Klarity/internal/media"
	"github.com/gzehua/Klarity/internal/pipeline"
	"github.com/gzehua/Klarity/internal/playbackloop"
)

// ErrRendererAttached is returned by AttachRenderer when one is already attached.
var ErrRendererAttached = errors.New("controller: renderer already attached")

// ErrUnknownCommand is returned by Execute for a Command type it doesn't recognize.
var ErrUnknownCommand = errors.New("controller: unknown command")

// Options carries the process-level tuning knobs a controller needs to
// construct pipelines, sourced from internal/config so the core itself
// takes plain Go values (spec.md §6, "no persisted on-disk state").
type Options struct {
	VideoPoolSize     int
	LateDropThreshold time.Duration
	EarlyWaitCap      time.Duration
	SpeedMin          float64
	SpeedMax          float64
}

// DefaultOptions returns reasonable defaults, mirroring internal/config's
// own defaults so a caller that skips config.Load still gets a working
// controller.
func DefaultOptions() Options {
	return Options{
		VideoPoolSize:     8,
		LateDropThreshold: 40 * time.Millisecond,
		EarlyWaitCap:      250 * time.Millisecond,
		SpeedMin:          0.5,
		SpeedMax:          2.0,
	}
}

// Controller is the single entry point for loading and driving one media
// session at a time. The zero value is not usable; use New.
type Controller struct {
	factory Factory
	opts    Options

	cmdMu sync.Mutex

	jobMu     sync.Mutex
	jobCancel context.CancelFunc
	jobDone   chan struct{}

	stateMu        sync.RWMutex
	status         Status
	playbackStatus PlaybackStatus
	currentMedia   media.Media
	pipeline       pipeline.Pipeline
	bufferLoop     bufferloop.Loop
	playbackLoop   playbackloop.Loop
	bufferComplete bool

	rendererMu sync.RWMutex
	renderer   decoder.Renderer

	settings atomic.Pointer[Settings]

	bufferTimestamp   atomic.Int64
	playbackTimestamp atomic.Int64

	events bus
}

// New creates a Controller that constructs pipelines via factory.
func New(factory Factory, opts Options) *Controller {
	c := &Controller{factory: factory, opts: opts}
	s := DefaultSettings()
	c.settings.Store(&s)
	return c
}

// State returns a snapshot of the controller's current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{Status: c.status, PlaybackStatus: c.playbackStatus, Media: c.currentMedia}
}

// Settings returns the currently active settings.
func (c *Controller) Settings() Settings {
	return *c.settings.Load()
}

// BufferTimestamp returns the last stored buffer timestamp (spec.md §4.6's
// gated observable). The buffer loop's updates are stored only in
// PLAYING/PAUSED; Stop, Release and Prepare zero it, and SeekTo sets it to
// the landed timestamp. Other states keep the last stored value.
func (c *Controller) BufferTimestamp() time.Duration {
	return time.Duration(c.bufferTimestamp.Load())
}

// PlaybackTimestamp returns the last emitted playback timestamp.
func (c *Controller) PlaybackTimestamp() time.Duration {
	return time.Duration(c.playbackTimestamp.Load())
}

// Subscribe registers a new event/observable subscriber, primed with the
// controller's current state/settings/timestamps so a subscriber that
// attaches mid-session sees the latest value immediately instead of
// waiting for the next change (spec.md §9, "subscribers always see the
// most recent value on subscribe").
func (c *Controller) Subscribe() *Subscription {
	sub := c.events.subscribe()
	sub.sendState(StateChangedEvent{Current: c.State()})
	sub.sendSettings(SettingsChangedEvent{Settings: c.Settings()})
	sub.sendBufferTimestamp(TimestampEvent{Timestamp: c.BufferTimestamp()})
	sub.sendPlaybackTimestamp(TimestampEvent{Timestamp: c.PlaybackTimestamp()})
	return sub
}

// Execute dispatches cmd to the matching state-transition handler, per
// spec.md §4.6's transition table. Commands arriving in a status not
// listed in that table are no-ops: they return nil without side effects.
func (c *Controller) Execute(cmd Command) error {
	switch v := cmd.(type) {
	case PrepareCommand:
		return c.prepare(v)
	case PlayCommand:
		return c.play()
	case PauseCommand:
		return c.pause()
	case ResumeCommand:
		return c.resume()
	case StopCommand:
		return c.stop()
	case SeekCommand:
		return c.seekTo(v)
	case ReleaseCommand:
		return c.release()
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// Toggle dispatches Pause, Resume, or Play based on the current playback
// status, a convenience the teacher's playback.Service and player.Player
// both expose as Toggle.
func (c *Controller) Toggle() error {
	switch c.State().PlaybackStatus {
	case PlaybackPlaying:
		return c.Execute(PauseCommand{})
	case PlaybackPaused:
		return c.Execute(ResumeCommand{})
	default:
		return c.Execute(PlayCommand{})
	}
}

// runJob serializes cmd bodies behind the command mutex (spec.md
// invariant 6) while tracking a cancelable context so a concurrent
// Release can preempt a long-running Prepare (the S3 scenario).
func (c *Controller) runJob(fn func(ctx context.Context) error) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.jobMu.Lock()
	c.jobCancel = cancel
	c.jobDone = done
	c.jobMu.Unlock()

	err := fn(ctx)

	close(done)
	c.jobMu.Lock()
	c.jobCancel = nil
	c.jobDone = nil
	c.jobMu.Unlock()
	cancel()
	return err
}

// cancelCurrentJobAndWait cancels whatever job runJob is currently
// running (if any) and blocks until it has fully unwound, without itself
// taking cmdMu — this is what lets Release interrupt an in-flight
// Prepare instead of queuing up behind it.
func (c *Controller) cancelCurrentJobAndWait() {
	c.jobMu.Lock()
	cancel := c.jobCancel
	done := c.jobDone
	c.jobMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Controller) publishState() {
	c.events.publishState(StateChangedEvent{Current: c.State()})
}

func (c *Controller) setStatus(status Status, playback PlaybackStatus) {
	c.stateMu.Lock()
	c.status = status
	c.playbackStatus = playback
	c.stateMu.Unlock()
	c.publishState()
}

func (c *Controller) zeroTimestamps() {
	c.bufferTimestamp.Store(0)
	c.playbackTimestamp.Store(0)
	c.events.publishBufferTimestamp(TimestampEvent{})
	c.events.publishPlaybackTimestamp(TimestampEvent{})
}

// rendererSource implements playbackloop.RendererSource by reading the
// controller's current renderer under its dedicated mutex, so
// attachRenderer/detachRenderer take effect on the very next frame
// without restarting the playback loop (spec.md §4.6).
type rendererSource struct{ c *Controller }

func (r rendererSource) Get() decoder.Renderer {
	r.c.rendererMu.RLock()
	defer r.c.rendererMu.RUnlock()
	return r.c.renderer
}

// AttachRenderer attaches r as the active video sink. Fails if one is
// already attached (spec.md invariant 5).
func (c *Controller) AttachRenderer(r decoder.Renderer) error {
	c.rendererMu.Lock()
	defer c.rendererMu.Unlock()
	if c.renderer != nil {
		return ErrRendererAttached
	}
	c.renderer = r
	return nil
}

// DetachRenderer clears the active renderer and returns the previous one
// (nil if none), so the caller can close it.
func (c *Controller) DetachRenderer() decoder.Renderer {
	c.rendererMu.Lock()
	defer c.rendererMu.Unlock()
	prev := c.renderer
	c.renderer = nil
	return prev
}

// ChangeSettings validates and atomically replaces the observable
// settings. Speed factor must fall within [SpeedMin, SpeedMax].
func (c *Controller) ChangeSettings(s Settings) error {
	if s.SpeedFactor < c.opts.SpeedMin || s.SpeedFactor > c.opts.SpeedMax {
		return ErrInvalidSpeedFactor
	}
	c.settings.Store(&s)
	c.events.publishSettings(SettingsChangedEvent{Settings: s})
	return nil
}

// ResetSettings reinstates the default settings.
func (c *Controller) ResetSettings() {
	s := DefaultSettings()
	c.settings.Store(&s)
	c.events.publishSettings(SettingsChangedEvent{Settings: s})
}

// Close releases any loaded media and closes the event bus. Safe to call
// on an already-Empty controller.
func (c *Controller) Close() error {
	err := c.release()
	c.events.closeAll()
	return err
}

// onBufferTimestamp, onPlaybackTimestamp, onBufferEndOfMedia, and
// onPlaybackEndOfMedia are the callbacks wired into the buffer/playback
// loops at Play/Resume/SeekTo time (see playback.go); exception callbacks
// are built by playbackExceptionHandler/bufferExceptionHandler in
// exceptions.go.

func (c *Controller) onBufferTimestamp(ts time.Duration) {
	status := c.State().PlaybackStatus
	if status != PlaybackPlaying && status != PlaybackPaused {
		return
	}
	c.bufferTimestamp.Store(int64(ts))
	c.events.publishBufferTimestamp(TimestampEvent{Timestamp: ts})
}

func (c *Controller) onPlaybackTimestamp(ts time.Duration) {
	if c.State().PlaybackStatus != PlaybackPlaying {
		return
	}
	c.playbackTimestamp.Store(int64(ts))
	c.events.publishPlaybackTimestamp(TimestampEvent{Timestamp: ts})
}

func (c *Controller) onBufferEndOfMedia() {
	c.stateMu.Lock()
	if c.bufferComplete {
		c.stateMu.Unlock()
		return
	}
	c.bufferComplete = true
	c.stateMu.Unlock()
	c.events.publishBufferComplete()
}

func (c *Controller) onPlaybackEndOfMedia() {
	c.stateMu.Lock()
	if c.status != StatusReady {
		c.stateMu.Unlock()
		return
	}
	c.playbackStatus = PlaybackCompleted
	c.stateMu.Unlock()
	c.publishState()
	c.events.publishPlaybackComplete()
}

func (c *Controller) onLoopException(op ctlerr.Op, err error) {
	c.events.publishError(ErrorEvent{Op: op, Err: err})
	_ = c.release()
}

// settingsSourceValue returns the playbackloop.SettingsSource a new playback
// loop should read from.
func (c *Controller) settingsSourceValue() playbackloop.SettingsSource {
	return settingsSnapshot{c: c}
}

// rendererSourceValue returns the playbackloop.RendererSource a new video
// playback loop should read from.
func (c *Controller) rendererSourceValue() playbackloop.RendererSource {
	return rendererSource{c: c}
}
