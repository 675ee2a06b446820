package controller

import (
	"errors"

	"github.com/gzehua/Klarity/internal/playbackloop"
)

// ErrInvalidSpeedFactor is returned by ChangeSettings when the requested
// speed factor falls outside [SpeedMin, SpeedMax].
var ErrInvalidSpeedFactor = errors.New("controller: speed factor out of range")

// Settings carries the mutable per-session playback controls: volume,
// mute, and speed (spec.md §6's "Settings object recognized options").
type Settings struct {
	Volume      float64
	Muted       bool
	SpeedFactor float64
}

// DefaultSettings returns the initial settings a fresh controller starts
// with: full volume, unmuted, normal speed.
func DefaultSettings() Settings {
	return Settings{Volume: 1, Muted: false, SpeedFactor: 1}
}

// gain returns the sampler gain implied by Volume/Muted, per spec.md
// §4.5's "volume mute is implemented by passing a gain of 0 to the
// sampler; unmute restores the current volume."
func (s Settings) gain() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// asLoopSettings adapts Settings to the playbackloop.Settings shape the
// playback loops read once per frame.
func (s Settings) asLoopSettings() playbackloop.Settings {
	return playbackloop.Settings{Gain: s.gain(), Speed: s.SpeedFactor}
}

// settingsSnapshot implements playbackloop.SettingsSource over an
// atomic.Pointer[Settings], giving the playback loop lock-free visibility
// of the latest settings (spec.md §5's "no lock required, only atomic
// visibility").
type settingsSnapshot struct{ c *Controller }

func (s settingsSnapshot) Get() playbackloop.Settings {
	return s.c.settings.Load().asLoopSettings()
}
