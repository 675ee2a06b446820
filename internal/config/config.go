// Package config loads the process-level tuning knobs for the playback
// engine: buffer/pool sizes and the audio-video sync thresholds and speed
// range referenced throughout internal/controller and internal/playbackloop.
// No engine state is persisted here — only the numbers that shape how the
// core components are constructed.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable the core components accept at construction
// time. Zero values are never used directly; Load always applies defaults
// on top of anything left unset by a config file.
type Config struct {
	Buffers BuffersConfig `koanf:"buffers"`
	Sync    SyncConfig    `koanf:"sync"`
	Speed   SpeedConfig   `koanf:"speed"`
}

// BuffersConfig sizes the bounded frame buffers and the video frame pool.
type BuffersConfig struct {
	AudioCapacity int `koanf:"audio_capacity"` // buffered audio frames
	VideoCapacity int `koanf:"video_capacity"` // buffered video frames
	VideoPoolSize int `koanf:"video_pool_size"` // pre-allocated raw video blocks
}

// SyncConfig resolves spec.md's audio-master-clock Open Question: how far a
// video frame may lag before it is dropped, and how far it may lead before
// the playback loop waits for it. Values are milliseconds in the config
// file; VideoLateDropThreshold() and VideoEarlyWaitCap() convert them to
// time.Duration for callers.
type SyncConfig struct {
	VideoLateDropThresholdMillis int `koanf:"video_late_drop_threshold_millis"`
	VideoEarlyWaitCapMillis      int `koanf:"video_early_wait_cap_millis"`
}

// VideoLateDropThreshold returns the configured drop threshold as a Duration.
func (s SyncConfig) VideoLateDropThreshold() time.Duration {
	return time.Duration(s.VideoLateDropThresholdMillis) * time.Millisecond
}

// VideoEarlyWaitCap returns the configured wait cap as a Duration.
func (s SyncConfig) VideoEarlyWaitCap() time.Duration {
	return time.Duration(s.VideoEarlyWaitCapMillis) * time.Millisecond
}

// SpeedConfig bounds the playback speed factor a controller will accept.
type SpeedConfig struct {
	Min float64 `koanf:"min"`
	Max float64 `koanf:"max"`
}

const (
	defaultAudioCapacity = 64
	defaultVideoCapacity = 8
	defaultVideoPoolSize = 8

	defaultVideoLateDropThresholdMillis = 40
	defaultVideoEarlyWaitCapMillis      = 250

	defaultSpeedMin = 0.5
	defaultSpeedMax = 2.0
)

func defaults() *Config {
	return &Config{
		Buffers: BuffersConfig{
			AudioCapacity: defaultAudioCapacity,
			VideoCapacity: defaultVideoCapacity,
			VideoPoolSize: defaultVideoPoolSize,
		},
		Sync: SyncConfig{
			VideoLateDropThresholdMillis: defaultVideoLateDropThresholdMillis,
			VideoEarlyWaitCapMillis:      defaultVideoEarlyWaitCapMillis,
		},
		Speed: SpeedConfig{
			Min: defaultSpeedMin,
			Max: defaultSpeedMax,
		},
	}
}

// Load reads config.toml from the usual search path, applying it on top of
// the built-in defaults. A missing file at any path is not an error.
func Load() (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.clamp()
	return cfg, nil
}

func (c *Config) clamp() {
	if c.Buffers.AudioCapacity <= 0 {
		c.Buffers.AudioCapacity = defaultAudioCapacity
	}
	if c.Buffers.VideoCapacity <= 0 {
		c.Buffers.VideoCapacity = defaultVideoCapacity
	}
	if c.Buffers.VideoPoolSize <= 0 {
		c.Buffers.VideoPoolSize = defaultVideoPoolSize
	}
	if c.Sync.VideoLateDropThresholdMillis <= 0 {
		c.Sync.VideoLateDropThresholdMillis = defaultVideoLateDropThresholdMillis
	}
	if c.Sync.VideoEarlyWaitCapMillis <= 0 {
		c.Sync.VideoEarlyWaitCapMillis = defaultVideoEarlyWaitCapMillis
	}
	if c.Speed.Min <= 0 {
		c.Speed.Min = defaultSpeedMin
	}
	if c.Speed.Max <= 0 || c.Speed.Max < c.Speed.Min {
		c.Speed.Max = defaultSpeedMax
	}
}

func configPaths() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "klarity", "config.toml"))
	}
	paths = append(paths, "config.toml")
	return paths
}
