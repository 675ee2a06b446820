package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoConfigFilePresent(t *testing.T) {
	withEmptyCwd(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, defaultAudioCapacity, cfg.Buffers.AudioCapacity)
	require.Equal(t, defaultVideoCapacity, cfg.Buffers.VideoCapacity)
	require.Equal(t, defaultVideoPoolSize, cfg.Buffers.VideoPoolSize)
	require.Equal(t, 40*time.Millisecond, cfg.Sync.VideoLateDropThreshold())
	require.Equal(t, 250*time.Millisecond, cfg.Sync.VideoEarlyWaitCap())
	require.InDelta(t, defaultSpeedMin, cfg.Speed.Min, 0.0001)
	require.InDelta(t, defaultSpeedMax, cfg.Speed.Max, 0.0001)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := withEmptyCwd(t)
	toml := `
[buffers]
audio_capacity = 128
video_capacity = 16
video_pool_size = 4

[sync]
video_late_drop_threshold_millis = 80
video_early_wait_cap_millis = 500

[speed]
min = 0.25
max = 4.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 128, cfg.Buffers.AudioCapacity)
	require.Equal(t, 16, cfg.Buffers.VideoCapacity)
	require.Equal(t, 4, cfg.Buffers.VideoPoolSize)
	require.Equal(t, 80*time.Millisecond, cfg.Sync.VideoLateDropThreshold())
	require.Equal(t, 500*time.Millisecond, cfg.Sync.VideoEarlyWaitCap())
	require.InDelta(t, 0.25, cfg.Speed.Min, 0.0001)
	require.InDelta(t, 4.0, cfg.Speed.Max, 0.0001)
}

func TestClamp_RejectsNonsensicalValues(t *testing.T) {
	cfg := &Config{
		Buffers: BuffersConfig{AudioCapacity: -1, VideoCapacity: 0, VideoPoolSize: -5},
		Sync:    SyncConfig{VideoLateDropThresholdMillis: 0, VideoEarlyWaitCapMillis: -1},
		Speed:   SpeedConfig{Min: -1, Max: -1},
	}
	cfg.clamp()

	require.Equal(t, defaultAudioCapacity, cfg.Buffers.AudioCapacity)
	require.Equal(t, defaultVideoCapacity, cfg.Buffers.VideoCapacity)
	require.Equal(t, defaultVideoPoolSize, cfg.Buffers.VideoPoolSize)
	require.Equal(t, defaultVideoLateDropThresholdMillis, cfg.Sync.VideoLateDropThresholdMillis)
	require.Equal(t, defaultVideoEarlyWaitCapMillis, cfg.Sync.VideoEarlyWaitCapMillis)
	require.InDelta(t, defaultSpeedMin, cfg.Speed.Min, 0.0001)
	require.InDelta(t, defaultSpeedMax, cfg.Speed.Max, 0.0001)
}

func TestClamp_RejectsMaxBelowMin(t *testing.T) {
	cfg := defaults()
	cfg.Speed.Min = 1.5
	cfg.Speed.Max = 1.0
	cfg.clamp()

	require.InDelta(t, defaultSpeedMax, cfg.Speed.Max, 0.0001)
}

// withEmptyCwd chdirs into a fresh temp directory (so a stray ./config.toml
// from another test can't leak in) and restores the original cwd on cleanup.
func withEmptyCwd(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}
