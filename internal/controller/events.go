package controller

import (
	"time"

	"github.com/gzehua/Klarity/internal/ctlerr"
)

// ErrorEvent is emitted whenever a loop surfaces an exception (spec.md
// §4.6's event bus, "at minimum Error(exception)"). After emitting this
// event the controller auto-releases to Empty.
type ErrorEvent struct {
	Op  ctlerr.Op
	Err error
}

// BufferCompleteEvent is emitted once per buffer-loop run, when every
// stream in the pipeline has reached end-of-stream (spec.md's
// Buffer.Complete, "once per buffer-loop run" per the Open Question
// resolution in DESIGN.md).
type BufferCompleteEvent struct{}

// PlaybackCompleteEvent is emitted when the playback loop drains
// end-of-stream and the controller transitions to COMPLETED.
type PlaybackCompleteEvent struct{}

// StateChangedEvent mirrors an update to the state observable, letting a
// subscriber that only wants transitions avoid polling State().
type StateChangedEvent struct {
	Previous State
	Current  State
}

// SettingsChangedEvent mirrors an update to the settings observable.
type SettingsChangedEvent struct {
	Settings Settings
}

// TimestampEvent carries a bufferTimestamp or playbackTimestamp update,
// gated by the rules in spec.md §4.6.
type TimestampEvent struct {
	Timestamp time.Duration
}
