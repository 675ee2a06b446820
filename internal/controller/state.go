package controller

import "github.com/gzehua/Klarity/internal/media"

// Status is the controller's top-level lifecycle state (spec.md §3).
type Status int

const (
	// StatusEmpty means no media is loaded.
	StatusEmpty Status = iota
	// StatusPreparing means an asynchronous probe+construction is in progress.
	StatusPreparing
	// StatusReady means a pipeline is loaded; PlaybackStatus refines it further.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "Empty"
	case StatusPreparing:
		return "Preparing"
	case StatusReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// PlaybackStatus refines StatusReady, per spec.md §3's
// Ready(media, pipeline, bufferLoop, playbackLoop, status).
type PlaybackStatus int

const (
	// PlaybackNone is the zero value used while Status != StatusReady.
	PlaybackNone PlaybackStatus = iota
	PlaybackTransition
	PlaybackPlaying
	PlaybackPaused
	PlaybackStopped
	PlaybackCompleted
	PlaybackSeeking
	PlaybackReleasing
)

func (s PlaybackStatus) String() string {
	switch s {
	case PlaybackNone:
		return "None"
	case PlaybackTransition:
		return "Transition"
	case PlaybackPlaying:
		return "Playing"
	case PlaybackPaused:
		return "Paused"
	case PlaybackStopped:
		return "Stopped"
	case PlaybackCompleted:
		return "Completed"
	case PlaybackSeeking:
		return "Seeking"
	case PlaybackReleasing:
		return "Releasing"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the controller's observable state, delivered to
// subscribers via Controller.Subscribe (spec.md §6's `state` observable).
type State struct {
	Status         Status
	PlaybackStatus PlaybackStatus
	Media          media.Media
}
