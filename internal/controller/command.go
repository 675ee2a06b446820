package controller

import "time"

// Command is implemented by every value accepted by Controller.Execute
// (spec.md §6's `execute(command)`).
type Command interface {
	isCommand()
}

// PrepareCommand loads media from location and constructs the pipeline
// sized by the given buffer capacities. HardwareAccelerationCandidates is
// passed through to the video decoder factory unmodified; an empty slice
// means "software decode only".
type PrepareCommand struct {
	Location                       string
	AudioBufferSize                int
	VideoBufferSize                int
	HardwareAccelerationCandidates []string
}

func (PrepareCommand) isCommand() {}

// PlayCommand starts playback from STOPPED.
type PlayCommand struct{}

func (PlayCommand) isCommand() {}

// PauseCommand pauses playback from PLAYING.
type PauseCommand struct{}

func (PauseCommand) isCommand() {}

// ResumeCommand resumes playback from PAUSED.
type ResumeCommand struct{}

func (ResumeCommand) isCommand() {}

// StopCommand halts playback and resets to STOPPED.
type StopCommand struct{}

func (StopCommand) isCommand() {}

// SeekCommand repositions playback. KeyFramesOnly requests alignment to
// the nearest keyframe rather than exact-sample accuracy.
type SeekCommand struct {
	Timestamp     time.Duration
	KeyFramesOnly bool
}

func (SeekCommand) isCommand() {}

// ReleaseCommand tears down the current pipeline and returns to Empty.
type ReleaseCommand struct{}

func (ReleaseCommand) isCommand() {}
