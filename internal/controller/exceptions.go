package controller

import "github.com/gzehua/Klarity/internal/ctlerr"

// playbackExceptionHandler and bufferExceptionHandler adapt a loop's
// onException callback to the controller's Error event + auto-release
// path (spec.md §4.6: "Error is emitted whenever a loop surfaces an
// exception; after emitting Error, the controller auto-releases to
// Empty"). Buffer-loop and playback-loop failures are tagged with
// distinct Ops so a subscriber can tell them apart without string
// matching, per spec.md §7.
func (c *Controller) playbackExceptionHandler() func(error) {
	return func(err error) { c.onLoopException(ctlerr.OpPlay, err) }
}

func (c *Controller) bufferExceptionHandler() func(error) {
	return func(err error) { c.onLoopException(ctlerr.OpBuffer, err) }
}
