// Package ctlerr provides consistent, Op-tagged error formatting for the
// player controller, generalizing the teacher's internal/errmsg to the
// controller's own operation vocabulary (spec.md §7).
package ctlerr

import "fmt"

// Op names a controller operation that can fail.
type Op string

const (
	OpPrepare = Op("prepare media")
	OpBuffer  = Op("buffer media")
	OpPlay    = Op("play")
	OpPause   = Op("pause")
	OpResume  = Op("resume")
	OpStop    = Op("stop")
	OpSeek    = Op("seek")
	OpRelease = Op("release media")

	OpAttachRenderer = Op("attach renderer")
	OpDetachRenderer = Op("detach renderer")
	OpChangeSettings = Op("change settings")
)

// Format creates a user-friendly error message for a failed operation.
// This is used to render controller.ErrorEvent for a human-facing surface;
// the controller's own state transitions never depend on this string.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}
