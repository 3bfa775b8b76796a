package memory

import (
	"strings"

	"github.com/google/uuid"
)

// newID generates a short prefixed identifier, e.g. "traj_3f2a1b9c0d4e".
func newID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:12]
}

// NewTrajectoryID generates a trajectory identifier.
func NewTrajectoryID() string { return newID("traj") }

// NewFragmentID generates a fragment identifier.
func NewFragmentID() string { return newID("frag") }

// NewMethodologyID generates a methodology identifier.
func NewMethodologyID() string { return newID("meth") }

// NewErrorPatternID generates an error pattern identifier.
func NewErrorPatternID() string { return newID("err") }
