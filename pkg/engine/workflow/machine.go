// Package workflow implements the mode state machine and the bounded
// context handoff produced at each transition.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"Bindr/pkg/engine/api"
)

// ErrNoTransition is returned when the target mode equals the current
// mode. The session must be left untouched in that case.
var ErrNoTransition = errors.New("no_transition: already in target mode")

// Transition computes the handoff for moving the session from its
// current mode to target. It does not mutate the session; the caller
// applies the returned handoff and the new mode atomically. Any mode may
// transition to any other mode.
func Transition(sess *api.Session, target api.Mode, now time.Time) (*api.ContextHandoff, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("invalid target mode: %s", target)
	}
	if target == sess.Mode {
		return nil, ErrNoTransition
	}

	return BuildHandoff(sess.Mode, target, sess.Project, sess.Metadata, sess.Activity, now), nil
}

// Cycle returns the target for a bare mode-cycle command: the next mode
// in workflow order, wrapping from Document back to Brainstorm.
func Cycle(current api.Mode) api.Mode {
	return current.Next()
}
