package session

import "fmt"

// State is the lifecycle phase of a practice session.
type State int

const (
	// StateSetup is the configuration phase before any session exists.
	StateSetup State = iota

	// StateActive is a live conversation with an open channel.
	StateActive

	// StateSummary is the post-session review phase.
	StateSummary
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateActive:
		return "active"
	case StateSummary:
		return "summary"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canTransition reports whether the lifecycle allows moving from s to
// to. The only legal moves are setup to active, active to summary, and
// summary back to setup.
func (s State) canTransition(to State) bool {
	switch s {
	case StateSetup:
		return to == StateActive
	case StateActive:
		return to == StateSummary
	case StateSummary:
		return to == StateSetup
	default:
		return false
	}
}
