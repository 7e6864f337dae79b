// Package checker runs check sessions: it drives the resolver and prober
// over the configured channel set and folds outcomes into statistics.
package checker

// State represents the checker's run state.
type State int

const (
	// StateIdle means no session is active; Start is accepted.
	StateIdle State = iota

	// StateRunning means a session is actively probing channels.
	StateRunning

	// StateCompleted means the last session ran its full duration.
	StateCompleted

	// StateStopped means the last session was stopped early.
	StateStopped

	// StateFailed means the last session failed during setup.
	StateFailed
)

// String returns the lowercase name of the state, as exposed by the API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for states that end a session.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}
