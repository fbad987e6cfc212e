package domain

// State describes the domain lifecycle state.
type State int

const (
	StateDefined State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDefined:
		return "defined"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason classifies why a machine stopped.
type StopReason int

const (
	// StopReasonAdmin is an administrative stop request.
	StopReasonAdmin StopReason = iota

	// StopReasonGuest is a guest-initiated shutdown.
	StopReasonGuest

	// StopReasonError is an error-induced stop reported by the engine.
	StopReasonError
)

func (r StopReason) String() string {
	switch r {
	case StopReasonAdmin:
		return "admin"
	case StopReasonGuest:
		return "guest-initiated"
	case StopReasonError:
		return "error-induced"
	default:
		return "unknown"
	}
}
