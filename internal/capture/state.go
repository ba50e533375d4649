// Package capture implements client recording streams and their capture
// state machine.
package capture

import "fmt"

// State is the capturer lifecycle state. Transitions are validated in one
// place (transition) rather than at each call site.
type State int

const (
	// WaitingForBuffer: format may be set, payload buffer not yet given.
	WaitingForBuffer State = iota
	// OperatingSync: client drives capture with explicit CaptureAt calls.
	OperatingSync
	// OperatingAsync: the mix domain fills packets continuously.
	OperatingAsync
	// AsyncStopping: a mix-domain task is draining the in-flight packet.
	AsyncStopping
	// AsyncStoppingCallbackPending: drained; the control domain still has
	// to deliver finished packets and the stop callback.
	AsyncStoppingCallbackPending
	// Shutdown is terminal.
	Shutdown
)

func (s State) String() string {
	switch s {
	case WaitingForBuffer:
		return "waiting-for-buffer"
	case OperatingSync:
		return "operating-sync"
	case OperatingAsync:
		return "operating-async"
	case AsyncStopping:
		return "async-stopping"
	case AsyncStoppingCallbackPending:
		return "async-stopping-callback-pending"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var legalTransitions = map[State][]State{
	WaitingForBuffer:             {OperatingSync, Shutdown},
	OperatingSync:                {OperatingAsync, Shutdown},
	OperatingAsync:               {AsyncStopping, Shutdown},
	AsyncStopping:                {AsyncStoppingCallbackPending, Shutdown},
	AsyncStoppingCallbackPending: {OperatingSync, Shutdown},
	Shutdown:                     {},
}

// ErrBadTransition reports an illegal state transition or an operation
// issued in a state that forbids it.
type ErrBadTransition struct {
	From State
	To   State
	Op   string
}

func (e *ErrBadTransition) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("capture: %s illegal in state %s", e.Op, e.From)
	}
	return fmt.Sprintf("capture: illegal transition %s -> %s", e.From, e.To)
}

func transitionAllowed(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
