package watch

import "lockwatch/internal/power"

// State is the machine's current power/lock condition. Exactly one value is
// current at any time; only the Monitor mutates it.
type State int

const (
	StateActive State = iota
	StateScreenLocked
	StateScreenSleeping
	StateSystemSleeping
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateScreenLocked:
		return "screen-locked"
	case StateScreenSleeping:
		return "screen-sleeping"
	case StateSystemSleeping:
		return "system-sleeping"
	default:
		return "unknown"
	}
}

// Effect is the outcome of one transition: the next state plus the side
// effects the monitor must apply, in order: stop cadence, run the
// triggered-evidence sequence, start cadence.
type Effect struct {
	Next State

	StopCadence  bool
	RunEvidence  bool
	StartCadence bool
}

// Transition is the complete transition table. It is total: every event has
// a defined effect (possibly a no-op) from every state, and the result is a
// pure function of (state, event).
func Transition(cur State, ev power.Event) Effect {
	switch ev {
	case power.EventScreenLocked:
		return Effect{Next: StateScreenLocked, StartCadence: true}
	case power.EventScreenSlept:
		return Effect{Next: StateScreenSleeping, StartCadence: true}
	case power.EventScreenUnlocked, power.EventScreenWoke:
		if cur == StateScreenLocked || cur == StateScreenSleeping {
			// Cadence is stopped before the evidence sequence so the camera
			// is never asked for two captures at once. After the sequence
			// the monitor re-checks the then-current state: stopped again if
			// Active, restarted otherwise.
			return Effect{Next: StateActive, StopCadence: true, RunEvidence: true}
		}
		return Effect{Next: cur}
	case power.EventSystemWillSleep:
		return Effect{Next: StateSystemSleeping, StopCadence: true}
	case power.EventSystemDidWake:
		if cur == StateScreenLocked || cur == StateScreenSleeping {
			// Re-enter the same state's action: the cadence timer died with
			// the system sleep, so restart it.
			return Effect{Next: cur, StartCadence: true}
		}
		return Effect{Next: cur}
	default:
		return Effect{Next: cur}
	}
}
