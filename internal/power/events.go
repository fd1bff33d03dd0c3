package power

// Event is a transient OS power/lock notification.
//
// Events are produced by a Source and consumed exactly once by the watch
// monitor; they carry no payload beyond their kind.
type Event int

const (
	EventScreenLocked Event = iota
	EventScreenUnlocked
	EventScreenSlept
	EventScreenWoke
	EventSystemWillSleep
	EventSystemDidWake
)

func (e Event) String() string {
	switch e {
	case EventScreenLocked:
		return "screen-locked"
	case EventScreenUnlocked:
		return "screen-unlocked"
	case EventScreenSlept:
		return "screen-slept"
	case EventScreenWoke:
		return "screen-woke"
	case EventSystemWillSleep:
		return "system-will-sleep"
	case EventSystemDidWake:
		return "system-did-wake"
	default:
		return "unknown"
	}
}
