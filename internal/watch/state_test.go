package watch

import (
	"testing"

	"lockwatch/internal/power"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cur  State
		ev   power.Event
		want Effect
	}{
		{
			"lock from active",
			StateActive, power.EventScreenLocked,
			Effect{Next: StateScreenLocked, StartCadence: true},
		},
		{
			"screen sleep from active",
			StateActive, power.EventScreenSlept,
			Effect{Next: StateScreenSleeping, StartCadence: true},
		},
		{
			"unlock from locked runs evidence",
			StateScreenLocked, power.EventScreenUnlocked,
			Effect{Next: StateActive, StopCadence: true, RunEvidence: true},
		},
		{
			"screen wake from sleeping runs evidence",
			StateScreenSleeping, power.EventScreenWoke,
			Effect{Next: StateActive, StopCadence: true, RunEvidence: true},
		},
		{
			"unlock while already active is a no-op",
			StateActive, power.EventScreenUnlocked,
			Effect{Next: StateActive},
		},
		{
			"system sleep stops cadence",
			StateScreenLocked, power.EventSystemWillSleep,
			Effect{Next: StateSystemSleeping, StopCadence: true},
		},
		{
			"system sleep from active",
			StateActive, power.EventSystemWillSleep,
			Effect{Next: StateSystemSleeping, StopCadence: true},
		},
		{
			"system wake from locked restarts cadence",
			StateScreenLocked, power.EventSystemDidWake,
			Effect{Next: StateScreenLocked, StartCadence: true},
		},
		{
			"system wake from sleeping screen restarts cadence",
			StateScreenSleeping, power.EventSystemDidWake,
			Effect{Next: StateScreenSleeping, StartCadence: true},
		},
		{
			"system wake while active is a no-op",
			StateActive, power.EventSystemDidWake,
			Effect{Next: StateActive},
		},
		{
			"lock while system sleeping still locks",
			StateSystemSleeping, power.EventScreenLocked,
			Effect{Next: StateScreenLocked, StartCadence: true},
		},
		{
			"wake from system-sleeping state without lock is a no-op",
			StateSystemSleeping, power.EventScreenUnlocked,
			Effect{Next: StateSystemSleeping},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Transition(tt.cur, tt.ev); got != tt.want {
				t.Fatalf("Transition(%v, %v) = %+v, want %+v", tt.cur, tt.ev, got, tt.want)
			}
		})
	}
}

// Transition must be pure: same inputs, same outputs, no hidden state.
func TestTransitionDeterministic(t *testing.T) {
	t.Parallel()

	states := []State{StateActive, StateScreenLocked, StateScreenSleeping, StateSystemSleeping}
	events := []power.Event{
		power.EventScreenLocked, power.EventScreenUnlocked,
		power.EventScreenSlept, power.EventScreenWoke,
		power.EventSystemWillSleep, power.EventSystemDidWake,
	}
	for _, st := range states {
		for _, ev := range events {
			first := Transition(st, ev)
			for i := 0; i < 3; i++ {
				if got := Transition(st, ev); got != first {
					t.Fatalf("Transition(%v, %v) not deterministic: %+v then %+v", st, ev, first, got)
				}
			}
		}
	}
}
