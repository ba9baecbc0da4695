package sched

import "sync/atomic"

// State is a thread's position in its lifecycle, spec §3/§4.C:
// Ready → Running → {Waiting, Sleeping, Stopped, Frozen} → Zombie → Deleted.
type State uint32

const (
	// StateReady means runnable and sitting in a priority ready queue.
	StateReady State = iota
	// StateRunning means currently executing (the goroutine is not
	// parked on anything).
	StateRunning
	// StateWaiting means parked on a kernel object's wait queue (mutex,
	// condvar, semaphore, port, wait group) with no deadline.
	StateWaiting
	// StateSleeping is StateWaiting plus an armed sleep-list deadline.
	StateSleeping
	// StateStopped means suspended by SIGSTOP's default action; only
	// SIGCONT (or SIGKILL) moves it back to Ready.
	StateStopped
	// StateFrozen is the debug-suspend variant spec §9's Open Question
	// asks about: distinct from Stopped because it is thawed only by an
	// explicit debugger resume call, never by SIGCONT, and distinct from
	// Sleeping because a frozen thread is never subject to the sleep
	// list's deadline wakeup even if it was mid-timed-wait when frozen.
	StateFrozen
	// StateZombie means the thread function returned or called exit; it
	// is linked on the zombie list awaiting reaping.
	StateZombie
	// StateDeleted is terminal: the handle has been freed.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	case StateFrozen:
		return "frozen"
	case StateZombie:
		return "zombie"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// fastState is a lock-free CAS state machine, grounded on
// eventloop/state.go's FastState: pure atomic compare-and-swap with no
// internal validation, trusting callers to only attempt legal transitions.
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial State) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny moves to `to` from whichever of validFrom currently holds,
// mirroring eventloop's FastState.TransitionAny.
func (s *fastState) TransitionAny(validFrom []State, to State) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

func (s *fastState) IsTerminal() bool {
	return s.Load() == StateDeleted
}
