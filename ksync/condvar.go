package ksync

import (
	"context"

	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

// ConditionVariable is spec §3/§4.F's KConditionVariable: parked threads
// release an external Mutex atomically with enqueueing and reacquire it
// before returning, grounded on
// original_source/Kernel/KConditionVariable.cpp's WaitInternal/
// WaitDeadlineInternal.
type ConditionVariable struct {
	kobject.Base
	clock ktime.ClockID
}

// NewConditionVariable creates a condition variable bound to clock for its
// deadline conversions.
func NewConditionVariable(name string, clock ktime.ClockID) *ConditionVariable {
	cv := &ConditionVariable{clock: clock}
	cv.Init(name, kobject.KindConditionVariable)
	return cv
}

// Wait atomically enqueues self on cv and unlocks m, then reacquires m
// before returning, spec §4.F's contract. Codes: Success (kerrno.Success),
// Timeout, Interrupted, or the errno of a failed unlock or relock of m.
// There is no destroyed-cv check, so InvalidArg never comes from the cv
// itself.
func (cv *ConditionVariable) Wait(s *sched.Scheduler, self *sched.Thread, m *Mutex) kerrno.Errno {
	return cv.WaitClock(s, self, m, ktime.Deadline{})
}

// WaitClock is Wait with an optional deadline (zero value waits forever).
func (cv *ConditionVariable) WaitClock(s *sched.Scheduler, self *sched.Thread, m *Mutex, deadline ktime.Deadline) kerrno.Errno {
	w := cv.Queue().Enqueue()
	if m != nil {
		if errno := m.Unlock(); errno != kerrno.Success {
			cv.Queue().Remove(w)
			return errno
		}
	}

	result := s.Await(context.Background(), self, cv.Queue(), w, &cv.Base, deadline)

	var relockErrno kerrno.Errno
	if m != nil {
		relockErrno = m.Lock(s, self)
	}

	// The relock is itself interruptible (unlike WaitInternal's original,
	// uninterruptible lock->Lock()), so it can fail independently of why
	// the wait itself returned. A caller must not be told Success while it
	// does not actually hold m, so a failed relock always wins.
	if relockErrno != kerrno.Success {
		return relockErrno
	}

	switch result {
	case sched.TimedOut:
		return kerrno.Timeout
	case sched.Interrupted:
		return kerrno.Interrupted
	default:
		return kerrno.Success
	}
}

// Signal wakes a single waiter, spec §4.F's wakeup(1).
func (cv *ConditionVariable) Signal() {
	if cv.Queue().Wake() {
		cv.NotifyObservers(1)
	}
}

// Broadcast wakes every waiter, spec §4.F's wakeup(0) ("0 = all").
func (cv *ConditionVariable) Broadcast() {
	if n := cv.Queue().WakeAll(); n > 0 {
		cv.NotifyObservers(uint32(n))
	}
}
