// Package waitgroup implements ObjectWaitGroup, spec §4.I: a set of
// kernel objects a single thread can block on simultaneously, waking as
// soon as any member becomes ready, grounded on
// original_source/Kernel/KObjectWaitGroup.cpp.
package waitgroup

import (
	"context"
	"sync"

	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

type member struct {
	obj      *kobject.Base
	pollable kobject.Pollable
	mode     kobject.WaitMode
}

// ObjectWaitGroup is spec §4.I's KObjectWaitGroup: AddObject/RemoveObject
// mutate the watched set, Wait blocks until any member is ready or the
// deadline/interrupt fires, returning a per-member ready bitmap.
type ObjectWaitGroup struct {
	kobject.Base

	mu      sync.Mutex
	members []member

	// blocked tracks whether a thread is currently parked in Wait, so
	// Add/Remove/Clear can wait it out first, matching
	// KObjectWaitGroup::WaitForBlockedThread_trw — mutating the member
	// list while a Wait holds per-member listener registrations would
	// race.
	blocked     bool
	blockedCond *ksync.ConditionVariable
}

// New creates an empty wait group.
func New(name string, clock ktime.ClockID) *ObjectWaitGroup {
	wg := &ObjectWaitGroup{
		blockedCond: ksync.NewConditionVariable(name+".blocked", clock),
	}
	wg.Init(name, kobject.KindObjectWaitGroup)
	return wg
}

// NotifyReady implements kobject.Observer: wake every thread parked in
// Wait so it can re-poll the member set. Multiple members readying at
// once collapse into a single wakeup round, same as WakeupAll in the
// original.
func (wg *ObjectWaitGroup) NotifyReady(obj *kobject.Base, ready uint32) {
	wg.Queue().WakeAll()
}

// waitForBlockedThread blocks the caller (already holding wg.mu's Go
// mutex via the caller) until no Wait is in progress. Callers must hold
// wg.mu.
func (wg *ObjectWaitGroup) waitForBlockedThread(s *sched.Scheduler, self *sched.Thread) {
	for wg.blocked {
		w := wg.blockedCond.Queue().Enqueue()
		wg.mu.Unlock()
		s.Await(context.Background(), self, wg.blockedCond.Queue(), w, &wg.blockedCond.Base, ktime.Deadline{})
		wg.mu.Lock()
	}
}

// AddObject registers obj to be watched in the given mode. obj must
// implement kobject.Pollable.
func (wg *ObjectWaitGroup) AddObject(s *sched.Scheduler, self *sched.Thread, obj *kobject.Base, pollable kobject.Pollable, mode kobject.WaitMode) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	wg.waitForBlockedThread(s, self)
	wg.members = append(wg.members, member{obj: obj, pollable: pollable, mode: mode})
	obj.AddObserver(wg)
}

// RemoveObject undoes AddObject. Returns kerrno.InvalidArg if obj/mode
// was never added.
func (wg *ObjectWaitGroup) RemoveObject(s *sched.Scheduler, self *sched.Thread, obj *kobject.Base, mode kobject.WaitMode) kerrno.Errno {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	wg.waitForBlockedThread(s, self)
	for i, m := range wg.members {
		if m.obj == obj && m.mode == mode {
			wg.members = append(wg.members[:i], wg.members[i+1:]...)
			obj.RemoveObserver(wg)
			return kerrno.Success
		}
	}
	return kerrno.InvalidArg
}

// Clear removes every member.
func (wg *ObjectWaitGroup) Clear(s *sched.Scheduler, self *sched.Thread) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	wg.waitForBlockedThread(s, self)
	for _, m := range wg.members {
		m.obj.RemoveObserver(wg)
	}
	wg.members = nil
}

// pollLocked returns, for each member in order, whether it is currently
// ready. Callers must hold wg.mu.
func (wg *ObjectWaitGroup) pollLocked() []bool {
	ready := make([]bool, len(wg.members))
	for i, m := range wg.members {
		ready[i] = m.pollable.PollReady(m.mode)
	}
	return ready
}

func anyTrue(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

// Wait blocks until at least one member is ready, the deadline expires,
// or the calling thread is interrupted. If
// lock is non-nil it is unlocked for the duration of the wait and
// relocked before returning, the same external-mutex contract as
// ksync.ConditionVariable.Wait. The returned slice has one entry per
// currently-registered member, true where that member was found ready.
func (wg *ObjectWaitGroup) Wait(s *sched.Scheduler, self *sched.Thread, lock *ksync.Mutex, deadline ktime.Deadline) ([]bool, kerrno.Errno) {
retry:
	wg.mu.Lock()
	wg.waitForBlockedThread(s, self)

	if ready := wg.pollLocked(); anyTrue(ready) {
		wg.mu.Unlock()
		return ready, kerrno.Success
	}

	w := wg.Queue().Enqueue()
	wg.blocked = true
	wg.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}

	result := s.Await(context.Background(), self, wg.Queue(), w, &wg.Base, deadline)

	var relockErrno kerrno.Errno
	if lock != nil {
		relockErrno = lock.Lock(s, self)
	}

	wg.mu.Lock()
	wg.blocked = false
	wg.blockedCond.Broadcast()
	ready := wg.pollLocked()
	wg.mu.Unlock()

	// A failed relock (the relock is itself interruptible) means the
	// caller does not actually hold lock, which overrides any apparent
	// success from the member poll or the wait's own result.
	if relockErrno != kerrno.Success {
		return ready, relockErrno
	}
	if anyTrue(ready) {
		return ready, kerrno.Success
	}
	// Woken with no member ready: another thread took the readiness first,
	// so this wakeup was spurious and the wait starts over.
	if result == sched.Woken {
		goto retry
	}
	switch result {
	case sched.TimedOut:
		return ready, kerrno.Timeout
	default:
		return ready, kerrno.Interrupted
	}
}
