package ksync

import (
	"context"
	"sync"

	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

// Semaphore is spec §3/§4.G's counting semaphore: acquire blocks while
// count is zero, release(n) adds n and wakes up to n waiters in FIFO
// order.
type Semaphore struct {
	kobject.Base

	mu    sync.Mutex
	count uint32
	clock ktime.ClockID
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(name string, initial uint32, clock ktime.ClockID) *Semaphore {
	sem := &Semaphore{count: initial, clock: clock}
	sem.Init(name, kobject.KindSemaphore)
	return sem
}

// Count returns the current count.
func (sem *Semaphore) Count() uint32 {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return sem.count
}

// PollReady implements kobject.Pollable: read-ready whenever a unit is
// available to acquire.
func (sem *Semaphore) PollReady(mode kobject.WaitMode) bool {
	if mode != kobject.WaitRead {
		return false
	}
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return sem.count > 0
}

// TryAcquire attempts a non-blocking acquire of one unit.
func (sem *Semaphore) TryAcquire() kerrno.Errno {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	if sem.count == 0 {
		return kerrno.Busy
	}
	sem.count--
	return kerrno.Success
}

// Acquire blocks while the count is zero, then decrements it.
func (sem *Semaphore) Acquire(s *sched.Scheduler, self *sched.Thread) kerrno.Errno {
	return sem.AcquireClock(s, self, ktime.Deadline{})
}

// AcquireClock is Acquire with an optional deadline.
func (sem *Semaphore) AcquireClock(s *sched.Scheduler, self *sched.Thread, deadline ktime.Deadline) kerrno.Errno {
	for {
		sem.mu.Lock()
		if sem.count > 0 {
			sem.count--
			sem.mu.Unlock()
			return kerrno.Success
		}
		w := sem.Queue().Enqueue()
		sem.mu.Unlock()

		result := s.Await(context.Background(), self, sem.Queue(), w, &sem.Base, deadline)
		switch result {
		case sched.TimedOut:
			return kerrno.Timeout
		case sched.Interrupted:
			return kerrno.Interrupted
		case sched.Woken:
			// loop: re-check the count, since release(n) may have
			// woken more waiters than units available if a racing
			// acquire stole one first.
		}
	}
}

// Release adds n to the count and wakes up to n waiters, spec §4.G / the
// boundary property "release(n) with n > waiters wakes all waiters and
// leaves residual count = n - waiters".
func (sem *Semaphore) Release(n uint32) {
	if n == 0 {
		return
	}
	sem.mu.Lock()
	sem.count += n
	woken := sem.Queue().WakeN(int(n))
	sem.mu.Unlock()

	if woken > 0 {
		sem.NotifyObservers(uint32(woken))
	}
}
