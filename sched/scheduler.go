// Package sched implements the thread control block, priority ready
// queues, preemption tick housekeeping, and zombie reaping described in
// spec §4.C. True hardware-style preemption (a PendSV exception interrupting
// arbitrary machine instructions) has no meaning for a goroutine: the Go
// runtime is already a fair, preemptible M:N scheduler, and fighting it with
// a second cooperative scheduler layered on top would only add deadlock
// risk for no behavioral gain. This package therefore keeps the parts of
// the spec that are genuine kernel semantics — priority-ordered
// readiness bookkeeping, deadline-ordered sleep expiry, zombie reaping,
// thread-local run-time accounting — and expresses "context switch" as the
// state transitions and wakeup ordering those semantics require, not as
// literal single-core serialization (mirroring the teacher's own "tests
// must not assume more than one [CPU]" framing for process-wide
// singletons).
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/kavionic/padoskernel/handle"
	"github.com/kavionic/padoskernel/klog"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/waitqueue"
)

// Scheduler is the process-wide (per spec §9, "an implementation may use a
// process-wide singleton") kernel scheduling state: the handle registry,
// time source, priority ready queues, sleep list, and zombie list. Tests
// construct their own via Boot instead of relying on a package-level
// singleton, per the spec's explicit instruction not to assume only one
// exists.
type Scheduler struct {
	Clock    *ktime.Source
	Log      *klog.Logger
	registry *handle.Registry

	mu    sync.Mutex
	ready [NumPriorityLevels][]*Thread

	sleepMu sync.Mutex
	sleep   waitqueue.SleepList

	zombiesMu  sync.Mutex
	zombies    []*Thread
	zombieWake chan struct{}

	idle *Thread
	init *Thread

	tickPeriod time.Duration
	tickStop   chan struct{}
	tickDone   chan struct{}
}

// Option configures Boot, following this module's functional-options
// convention (see klog.Option).
type Option func(*bootConfig)

type bootConfig struct {
	tickPeriod time.Duration
	logger     *klog.Logger
}

// WithTickPeriod overrides the preemption tick's housekeeping interval
// (default 1ms, matching the source's 1kHz SysTick).
func WithTickPeriod(d time.Duration) Option {
	return func(c *bootConfig) { c.tickPeriod = d }
}

// WithLogger overrides the scheduler's logger (default klog.New("sched")).
func WithLogger(l *klog.Logger) Option {
	return func(c *bootConfig) { c.logger = l }
}

// Boot constructs a Scheduler, registers the reserved idle (handle 0) and
// init (handle 1) threads, and starts the tick-housekeeping and
// zombie-reaping goroutines, mirroring Kernel.cpp's boot sequence.
func Boot(opts ...Option) *Scheduler {
	c := &bootConfig{tickPeriod: time.Millisecond}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = klog.New("sched")
	}

	s := &Scheduler{
		Clock:      ktime.NewSource(),
		Log:        c.logger,
		registry:   handle.New(),
		zombieWake: make(chan struct{}, 1),
		tickPeriod: c.tickPeriod,
		tickStop:   make(chan struct{}),
		tickDone:   make(chan struct{}),
	}

	s.idle = newThread("idle", 0)
	s.idle.Handle = uint32(handle.IdleThreadHandle)
	s.registry.Set(handle.IdleThreadHandle, s.idle)
	s.idle.state.Store(StateRunning)

	s.init = newThread("init", 0)
	s.init.Handle = uint32(handle.InitThreadHandle)
	s.registry.Set(handle.InitThreadHandle, s.init)

	go s.runTick()
	go s.runInitThread()

	return s
}

// Registry exposes the handle table backing this scheduler, used by the
// ksyscall handlers to register and look up the kernel objects they create.
func (s *Scheduler) Registry() *handle.Registry { return s.registry }

// IdleThread returns the reserved idle thread (handle 0).
func (s *Scheduler) IdleThread() *Thread { return s.idle }

// InitThread returns the reserved init/reaper thread (handle 1).
func (s *Scheduler) InitThread() *Thread { return s.init }

func (s *Scheduler) readyIndex(p Priority) int {
	if p < 0 {
		return 0
	}
	if int(p) >= NumPriorityLevels {
		return NumPriorityLevels - 1
	}
	return int(p)
}

func (s *Scheduler) enqueueReady(t *Thread) {
	s.mu.Lock()
	idx := s.readyIndex(t.Dynamic)
	s.ready[idx] = append(s.ready[idx], t)
	s.mu.Unlock()
}

func (s *Scheduler) dequeueReady(t *Thread) {
	s.mu.Lock()
	idx := s.readyIndex(t.Dynamic)
	q := s.ready[idx]
	for i, cand := range q {
		if cand == t {
			s.ready[idx] = append(q[:i], q[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// SelectNext reports the highest-priority non-empty ready queue's head
// thread, spec §4.C's "scheduler picks the lowest non-empty level" read in
// this module's convention of higher-number-is-more-urgent (so "lowest
// non-empty level" in the source's indexing is "highest-numbered non-empty
// level" here). Returns nil if every ready queue is empty (the idle thread
// is never placed on a ready queue; it is the implicit fallback).
func (s *Scheduler) SelectNext() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := NumPriorityLevels - 1; i >= 0; i-- {
		if len(s.ready[i]) > 0 {
			return s.ready[i][0]
		}
	}
	return nil
}

// ThreadFunc is the body a spawned thread runs. It receives the Scheduler
// and its own Thread handle so it can park itself via Await.
type ThreadFunc func(s *Scheduler, self *Thread)

// Spawn creates a new thread at the given nominal priority, registers it in
// the handle registry, and starts its backing goroutine. The returned
// Thread transitions Ready → Running as soon as its goroutine is scheduled
// by the Go runtime.
func (s *Scheduler) Spawn(name string, priority Priority, fn ThreadFunc) *Thread {
	t := newThread(name, priority)
	t.Handle = uint32(s.registry.Alloc(t))
	s.enqueueReady(t)

	go func() {
		s.dequeueReady(t)
		t.bindGoroutine()
		runStart := time.Now()
		// Deferred rather than a plain post-call statement: Thread.Exit
		// reaches the thread_exit/exit syscall handler's call to
		// runtime.Goexit, which unwinds straight past fn(s, t) without
		// ever returning to it, so only a defer sees both the ordinary
		// "fn returned" exit and the Goexit-driven one.
		defer func() {
			t.addRunTime(time.Since(runStart))
			s.exit(t, nil)
		}()

		fn(s, t)
	}()

	return t
}

// exit transitions t to Zombie, records its return value, and hands it to
// the reaper (for detached threads) or leaves it for a joiner to collect.
func (s *Scheduler) exit(t *Thread, value any) {
	t.setExitValue(value)
	t.exitAndWake()

	if t.Detached {
		s.zombiesMu.Lock()
		s.zombies = append(s.zombies, t)
		s.zombiesMu.Unlock()
		select {
		case s.zombieWake <- struct{}{}:
		default:
		}
	}
}

// Join blocks the calling thread until target exits, then frees target's
// handle and returns its exit value, spec §3 ("joinable threads stay as
// zombies until joined, then are freed by the joiner").
func (s *Scheduler) Join(caller *Thread, target *Thread) any {
	if w, alreadyExited := target.enqueueJoinWaiter(); !alreadyExited {
		caller.state.Store(StateWaiting)
		<-w.Wake()
		caller.state.Store(StateRunning)
	}
	v, _ := target.ExitValue()
	s.registry.Free(handle.Handle(target.Handle))
	target.state.Store(StateDeleted)
	return v
}

// runInitThread is the init thread's body: a long-lived goroutine that
// drains the zombie list and frees handles, spec §4.C's "the init thread
// waits on a condition variable, empties the list, and frees handles",
// expressed here with a buffered wake channel instead of a condition
// variable (ksync.ConditionVariable is itself built on this package, so
// the bootstrap reaper cannot depend on it without a cycle).
func (s *Scheduler) runInitThread() {
	s.init.bindGoroutine()
	for {
		<-s.zombieWake

		s.zombiesMu.Lock()
		batch := s.zombies
		s.zombies = nil
		s.zombiesMu.Unlock()

		for _, z := range batch {
			s.registry.Free(handle.Handle(z.Handle))
			z.state.Store(StateDeleted)
			s.Log.Debug().Str("thread", z.Name()).Msg("zombie reaped")
		}
	}
}

// runTick drives sleep-list expiry at tickPeriod, the housekeeping half of
// spec §4.C's preemption tick ("the sleep list head's resume-time has
// passed" triggers a wakeup).
func (s *Scheduler) runTick() {
	defer close(s.tickDone)
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.tickStop:
			return
		case now := <-ticker.C:
			s.sleepMu.Lock()
			s.sleep.Expire(now)
			s.sleepMu.Unlock()
		}
	}
}

// Shutdown stops the tick-housekeeping goroutine. The init-thread reaper is
// intentionally left running (spec's "destroy-never" global scheduler
// state note, §9); it blocks forever on an empty channel and is collected
// with the process.
func (s *Scheduler) Shutdown() {
	close(s.tickStop)
	<-s.tickDone
}

// BlockResult is the outcome of a call to Await.
type BlockResult int

const (
	// Woken means an explicit Wake (via the waitqueue.Queue the caller
	// parked on) fired.
	Woken BlockResult = iota
	// TimedOut means the deadline elapsed with no wakeup.
	TimedOut
	// Interrupted means a pending, unblocked signal fired while parked
	// (spec §4.F/§4.G contract with signals).
	Interrupted
)

// Await suspends the calling thread t on a waiter it has already enqueued
// (w, on queue q), arming deadline against the sleep list if one is given.
// Splitting "enqueue" (Queue.Enqueue, done by the caller under whatever
// mutex protects its predicate) from "suspend" (Await) is what closes the
// lost-wakeup race KMutex.cpp avoids by enqueueing and requesting the
// context switch inside the same IRQ-off critical section: the caller
// must enqueue w and release its own lock before calling Await, exactly
// mirroring that critical-section boundary.
func (s *Scheduler) Await(ctx context.Context, t *Thread, q *waitqueue.Queue, w *waitqueue.Waiter, obj *kobject.Base, deadline ktime.Deadline) BlockResult {
	t.setBlockedOn(obj)
	interrupt := t.armInterrupt()

	// A signal that became pending and unblocked between the caller's
	// Enqueue and this call arrives as an Interrupt() while interruptCh was
	// still nil (armInterrupt above hadn't run yet), so it was a no-op and
	// the select below would otherwise never see it. Re-check explicitly,
	// the same unblocked-pending check ksyscall's post-syscall-return hook
	// does against ksignal's table, rather than parking on a signal that
	// already arrived.
	if t.hasUnblockedPendingSignal() {
		q.Remove(w)
		t.disarmInterrupt()
		t.setBlockedOn(nil)
		t.state.Store(StateRunning)
		return Interrupted
	}

	mono, infinite := s.Clock.ToMonotonicDeadline(deadline)

	var fired chan struct{}
	if !infinite {
		t.state.Store(StateSleeping)
		fired = make(chan struct{})
		s.sleepMu.Lock()
		h := s.sleep.Arm(mono, func() { close(fired) })
		s.sleepMu.Unlock()
		defer func() {
			s.sleepMu.Lock()
			s.sleep.Disarm(h)
			s.sleepMu.Unlock()
		}()
	} else {
		t.state.Store(StateWaiting)
	}

	var result BlockResult
	select {
	case <-w.Wake():
		result = Woken
	case <-fired:
		q.Remove(w)
		result = TimedOut
	case <-interrupt:
		q.Remove(w)
		result = Interrupted
	case <-ctx.Done():
		q.Remove(w)
		result = Interrupted
	}

	t.disarmInterrupt()
	t.setBlockedOn(nil)
	t.state.Store(StateRunning)
	return result
}
