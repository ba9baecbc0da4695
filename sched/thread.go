package sched

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/waitqueue"
)

// Priority is a ready-queue level; higher values run before lower ones,
// spec §4.C ("Integer levels 0..N with higher = more urgent").
type Priority int

// NumPriorityLevels bounds the ready-queue array. 32 levels mirrors the
// handful of priority bands PadOS actually uses (idle, normal, realtime
// bands) with headroom, not a hardware register width.
const NumPriorityLevels = 32

// Thread is the kernel's Thread Control Block, spec §3. It embeds
// kobject.Base so a Thread is itself a waitable, named kernel object (the
// capability a join() call targets), following this module's convention
// that every kernel primitive embeds kobject.Base instead of duplicating
// naming/wait-queue plumbing (see kobject package doc).
type Thread struct {
	kobject.Base

	Handle   uint32
	Nominal  Priority
	Dynamic  Priority
	Detached bool

	state       *fastState
	goroutineID atomic.Uint64

	// PendingSignals/BlockedSignals are checked on every syscall return
	// and blocking-primitive wakeup, so they live directly on the TCB as
	// atomics rather than behind the heavier per-thread signal side-table
	// that ksignal keeps in TLS for queued real-time nodes and sigaction
	// records.
	PendingSignals atomic.Uint64
	BlockedSignals atomic.Uint64

	runTime atomic.Int64 // accumulated run time, nanoseconds

	blockedOnMu sync.RWMutex
	blockedOn   *kobject.Base

	joinMu      sync.Mutex
	joinWaiters waitqueue.Queue

	exitMu    sync.Mutex
	exitValue any
	exited    bool

	tlsMu sync.Mutex
	tls   map[string]any

	interruptMu sync.Mutex
	interruptCh chan struct{}
}

// newThread allocates a TCB in StateReady. The caller assigns Handle and
// registers it with a Registry before starting the backing goroutine.
func newThread(name string, nominal Priority) *Thread {
	t := &Thread{
		Nominal: nominal,
		Dynamic: nominal,
		state:   newFastState(StateReady),
		tls:     make(map[string]any),
	}
	t.Init(name, kobject.KindThread)
	return t
}

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return t.state.Load() }

// bindGoroutine records the calling goroutine's id as this TCB's backing
// goroutine, following eventloop/loop.go's loopGoroutineID.Store pattern.
func (t *Thread) bindGoroutine() {
	t.goroutineID.Store(currentGoroutineID())
	t.state.Store(StateRunning)
}

// IsCurrent reports whether the calling goroutine is this thread's backing
// goroutine, the direct analogue of eventloop's isLoopThread.
func (t *Thread) IsCurrent() bool {
	id := t.goroutineID.Load()
	return id != 0 && id == currentGoroutineID()
}

// RunTime returns the accumulated on-CPU time, spec §3's "run-time
// accumulator in nanoseconds".
func (t *Thread) RunTime() time.Duration {
	return time.Duration(t.runTime.Load())
}

func (t *Thread) addRunTime(d time.Duration) {
	t.runTime.Add(int64(d))
}

// setBlockedOn records the kernel object this thread is parked on, so the
// fault handler and debugger-freeze path can find and evict it. A nil
// argument clears it.
func (t *Thread) setBlockedOn(obj *kobject.Base) {
	t.blockedOnMu.Lock()
	t.blockedOn = obj
	t.blockedOnMu.Unlock()
}

// BlockedOn returns the kernel object this thread is currently waiting on,
// or nil if it is not blocked.
func (t *Thread) BlockedOn() *kobject.Base {
	t.blockedOnMu.RLock()
	defer t.blockedOnMu.RUnlock()
	return t.blockedOn
}

// enqueueJoinWaiter parks a waiter on this thread's join queue, spec §3's
// "a wait-queue of threads blocked in join() on this thread". If the
// thread has already reached StateZombie, no waiter is created and
// alreadyExited is true, telling the caller to proceed without blocking. joinMu serializes
// this check-and-enqueue against exitAndWake's state-then-broadcast so a
// joiner can never park after the broadcast already fired.
func (t *Thread) enqueueJoinWaiter() (w *waitqueue.Waiter, alreadyExited bool) {
	t.joinMu.Lock()
	defer t.joinMu.Unlock()
	if t.State() == StateZombie {
		return nil, true
	}
	return t.joinWaiters.Enqueue(), false
}

// exitAndWake transitions the thread to StateZombie and wakes every parked
// joiner, atomically with respect to enqueueJoinWaiter.
func (t *Thread) exitAndWake() {
	t.joinMu.Lock()
	t.state.Store(StateZombie)
	t.joinWaiters.WakeAll()
	t.joinMu.Unlock()
}

// setExitValue records the thread function's return value exactly once and
// reports whether it already exited (a second call is a no-op, matching
// POSIX's "join/detach race" semantics being resolved by whoever sets
// exited first).
func (t *Thread) setExitValue(v any) (already bool) {
	t.exitMu.Lock()
	defer t.exitMu.Unlock()
	if t.exited {
		return true
	}
	t.exitValue = v
	t.exited = true
	return false
}

// ExitValue returns the thread function's return value and whether it has
// exited yet.
func (t *Thread) ExitValue() (any, bool) {
	t.exitMu.Lock()
	defer t.exitMu.Unlock()
	return t.exitValue, t.exited
}

// Exit terminates the calling thread immediately with value as its exit
// value, the thread_exit/exit syscall's defining property that the
// original expresses as a call that never returns to its caller. Go has
// no equivalent of unwinding straight to a trampoline return address, so
// Exit records the value then calls runtime.Goexit, which unwinds the
// backing goroutine's stack (running deferred calls along the way,
// including Spawn's own exit bookkeeping) without ever returning to
// whatever called Exit.
func (t *Thread) Exit(value any) {
	t.setExitValue(value)
	runtime.Goexit()
}

// TLS gets a value from this thread's per-thread storage block (spec §3:
// "a reference to a per-thread TLS block"), used by ksignal to stash its
// sigaction table and queued-signal list without widening the TCB itself.
func (t *Thread) TLS(key string) (any, bool) {
	t.tlsMu.Lock()
	defer t.tlsMu.Unlock()
	v, ok := t.tls[key]
	return v, ok
}

// SetTLS installs a value in this thread's per-thread storage block.
func (t *Thread) SetTLS(key string, value any) {
	t.tlsMu.Lock()
	t.tls[key] = value
	t.tlsMu.Unlock()
}

// armInterrupt opens a fresh channel that Interrupt can close to unblock
// this thread's current Await call, spec §4.J's "a pending, unblocked
// signal interrupts any blocking primitive with Interrupted".
func (t *Thread) armInterrupt() <-chan struct{} {
	t.interruptMu.Lock()
	defer t.interruptMu.Unlock()
	ch := make(chan struct{})
	t.interruptCh = ch
	return ch
}

// disarmInterrupt clears the interrupt channel once an Await call returns,
// so a signal arriving after the fact does not affect the next wait.
func (t *Thread) disarmInterrupt() {
	t.interruptMu.Lock()
	t.interruptCh = nil
	t.interruptMu.Unlock()
}

// hasUnblockedPendingSignal reports whether t has a pending signal not in
// its blocked mask, the same test ksignal.UnblockedPending makes (kept as a
// package-local copy rather than an import, since ksignal imports sched to
// reach Thread and a back-import would cycle). Used by Await to catch a
// signal that raced armInterrupt: Kill/QueueSignal's call to Interrupt was a
// no-op if it landed before interruptCh existed, so the bit is still set in
// PendingSignals with nothing left to re-signal it.
func (t *Thread) hasUnblockedPendingSignal() bool {
	return t.PendingSignals.Load()&^t.BlockedSignals.Load() != 0
}

// Interrupt wakes this thread's current Await call, if any, with
// Interrupted. A no-op if the thread is not currently blocked via Await.
func (t *Thread) Interrupt() {
	t.interruptMu.Lock()
	defer t.interruptMu.Unlock()
	if t.interruptCh != nil {
		close(t.interruptCh)
		t.interruptCh = nil
	}
}
