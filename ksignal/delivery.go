package ksignal

import (
	"github.com/kavionic/padoskernel/handle"
	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/sched"
)

// setPending ORs sig's bit into target's pending-signal mask.
func setPending(target *sched.Thread, sig Signal) {
	for {
		old := target.PendingSignals.Load()
		next := old | uint64(Mask(sig))
		if target.PendingSignals.CompareAndSwap(old, next) {
			return
		}
	}
}

func clearPending(target *sched.Thread, sig Signal) {
	for {
		old := target.PendingSignals.Load()
		next := old &^ uint64(Mask(sig))
		if target.PendingSignals.CompareAndSwap(old, next) {
			return
		}
	}
}

// Kill sends sig to target, the Go analogue of ksend_signal_to_thread:
// signal 0 probes deliverability without affecting the target, SIGCONT
// and SIGKILL always wake a blocked target regardless of its blocked
// mask, and the init thread (handle.InitThreadHandle) only ever gets
// woken, never gains pending signal state.
func Kill(target *sched.Thread, sig Signal) kerrno.Errno {
	if target.State() == sched.StateZombie {
		return kerrno.NoSuchProcess
	}
	if sig == 0 {
		return kerrno.Success
	}
	if target.Handle == uint32(handle.InitThreadHandle) {
		target.Interrupt()
		return kerrno.Success
	}

	setPending(target, sig)

	switch {
	case sig == SIGCONT || sig == SIGKILL:
		target.Interrupt()
	case sig == SIGCHLD || !BlockedMask(target).Has(sig):
		target.Interrupt()
	}
	return kerrno.Success
}

// QueueSignal sends sig to target with an attached payload, the Go
// analogue of kqueue_signal_to_thread: it records info in the target's
// queued-signal table (coalescing below SIGRTMIN, never above) before
// marking the signal pending and waking the target if it is unblocked.
func QueueSignal(target *sched.Thread, sig Signal, value int64) kerrno.Errno {
	if target.State() == sched.StateZombie {
		return kerrno.NoSuchProcess
	}
	if sig == 0 {
		return kerrno.Success
	}
	if target.Handle == uint32(handle.InitThreadHandle) {
		target.Interrupt()
		return kerrno.Success
	}

	tableFor(target).enqueue(sig, Info{Signo: sig, Code: CodeQueue, Value: value})
	setPending(target, sig)

	if !BlockedMask(target).Has(sig) {
		target.Interrupt()
	}
	return kerrno.Success
}

// UnblockedPending returns the set of pending signals not currently
// blocked, the thing a syscall return and a blocking primitive's wakeup
// both check.
func UnblockedPending(t *sched.Thread) SignalSet {
	pending := SignalSet(t.PendingSignals.Load())
	return pending &^ BlockedMask(t)
}

// NextPending selects the next signal process_pending_signals should
// deliver, in the original's fixed priority order: SIGKILL, SIGSTOP,
// SIGCONT, then ascending numeric order among the rest. Returns false if
// nothing unblocked is pending.
func NextPending(t *sched.Thread) (Signal, bool) {
	pending := UnblockedPending(t)
	if pending == 0 {
		return 0, false
	}
	for _, sig := range [...]Signal{SIGKILL, SIGSTOP, SIGCONT} {
		if pending.Has(sig) {
			return sig, true
		}
	}
	for sig := Signal(1); int(sig) <= NumSignals; sig++ {
		if pending.Has(sig) {
			return sig, true
		}
	}
	return 0, false
}

// takeInfo removes and returns the siginfo payload for sig: the queued
// one if QueueSignal attached one, else a synthesized CodeUser info,
// mirroring kprocess_signal's "no queue node" fallback. It always clears
// sig's pending bit unless another queued instance of the same
// non-realtime signal remains (there cannot be, since those coalesce) or
// a later real-time instance is still queued.
func takeInfo(t *sched.Thread, sig Signal) Info {
	tbl := tableFor(t)
	if info, ok := tbl.dequeue(sig); ok {
		if !tbl.hasQueued(sig) {
			clearPending(t, sig)
		}
		return info
	}
	clearPending(t, sig)
	return Info{Signo: sig, Code: CodeUser}
}

// DeliveryResult reports what Deliver actually did with a signal, so a
// caller (a syscall return hook, a fault handler) can react: terminate
// the thread, leave it Stopped, or resume after a handler ran.
type DeliveryResult int

const (
	DeliveryIgnored DeliveryResult = iota
	DeliveryHandled
	DeliveryStopped
	DeliveryTerminated
)

// Deliver applies sig's disposition for t, synchronously invoking a
// registered handler if Disposition is Handled, applying the built-in
// stop/terminate/ignore/continue action otherwise. Standing in for the
// original's stack-frame injection (there is no raw stack to splice a
// trampoline onto in Go), the handler call here literally is the
// resumption: the blocked-mask save/restore around it reproduces
// sa_mask/SA_NODEFER/SA_RESETHAND exactly, and the handler's ordinary Go
// return is the sigreturn.
func Deliver(t *sched.Thread, sig Signal) DeliveryResult {
	return deliver(t, sig, takeInfo(t, sig), false)
}

// RaiseFault delivers a synchronously-classified CPU fault as sig/info
// immediately, bypassing the pending/queued mechanism entirely: a fault
// is synchronous by nature (it interrupted a specific instruction), not
// something that waits for the next syscall-return checkpoint. Mirrors
// handle_fault's fromFault=true call into kprocess_signal, which
// overrides even an explicit SIG_IGN disposition — a fault cannot be
// silently ignored, spec §4.K.
func RaiseFault(t *sched.Thread, sig Signal, info Info) DeliveryResult {
	return deliver(t, sig, info, true)
}

func deliver(t *sched.Thread, sig Signal, info Info, fromFault bool) DeliveryResult {
	action := Action(t, sig)

	useDefault := action.Disposition == Default ||
		(action.Disposition == Ignore && (fromFault || !canBeIgnored(sig)))
	if useDefault {
		switch defaultActionFor(sig) {
		case ActionStop:
			return DeliveryStopped
		case ActionTerminate, ActionTerminateCoreDump:
			return DeliveryTerminated
		default:
			return DeliveryIgnored
		}
	}
	if action.Disposition == Ignore {
		return DeliveryIgnored
	}

	if action.Flags&FlagResetHand != 0 && canAutoReset(sig) {
		reset := action
		reset.Disposition = Default
		reset.Flags &^= FlagResetHand
		SetAction(t, sig, reset)
	}

	prevMask := BlockedMask(t)
	blockDuring := action.Mask
	if action.Flags&FlagNoDefer == 0 {
		blockDuring = blockDuring.With(sig)
	}
	SetMask(t, SigSetMask, prevMask|blockDuring)
	if action.Handler != nil {
		action.Handler(sig, info)
	}
	SetMask(t, SigSetMask, prevMask)
	return DeliveryHandled
}

// ProcessPending repeatedly delivers the highest-priority unblocked
// pending signal until none remain or one causes a stop/terminate,
// mirroring kprocess_pending_signals's loop (the per-syscall-return and
// per-wakeup re-check point, spec §4.J).
func ProcessPending(t *sched.Thread) DeliveryResult {
	for {
		sig, ok := NextPending(t)
		if !ok {
			return DeliveryIgnored
		}
		result := Deliver(t, sig)
		if result == DeliveryStopped || result == DeliveryTerminated {
			return result
		}
	}
}
