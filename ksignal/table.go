package ksignal

import (
	"sort"
	"sync"

	"github.com/kavionic/padoskernel/sched"
)

// tlsKey is where a thread's signal side-table lives in its generic TLS
// block (sched.Thread.TLS), keeping sched.Thread itself from growing a
// sigaction array and queued-signal list it would otherwise never touch
// directly.
const tlsKey = "ksignal.table"

type queuedNode struct {
	sig  Signal
	info Info
}

// table is one thread's signal side-state: its sigaction array and the
// queue of pending siginfo payloads (queued signals below SIGRTMIN
// coalesce to their most recent value; real-time signals never coalesce
// and preserve arrival order), mirroring KThreadCB's m_SignalHandlers and
// m_FirstQueuedSignal list.
type table struct {
	mu      sync.Mutex
	actions [NumSignals]SigAction
	queued  []queuedNode
}

func tableFor(t *sched.Thread) *table {
	if v, ok := t.TLS(tlsKey); ok {
		return v.(*table)
	}
	tbl := &table{}
	t.SetTLS(tlsKey, tbl)
	return tbl
}

// SetMask applies how to newSet against t's blocked-signal mask (kept on
// the TCB itself as an atomic, spec §4.J), returning the prior mask.
// SIGKILL and SIGSTOP are never actually blocked even if requested.
func SetMask(t *sched.Thread, how How, newSet SignalSet) SignalSet {
	for {
		old := SignalSet(t.BlockedSignals.Load())
		var next SignalSet
		switch how {
		case SigBlock:
			next = old | newSet
		case SigUnblock:
			next = old &^ newSet
		case SigSetMask:
			next = newSet
		}
		next = next.Without(SIGKILL).Without(SIGSTOP)
		if t.BlockedSignals.CompareAndSwap(uint64(old), uint64(next)) {
			return old
		}
	}
}

// BlockedMask returns t's current blocked-signal mask.
func BlockedMask(t *sched.Thread) SignalSet {
	return SignalSet(t.BlockedSignals.Load())
}

// SetAction installs action as sig's disposition, returning the previous
// one, the Go equivalent of sigaction(2).
func SetAction(t *sched.Thread, sig Signal, action SigAction) SigAction {
	tbl := tableFor(t)
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	old := tbl.actions[sig-1]
	tbl.actions[sig-1] = action
	return old
}

// Action returns sig's current disposition.
func Action(t *sched.Thread, sig Signal) SigAction {
	tbl := tableFor(t)
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return tbl.actions[sig-1]
}

// enqueue inserts a queued siginfo payload, coalescing non-realtime
// signals to their latest value and preserving arrival order for
// real-time ones, mirroring kqueue_signal_to_thread's sorted insert.
func (tbl *table) enqueue(sig Signal, info Info) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if !isRealtime(sig) {
		for i, n := range tbl.queued {
			if n.sig == sig {
				tbl.queued[i].info = info
				return
			}
		}
	}
	tbl.queued = append(tbl.queued, queuedNode{sig: sig, info: info})
	sort.SliceStable(tbl.queued, func(i, j int) bool { return tbl.queued[i].sig < tbl.queued[j].sig })
}

// dequeue removes and returns the first queued payload for sig, if any.
func (tbl *table) dequeue(sig Signal) (Info, bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	for i, n := range tbl.queued {
		if n.sig == sig {
			tbl.queued = append(tbl.queued[:i], tbl.queued[i+1:]...)
			return n.info, true
		}
	}
	return Info{}, false
}

// hasQueued reports whether any payload remains queued for sig.
func (tbl *table) hasQueued(sig Signal) bool {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	for _, n := range tbl.queued {
		if n.sig == sig {
			return true
		}
	}
	return false
}
