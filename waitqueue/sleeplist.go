package waitqueue

import (
	"container/heap"
	"time"
)

// sleepEntry is one armed deadline, grounded on eventloop/loop.go's timer
// struct (a fire time plus an opaque payload), repurposed here to carry the
// closure Expire runs when the deadline passes.
type sleepEntry struct {
	when  time.Time
	index int
	fire  func()
}

// sleepHeap is a min-heap of sleepEntry ordered by fire time, the direct
// analogue of eventloop/loop.go's timerHeap.
type sleepHeap []*sleepEntry

func (h sleepHeap) Len() int            { return len(h) }
func (h sleepHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h sleepHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *sleepHeap) Push(x interface{}) {
	e := x.(*sleepEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *sleepHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// SleepList orders deadlines for threads blocked in a timed wait, so a
// single ticking goroutine (the scheduler's housekeeping loop, spec §3.H)
// can expire them in deadline order without scanning every blocked thread
// every tick.
type SleepList struct {
	h sleepHeap
}

// Handle identifies one armed deadline so it can be cancelled if the
// waiter is woken normally before the deadline elapses.
type Handle struct {
	entry *sleepEntry
}

// Arm schedules fire to run (via Expire) at or after when. Returns a Handle
// that must be passed to Disarm if the wait completes normally.
func (s *SleepList) Arm(when time.Time, fire func()) Handle {
	e := &sleepEntry{when: when, fire: fire}
	heap.Push(&s.h, e)
	return Handle{entry: e}
}

// Disarm cancels a previously armed deadline. Safe to call even if the
// deadline already fired (in which case it is a no-op).
func (s *SleepList) Disarm(h Handle) {
	if h.entry == nil || h.entry.index < 0 {
		return
	}
	heap.Remove(&s.h, h.entry.index)
}

// NextDeadline reports the earliest armed deadline, if any.
func (s *SleepList) NextDeadline() (time.Time, bool) {
	if len(s.h) == 0 {
		return time.Time{}, false
	}
	return s.h[0].when, true
}

// Expire fires every entry whose deadline is at or before now, returning
// the count expired.
func (s *SleepList) Expire(now time.Time) int {
	n := 0
	for len(s.h) > 0 && !s.h[0].when.After(now) {
		e := heap.Pop(&s.h).(*sleepEntry)
		e.fire()
		n++
	}
	return n
}

// Len reports the number of armed deadlines.
func (s *SleepList) Len() int {
	return len(s.h)
}
