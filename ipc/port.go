// Package ipc implements the kernel's message-port IPC primitive, spec
// §3/§4.H: a bounded FIFO of small typed messages with back-pressure on
// both ends, grounded on the same KMutex/KConditionVariable shape as
// ksync (a port is, in effect, a bounded queue guarded by one mutex and
// two condition variables, the pattern every PadOS IPC primitive uses).
package ipc

import (
	"sync/atomic"

	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

// smallObjectThreshold is the payload size at or below which a message's
// buffer comes from the port's freelist; spec §4.H's "drawn from a
// small-object freelist when payload ≤ threshold". Every pooled buffer has
// exactly this capacity, so any small payload fits a reused one.
const smallObjectThreshold = 64

// Message is one entry in a MessagePort's queue.
type Message struct {
	TargetHandler uint32
	Code          int32
	Payload       []byte
}

// MessagePort is spec §4.H's bounded FIFO: send blocks while
// message_count ≥ max_count, receive blocks while message_count == 0.
type MessagePort struct {
	kobject.Base

	mu       *ksync.Mutex
	sendCV   *ksync.ConditionVariable
	recvCV   *ksync.ConditionVariable
	maxCount int
	queue    []*Message
	pool     [][]byte
	count    atomic.Int64
}

// NewMessagePort creates a port that holds at most maxCount messages at
// once. The guarding mutex uses RaiseError recursion mode, matching
// KMessagePort's "message_port_mutex" construction.
func NewMessagePort(name string, maxCount int, clock ktime.ClockID) *MessagePort {
	p := &MessagePort{
		mu:       ksync.NewMutex(name+".lock", ksync.RaiseError, clock),
		sendCV:   ksync.NewConditionVariable(name+".send", clock),
		recvCV:   ksync.NewConditionVariable(name+".recv", clock),
		maxCount: maxCount,
	}
	p.Init(name, kobject.KindMessagePort)
	return p
}

func (p *MessagePort) allocPayload(n int) []byte {
	if n <= smallObjectThreshold && len(p.pool) > 0 {
		buf := p.pool[len(p.pool)-1]
		p.pool = p.pool[:len(p.pool)-1]
		return buf[:n]
	}
	if n <= smallObjectThreshold {
		return make([]byte, n, smallObjectThreshold)
	}
	return make([]byte, n)
}

func (p *MessagePort) freePayload(buf []byte) {
	if cap(buf) == smallObjectThreshold && len(p.pool) < 32 {
		p.pool = append(p.pool, buf[:0])
	}
}

// PollReady implements kobject.Pollable: read-ready when a message is
// queued, write-ready when there is room for another send.
func (p *MessagePort) PollReady(mode kobject.WaitMode) bool {
	switch mode {
	case kobject.WaitRead:
		return p.Count() > 0
	case kobject.WaitWrite:
		return p.Count() < p.maxCount
	default:
		return false
	}
}

// Count reports the number of queued messages. Backed by an atomic
// counter rather than the port mutex so it never has to park a caller
// just to answer a point-in-time query.
func (p *MessagePort) Count() int {
	return int(p.count.Load())
}

// Send blocks while the port is full (message_count ≥ max_count), then
// appends a copy of payload and wakes every waiting receiver.
func (p *MessagePort) Send(s *sched.Scheduler, self *sched.Thread, targetHandler uint32, code int32, payload []byte) kerrno.Errno {
	return p.SendClock(s, self, targetHandler, code, payload, ktime.Deadline{})
}

// SendClock is Send with an optional deadline.
func (p *MessagePort) SendClock(s *sched.Scheduler, self *sched.Thread, targetHandler uint32, code int32, payload []byte, deadline ktime.Deadline) kerrno.Errno {
	if errno := p.lockSelf(s, self); errno != kerrno.Success {
		return errno
	}
	for len(p.queue) >= p.maxCount {
		if errno := p.sendCV.WaitClock(s, self, p.mu, deadline); errno != kerrno.Success {
			p.mu.Unlock()
			return errno
		}
	}

	buf := p.allocPayload(len(payload))
	copy(buf, payload)
	p.queue = append(p.queue, &Message{TargetHandler: targetHandler, Code: code, Payload: buf})
	p.count.Add(1)
	p.mu.Unlock()

	// KMessagePort::SendMessageDeadline wakes every waiting receiver, not
	// just one: only one will find a message left once it re-checks, but
	// any waiter whose own predicate changed independently (e.g. also
	// watching for shutdown) still needs its turn.
	p.recvCV.Broadcast()
	p.NotifyObservers(1)
	return kerrno.Success
}

// Receive blocks while the port is empty, then detaches the head message,
// copies up to len(buf) payload bytes into buf, and returns the number of
// bytes copied along with the message's handler id and code.
func (p *MessagePort) Receive(s *sched.Scheduler, self *sched.Thread, buf []byte) (n int, targetHandler uint32, code int32, errno kerrno.Errno) {
	return p.ReceiveClock(s, self, buf, ktime.Deadline{})
}

// ReceiveClock is Receive with an optional deadline.
func (p *MessagePort) ReceiveClock(s *sched.Scheduler, self *sched.Thread, buf []byte, deadline ktime.Deadline) (n int, targetHandler uint32, code int32, errno kerrno.Errno) {
	if errno = p.lockSelf(s, self); errno != kerrno.Success {
		return 0, 0, 0, errno
	}
	for len(p.queue) == 0 {
		if errno = p.recvCV.WaitClock(s, self, p.mu, deadline); errno != kerrno.Success {
			p.mu.Unlock()
			return 0, 0, 0, errno
		}
	}

	msg := p.queue[0]
	p.queue = p.queue[1:]
	n = copy(buf, msg.Payload)
	targetHandler = msg.TargetHandler
	code = msg.Code
	p.freePayload(msg.Payload)
	p.count.Add(-1)
	p.mu.Unlock()

	p.sendCV.Broadcast()
	return n, targetHandler, code, kerrno.Success
}

func (p *MessagePort) lockSelf(s *sched.Scheduler, self *sched.Thread) kerrno.Errno {
	return p.mu.Lock(s, self)
}
