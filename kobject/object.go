// Package kobject defines the common base every kernel object embeds:
// a name, a type tag, a wait queue of its own blocked waiters, and the set
// of ObjectWaitGroups currently observing it (spec §6). It is grounded on
// the teacher's shared-base convention rather than any single file — every
// kernel primitive in this module (mutex, condvar, semaphore, message port)
// embeds Base the way the teacher's batcher/poller/loop types each embed a
// small state-tracking struct instead of duplicating lifecycle bookkeeping.
package kobject

import (
	"sync"

	"github.com/kavionic/padoskernel/waitqueue"
)

// Kind is a closed enum of kernel object types, used for syscall argument
// validation (spec §4: "wrong type" is InvalidArg, not a panic) and for
// Observer bitmap matching.
type Kind uint8

const (
	KindThread Kind = iota
	KindMutex
	KindConditionVariable
	KindSemaphore
	KindMessagePort
	KindObjectWaitGroup
	KindINode
)

func (k Kind) String() string {
	switch k {
	case KindThread:
		return "thread"
	case KindMutex:
		return "mutex"
	case KindConditionVariable:
		return "condvar"
	case KindSemaphore:
		return "semaphore"
	case KindMessagePort:
		return "message_port"
	case KindObjectWaitGroup:
		return "wait_group"
	case KindINode:
		return "inode"
	default:
		return "unknown"
	}
}

// Observer is the narrow interface an ObjectWaitGroup uses to register
// itself against the objects it watches, kept separate from the concrete
// waitgroup package to avoid an import cycle (kobject is a leaf package;
// waitgroup depends on it, not the reverse).
type Observer interface {
	// NotifyReady is called by the observed object whenever its
	// ready/signalled condition changes, with the bit(s) that became ready.
	NotifyReady(obj *Base, ready uint32)
}

// WaitMode mirrors KWaitableObject::ObjectWaitMode: the direction an
// ObjectWaitGroup member is being watched for.
type WaitMode uint8

const (
	// WaitRead is readiness for "would not block a read/acquire" —
	// a message available, a semaphore with count > 0, a mutex free.
	WaitRead WaitMode = iota
	// WaitWrite is readiness for "would not block a send/release" —
	// room in a message port, for example.
	WaitWrite
)

// Pollable is implemented by kernel objects an ObjectWaitGroup can watch.
// PollReady reports whether waiting in the given mode would return
// immediately right now, without blocking.
type Pollable interface {
	PollReady(mode WaitMode) bool
}

// Base is the embeddable common header for every kernel object.
type Base struct {
	mu   sync.Mutex
	name string
	kind Kind

	queue waitqueue.Queue

	observers map[Observer]struct{}
}

// Init must be called once, typically from the concrete type's constructor,
// before any other Base method is used.
func (b *Base) Init(name string, kind Kind) {
	b.name = name
	b.kind = kind
}

// Name returns the object's name, which need not be unique; it exists for
// diagnostics and /proc-style introspection, not lookup.
func (b *Base) Name() string { return b.name }

// Kind returns the object's closed type tag.
func (b *Base) Kind() Kind { return b.kind }

// Queue exposes the object's own wait queue for the concrete type's Wait
// implementation to park against.
func (b *Base) Queue() *waitqueue.Queue { return &b.queue }

// AddObserver registers obs to be notified of readiness changes, called by
// waitgroup.ObjectWaitGroup.AddObject.
func (b *Base) AddObserver(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.observers == nil {
		b.observers = make(map[Observer]struct{})
	}
	b.observers[obs] = struct{}{}
}

// RemoveObserver undoes AddObserver.
func (b *Base) RemoveObserver(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, obs)
}

// NotifyObservers fans a readiness change out to every registered observer,
// called by the concrete object whenever its signalled state changes (a
// semaphore posted, a port receiving data, and so on).
func (b *Base) NotifyObservers(ready uint32) {
	b.mu.Lock()
	obs := make([]Observer, 0, len(b.observers))
	for o := range b.observers {
		obs = append(obs, o)
	}
	b.mu.Unlock()
	for _, o := range obs {
		o.NotifyReady(b, ready)
	}
}
