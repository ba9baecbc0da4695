package ksyscall

import (
	"github.com/kavionic/padoskernel/handle"
	"github.com/kavionic/padoskernel/ipc"
	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ksignal"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
	"github.com/kavionic/padoskernel/waitgroup"
)

// processPendingOnReturn mirrors syscall_return's
// "if (thread.HasUnblockedPendingSignals()) kforce_process_signals()"
// check: any signal that arrived (or got unblocked) during the syscall
// gets delivered before the caller ever sees the syscall's own result.
func processPendingOnReturn(self *sched.Thread) {
	if ksignal.UnblockedPending(self) != 0 {
		ksignal.ProcessPending(self)
	}
}

func init() {
	Table[SysGetMonotonicTimeNs] = sysGetTime(ktime.ClockMonotonicCoarse)
	Table[SysGetMonotonicTimeHiresNs] = sysGetTime(ktime.ClockMonotonicHiRes)
	Table[SysGetRealTimeNs] = sysGetTime(ktime.ClockRealtime)
	Table[SysGetClockTimeNs] = sysGetClockTime

	Table[SysThreadExit] = sysThreadExit
	Table[SysThreadJoin] = sysThreadJoin
	Table[SysGetThreadID] = sysGetThreadID
	Table[SysThreadKill] = sysThreadKill
	Table[SysThreadSigmask] = sysThreadSigmask
	Table[SysThreadSigqueue] = sysThreadSigqueue

	Table[SysSigaction] = sysSigaction
	Table[SysKill] = sysThreadKill
	// SYS_sigreturn exists purely for ABI numbering parity: the original
	// uses it to restore the interrupted context after a signal-handler
	// stack frame returns. Here Deliver invokes the handler as an
	// ordinary synchronous call (see ksignal.Deliver's doc comment), so
	// the handler's own return already is the sigreturn — nothing for
	// this entry to do.
	Table[SysSigreturn] = sysNoop
	Table[SysProcessSignals] = sysProcessSignals

	Table[SysMutexCreate] = sysMutexCreate
	Table[SysMutexDelete] = sysDeleteHandle
	Table[SysMutexLock] = sysMutexLock
	Table[SysMutexTryLock] = sysMutexTryLock
	Table[SysMutexUnlock] = sysMutexUnlock

	Table[SysSemaphoreCreate] = sysSemaphoreCreate
	Table[SysSemaphoreDelete] = sysDeleteHandle
	Table[SysSemaphoreAcquire] = sysSemaphoreAcquire
	Table[SysSemaphoreTryAcquire] = sysSemaphoreTryAcquire
	Table[SysSemaphoreAcquireClockNs] = sysSemaphoreAcquireClock
	Table[SysSemaphoreRelease] = sysSemaphoreRelease
	Table[SysSemaphoreGetCount] = sysSemaphoreGetCount

	Table[SysMessagePortCreate] = sysMessagePortCreate
	Table[SysMessagePortDelete] = sysDeleteHandle
	Table[SysMessagePortSend] = sysMessagePortSend
	Table[SysMessagePortSendClockNs] = sysMessagePortSendClock
	Table[SysMessagePortReceive] = sysMessagePortReceive
	Table[SysMessagePortReceiveClockNs] = sysMessagePortReceiveClock
	Table[SysMessagePortGetCount] = sysMessagePortGetCount

	Table[SysObjectWaitGroupCreate] = sysObjectWaitGroupCreate
	Table[SysObjectWaitGroupDelete] = sysDeleteHandle
	Table[SysObjectWaitGroupAddObject] = sysObjectWaitGroupAddObject
	Table[SysObjectWaitGroupRemoveObject] = sysObjectWaitGroupRemoveObject
	Table[SysObjectWaitGroupWait] = sysObjectWaitGroupWait

	Table[SysExit] = sysThreadExit
	Table[SysDuplicateHandle] = sysDuplicateHandle
	Table[SysDeleteHandle] = sysDeleteHandle
	// SysSysconf, SysReboot, and the VFS entries are left nil: they
	// dispatch through Invoke's NotImplemented fallback, the same role
	// sys_unimplemented plays for an unwired original table entry.
}

func sysNoop(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	return Result{Errno: kerrno.Success}
}

func sysGetTime(id ktime.ClockID) Handler {
	return func(s *sched.Scheduler, self *sched.Thread, args Args) Result {
		return Result{Value: s.Clock.Now(id).UnixNano(), Errno: kerrno.Success}
	}
}

func sysGetClockTime(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	id, ok := args[0].(ktime.ClockID)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	return Result{Value: s.Clock.Now(id).UnixNano(), Errno: kerrno.Success}
}

// sysThreadExit implements both SysThreadExit and SysExit: the calling
// thread terminates immediately via Thread.Exit and never sees this
// handler return, matching exit()'s defining "does not return" contract.
func sysThreadExit(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	var value any
	if len(args) > 0 {
		value = args[0]
	}
	self.Exit(value)
	panic("unreachable: Thread.Exit does not return")
}

func sysThreadJoin(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	h, ok := args[0].(handle.Handle)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	target, ok := obj.(*sched.Thread)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	return Result{Value: s.Join(self, target), Errno: kerrno.Success}
}

func sysGetThreadID(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	return Result{Value: handle.Handle(self.Handle), Errno: kerrno.Success}
}

func resolveThread(s *sched.Scheduler, args Args, idx int) (*sched.Thread, kerrno.Errno) {
	h, ok := args[idx].(handle.Handle)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, kerrno.NoSuchProcess
	}
	target, ok := obj.(*sched.Thread)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	return target, kerrno.Success
}

func sysThreadKill(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	target, errno := resolveThread(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	sig, ok := args[1].(ksignal.Signal)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	return Result{Errno: ksignal.Kill(target, sig)}
}

func sysThreadSigmask(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	how, ok := args[0].(ksignal.How)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	set, _ := args[1].(ksignal.SignalSet)
	old := ksignal.SetMask(self, how, set)
	return Result{Value: old, Errno: kerrno.Success}
}

func sysThreadSigqueue(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	target, errno := resolveThread(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	sig, ok := args[1].(ksignal.Signal)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	value, _ := args[2].(int64)
	return Result{Errno: ksignal.QueueSignal(target, sig, value)}
}

func sysSigaction(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sig, ok := args[0].(ksignal.Signal)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	action, ok := args[1].(ksignal.SigAction)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	old := ksignal.SetAction(self, sig, action)
	return Result{Value: old, Errno: kerrno.Success}
}

func sysProcessSignals(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	result := ksignal.ProcessPending(self)
	return Result{Value: result, Errno: kerrno.Success}
}

func sysMutexCreate(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	name, _ := args[0].(string)
	mode, _ := args[1].(ksync.RecursionMode)
	clock, _ := args[2].(ktime.ClockID)
	m := ksync.NewMutex(name, mode, clock)
	h := s.Registry().Alloc(m)
	return Result{Value: h, Errno: kerrno.Success}
}

func resolveMutex(s *sched.Scheduler, args Args, idx int) (*ksync.Mutex, kerrno.Errno) {
	h, ok := args[idx].(handle.Handle)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	m, ok := obj.(*ksync.Mutex)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	return m, kerrno.Success
}

func sysMutexLock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	m, errno := resolveMutex(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: m.Lock(s, self)}
}

func sysMutexTryLock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	m, errno := resolveMutex(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: m.TryLock(self)}
}

func sysMutexUnlock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	m, errno := resolveMutex(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: m.Unlock()}
}

func sysSemaphoreCreate(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	name, _ := args[0].(string)
	initial, _ := args[1].(uint32)
	clock, _ := args[2].(ktime.ClockID)
	sem := ksync.NewSemaphore(name, initial, clock)
	h := s.Registry().Alloc(sem)
	return Result{Value: h, Errno: kerrno.Success}
}

func resolveSemaphore(s *sched.Scheduler, args Args, idx int) (*ksync.Semaphore, kerrno.Errno) {
	h, ok := args[idx].(handle.Handle)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	sem, ok := obj.(*ksync.Semaphore)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	return sem, kerrno.Success
}

func sysSemaphoreAcquire(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sem, errno := resolveSemaphore(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: sem.Acquire(s, self)}
}

func sysSemaphoreTryAcquire(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sem, errno := resolveSemaphore(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: sem.TryAcquire()}
}

func sysSemaphoreAcquireClock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sem, errno := resolveSemaphore(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	deadline, _ := args[1].(ktime.Deadline)
	return Result{Errno: sem.AcquireClock(s, self, deadline)}
}

func sysSemaphoreRelease(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sem, errno := resolveSemaphore(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	n, _ := args[1].(uint32)
	sem.Release(n)
	return Result{Errno: kerrno.Success}
}

func sysSemaphoreGetCount(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	sem, errno := resolveSemaphore(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Value: sem.Count(), Errno: kerrno.Success}
}

func sysMessagePortCreate(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	name, _ := args[0].(string)
	maxCount, _ := args[1].(int)
	clock, _ := args[2].(ktime.ClockID)
	p := ipc.NewMessagePort(name, maxCount, clock)
	h := s.Registry().Alloc(p)
	return Result{Value: h, Errno: kerrno.Success}
}

func resolveMessagePort(s *sched.Scheduler, args Args, idx int) (*ipc.MessagePort, kerrno.Errno) {
	h, ok := args[idx].(handle.Handle)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	p, ok := obj.(*ipc.MessagePort)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	return p, kerrno.Success
}

func sysMessagePortSend(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	p, errno := resolveMessagePort(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	targetHandler, _ := args[1].(uint32)
	code, _ := args[2].(int32)
	payload, _ := args[3].([]byte)
	return Result{Errno: p.Send(s, self, targetHandler, code, payload)}
}

func sysMessagePortSendClock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	p, errno := resolveMessagePort(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	targetHandler, _ := args[1].(uint32)
	code, _ := args[2].(int32)
	payload, _ := args[3].([]byte)
	deadline, _ := args[4].(ktime.Deadline)
	return Result{Errno: p.SendClock(s, self, targetHandler, code, payload, deadline)}
}

func sysMessagePortReceive(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	p, errno := resolveMessagePort(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	buf, _ := args[1].([]byte)
	n, targetHandler, code, rc := p.Receive(s, self, buf)
	return Result{Value: [3]any{n, targetHandler, code}, Errno: rc}
}

func sysMessagePortReceiveClock(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	p, errno := resolveMessagePort(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	buf, _ := args[1].([]byte)
	deadline, _ := args[2].(ktime.Deadline)
	n, targetHandler, code, rc := p.ReceiveClock(s, self, buf, deadline)
	return Result{Value: [3]any{n, targetHandler, code}, Errno: rc}
}

func sysMessagePortGetCount(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	p, errno := resolveMessagePort(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Value: p.Count(), Errno: kerrno.Success}
}

func sysObjectWaitGroupCreate(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	name, _ := args[0].(string)
	clock, _ := args[1].(ktime.ClockID)
	wg := waitgroup.New(name, clock)
	h := s.Registry().Alloc(wg)
	return Result{Value: h, Errno: kerrno.Success}
}

func resolveObjectWaitGroup(s *sched.Scheduler, args Args, idx int) (*waitgroup.ObjectWaitGroup, kerrno.Errno) {
	h, ok := args[idx].(handle.Handle)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	wg, ok := obj.(*waitgroup.ObjectWaitGroup)
	if !ok {
		return nil, kerrno.InvalidArg
	}
	return wg, kerrno.Success
}

// memberHandles resolves a watched-object handle to the (*kobject.Base,
// kobject.Pollable) pair ObjectWaitGroup.AddObject needs, type-switching
// over the kernel object kinds this module actually implements — the Go
// stand-in for the original's per-kind KNamedObj subclass dispatch.
func memberHandles(s *sched.Scheduler, h handle.Handle) (*kobject.Base, kobject.Pollable, kerrno.Errno) {
	obj, ok := s.Registry().Get(h)
	if !ok {
		return nil, nil, kerrno.InvalidArg
	}
	switch v := obj.(type) {
	case *ksync.Mutex:
		return &v.Base, v, kerrno.Success
	case *ksync.Semaphore:
		return &v.Base, v, kerrno.Success
	case *ipc.MessagePort:
		return &v.Base, v, kerrno.Success
	default:
		return nil, nil, kerrno.InvalidArg
	}
}

func sysObjectWaitGroupAddObject(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	wg, errno := resolveObjectWaitGroup(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	memberHandle, ok := args[1].(handle.Handle)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	mode, _ := args[2].(kobject.WaitMode)
	obj, pollable, errno := memberHandles(s, memberHandle)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	wg.AddObject(s, self, obj, pollable, mode)
	return Result{Errno: kerrno.Success}
}

func sysObjectWaitGroupRemoveObject(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	wg, errno := resolveObjectWaitGroup(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	memberHandle, ok := args[1].(handle.Handle)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	mode, _ := args[2].(kobject.WaitMode)
	obj, _, errno := memberHandles(s, memberHandle)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	return Result{Errno: wg.RemoveObject(s, self, obj, mode)}
}

func sysObjectWaitGroupWait(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	wg, errno := resolveObjectWaitGroup(s, args, 0)
	if !errno.Ok() {
		return Result{Errno: errno}
	}
	var lock *ksync.Mutex
	if len(args) > 1 {
		lock, _ = args[1].(*ksync.Mutex)
	}
	var deadline ktime.Deadline
	if len(args) > 2 {
		deadline, _ = args[2].(ktime.Deadline)
	}
	ready, rc := wg.Wait(s, self, lock, deadline)
	return Result{Value: ready, Errno: rc}
}

func sysDuplicateHandle(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	h, ok := args[0].(handle.Handle)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	obj, ok := s.Registry().Get(h)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	return Result{Value: s.Registry().Alloc(obj), Errno: kerrno.Success}
}

func sysDeleteHandle(s *sched.Scheduler, self *sched.Thread, args Args) Result {
	h, ok := args[0].(handle.Handle)
	if !ok {
		return Result{Errno: kerrno.InvalidArg}
	}
	if !s.Registry().Free(h) {
		return Result{Errno: kerrno.InvalidArg}
	}
	return Result{Errno: kerrno.Success}
}
