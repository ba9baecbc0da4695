// Command padoskernelsim is a runnable demonstration of the kernel
// substrate: it boots a scheduler, spawns a producer/consumer pair
// talking over a message port, installs a signal handler and kills a
// thread with it, raises a classified CPU fault against a third thread,
// and blocks a fourth on two semaphores through an object wait group, in
// the spirit of eventloop's examples/01_basic_usage.
package main

import (
	"fmt"
	"time"

	"github.com/kavionic/padoskernel/fault"
	"github.com/kavionic/padoskernel/handle"
	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/klog"
	"github.com/kavionic/padoskernel/kobject"
	"github.com/kavionic/padoskernel/ksignal"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ksyscall"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
	"github.com/kavionic/padoskernel/waitgroup"
)

func main() {
	log := klog.New("padoskernelsim")
	s := sched.Boot(sched.WithLogger(log))
	defer s.Shutdown()

	runMessagePortDemo(s, log)
	runSignalDemo(s, log)
	runFaultDemo(s, log)
	runWaitGroupDemo(s, log)

	time.Sleep(50 * time.Millisecond)
	fmt.Println("padoskernelsim: done")
}

// runMessagePortDemo spawns a producer and a consumer sharing a
// MessagePort through the syscall trampoline, demonstrating the
// handle-registry-mediated path a real user thread would take.
func runMessagePortDemo(s *sched.Scheduler, log *klog.Logger) {
	done := make(chan struct{})
	s.Spawn("port-owner", 0, func(s *sched.Scheduler, self *sched.Thread) {
		created := ksyscall.Invoke(s, self, ksyscall.SysMessagePortCreate,
			ksyscall.Args{"demo-port", 4, ktime.ClockMonotonicCoarse})
		portHandle := created.Value.(handle.Handle)

		consumerDone := make(chan struct{})
		s.Spawn("consumer", 0, func(s *sched.Scheduler, self *sched.Thread) {
			buf := make([]byte, 64)
			result := ksyscall.Invoke(s, self, ksyscall.SysMessagePortReceive,
				ksyscall.Args{portHandle, buf})
			fields := result.Value.([3]any)
			n := fields[0].(int)
			log.Info().Str("thread", self.Name()).Str("payload", string(buf[:n])).Msg("message received")
			close(consumerDone)
		})

		sendResult := ksyscall.Invoke(s, self, ksyscall.SysMessagePortSend,
			ksyscall.Args{portHandle, uint32(0), int32(1), []byte("hello from producer")})
		if sendResult.Errno != kerrno.Success {
			log.Error().Err(sendResult.Errno).Msg("send failed")
		}
		<-consumerDone
		ksyscall.Invoke(s, self, ksyscall.SysMessagePortDelete, ksyscall.Args{portHandle})
		close(done)
	})
	<-done
}

// runSignalDemo installs a SIGUSR1 handler on a worker thread and kills it
// through the syscall trampoline, demonstrating delivery, the blocked-mask
// save/restore, and the forced process-pending-on-return check.
func runSignalDemo(s *sched.Scheduler, log *klog.Logger) {
	ready := make(chan struct{})
	handled := make(chan struct{})
	var target *sched.Thread
	s.Spawn("signal-target", 0, func(s *sched.Scheduler, self *sched.Thread) {
		target = self
		ksyscall.Invoke(s, self, ksyscall.SysSigaction, ksyscall.Args{
			ksignal.SIGUSR1,
			ksignal.SigAction{
				Disposition: ksignal.Handled,
				Handler: func(sig ksignal.Signal, info ksignal.Info) {
					log.Info().Str("thread", self.Name()).Msg("SIGUSR1 handled")
					close(handled)
				},
			},
		})
		close(ready)
		for {
			select {
			case <-handled:
				return
			case <-time.After(time.Millisecond):
				ksyscall.Invoke(s, self, ksyscall.SysProcessSignals, nil)
			}
		}
	})

	<-ready
	s.Spawn("killer", 0, func(s *sched.Scheduler, self *sched.Thread) {
		ksyscall.Invoke(s, self, ksyscall.SysThreadKill,
			ksyscall.Args{handle.Handle(target.Handle), ksignal.SIGUSR1})
	})
	<-handled
}

// runFaultDemo classifies and raises a synthetic MemManage access
// violation against a worker thread, showing the fault package forcing
// termination even without any installed SIGSEGV handler.
func runFaultDemo(s *sched.Scheduler, log *klog.Logger) {
	done := make(chan struct{})
	s.Spawn("fault-target", 0, func(s *sched.Scheduler, self *sched.Thread) {
		result := fault.Raise(self, fault.ClassMemManage, fault.ReasonAccessViolation, 0x2000_0000, 0x0800_0010)
		log.Info().Str("thread", self.Name()).Msg(fmt.Sprintf("fault delivery result: %v", result))
		close(done)
	})
	<-done
}

// runWaitGroupDemo blocks one thread on two semaphores simultaneously via
// ObjectWaitGroup, releasing the second after a delay to show the
// wake-on-any-member-ready contract.
func runWaitGroupDemo(s *sched.Scheduler, log *klog.Logger) {
	semA := ksync.NewSemaphore("demo-sem-a", 0, ktime.ClockMonotonicCoarse)
	semB := ksync.NewSemaphore("demo-sem-b", 0, ktime.ClockMonotonicCoarse)
	wg := waitgroup.New("demo-wg", ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("waiter", 0, func(s *sched.Scheduler, self *sched.Thread) {
		wg.AddObject(s, self, &semA.Base, semA, kobject.WaitRead)
		wg.AddObject(s, self, &semB.Base, semB, kobject.WaitRead)
		ready, errno := wg.Wait(s, self, nil, ktime.Deadline{})
		log.Info().Str("thread", self.Name()).Msg(fmt.Sprintf("wait returned errno=%v ready=%v", errno, ready))
		close(done)
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		semB.Release(1)
	}()
	<-done
}
