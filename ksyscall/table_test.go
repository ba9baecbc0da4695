package ksyscall_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/handle"
	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/ksignal"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ksyscall"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

func TestInvokeUnknownSyscallReturnsNotImplemented(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	s.Spawn("caller", 0, func(s *sched.Scheduler, self *sched.Thread) {
		result := ksyscall.Invoke(s, self, ksyscall.SysOpen, nil)
		require.Equal(t, kerrno.NotImplemented, result.Errno)
		close(done)
	})
	<-done
}

func TestSemaphoreCreateAcquireReleaseRoundTrips(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	s.Spawn("caller", 0, func(s *sched.Scheduler, self *sched.Thread) {
		created := ksyscall.Invoke(s, self, ksyscall.SysSemaphoreCreate,
			ksyscall.Args{"sem", uint32(1), ktime.ClockMonotonicCoarse})
		require.Equal(t, kerrno.Success, created.Errno)
		h := created.Value.(handle.Handle)

		acquired := ksyscall.Invoke(s, self, ksyscall.SysSemaphoreAcquire, ksyscall.Args{h})
		require.Equal(t, kerrno.Success, acquired.Errno)

		count := ksyscall.Invoke(s, self, ksyscall.SysSemaphoreGetCount, ksyscall.Args{h})
		require.Equal(t, uint32(0), count.Value)

		released := ksyscall.Invoke(s, self, ksyscall.SysSemaphoreRelease, ksyscall.Args{h, uint32(1)})
		require.Equal(t, kerrno.Success, released.Errno)

		count = ksyscall.Invoke(s, self, ksyscall.SysSemaphoreGetCount, ksyscall.Args{h})
		require.Equal(t, uint32(1), count.Value)
		close(done)
	})
	<-done
}

func TestMutexCreateLockUnlockRoundTrips(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	s.Spawn("caller", 0, func(s *sched.Scheduler, self *sched.Thread) {
		created := ksyscall.Invoke(s, self, ksyscall.SysMutexCreate,
			ksyscall.Args{"mtx", ksync.RaiseError, ktime.ClockMonotonicCoarse})
		require.Equal(t, kerrno.Success, created.Errno)
		h := created.Value.(handle.Handle)

		locked := ksyscall.Invoke(s, self, ksyscall.SysMutexLock, ksyscall.Args{h})
		require.Equal(t, kerrno.Success, locked.Errno)

		relocked := ksyscall.Invoke(s, self, ksyscall.SysMutexTryLock, ksyscall.Args{h})
		require.Equal(t, kerrno.Deadlock, relocked.Errno)

		unlocked := ksyscall.Invoke(s, self, ksyscall.SysMutexUnlock, ksyscall.Args{h})
		require.Equal(t, kerrno.Success, unlocked.Errno)
		close(done)
	})
	<-done
}

func TestInvokeForcesProcessPendingSignalOnReturn(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	var handled bool
	s.Spawn("caller", 0, func(s *sched.Scheduler, self *sched.Thread) {
		ksignal.SetAction(self, ksignal.SIGUSR1, ksignal.SigAction{
			Disposition: ksignal.Handled,
			Handler:     func(sig ksignal.Signal, info ksignal.Info) { handled = true },
		})
		require.Equal(t, kerrno.Success, ksignal.Kill(self, ksignal.SIGUSR1))

		result := ksyscall.Invoke(s, self, ksyscall.SysSysconf, nil)
		require.Equal(t, kerrno.NotImplemented, result.Errno)
		require.True(t, handled)
		close(done)
	})
	<-done
}

func TestThreadExitTerminatesThreadEarly(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	var reachedAfterExit bool
	th := s.Spawn("exiting", 0, func(s *sched.Scheduler, self *sched.Thread) {
		ksyscall.Invoke(s, self, ksyscall.SysThreadExit, ksyscall.Args{42})
		reachedAfterExit = true
	})

	time.Sleep(10 * time.Millisecond)
	require.False(t, reachedAfterExit)
	require.Equal(t, sched.StateZombie, th.State())
	value, exited := th.ExitValue()
	require.True(t, exited)
	require.Equal(t, 42, value)
}
