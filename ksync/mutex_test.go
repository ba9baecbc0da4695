package ksync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/ksync"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

func TestMutexTryLockAndUnlock(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("t1", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.TryLock(self))
		require.True(t, m.IsLocked())
		require.Equal(t, kerrno.Success, m.Unlock())
		require.False(t, m.IsLocked())
		close(done)
	})
	<-done
}

func TestMutexRaiseErrorOnSelfRelock(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("t1", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.TryLock(self))
		require.Equal(t, kerrno.Deadlock, m.TryLock(self))
		close(done)
	})
	<-done
}

func TestMutexRecurseAllowsSelfRelock(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.Recurse, ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("t1", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.TryLock(self))
		require.Equal(t, kerrno.Success, m.TryLock(self))
		require.Equal(t, kerrno.Success, m.Unlock())
		require.True(t, m.IsLocked())
		require.Equal(t, kerrno.Success, m.Unlock())
		require.False(t, m.IsLocked())
		close(done)
	})
	<-done
}

func TestMutexHandoffBetweenThreads(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	holding := make(chan struct{})
	release := make(chan struct{})
	acquired := make(chan struct{})

	s.Spawn("holder", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.Lock(s, self))
		close(holding)
		<-release
		require.Equal(t, kerrno.Success, m.Unlock())
	})

	<-holding
	s.Spawn("waiter", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.Lock(s, self))
		close(acquired)
		require.Equal(t, kerrno.Success, m.Unlock())
	})

	select {
	case <-acquired:
		t.Fatal("waiter acquired lock while holder still held it")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock after release")
	}
}

func TestMutexLockTimesOut(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("holder", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.Lock(s, self))
		close(done)
	})
	<-done

	waiterDone := make(chan kerrno.Errno, 1)
	s.Spawn("waiter", 0, func(s *sched.Scheduler, self *sched.Thread) {
		deadline := ktime.Deadline{Clock: ktime.ClockMonotonicCoarse, At: s.Clock.Now(ktime.ClockMonotonicCoarse).Add(10 * time.Millisecond)}
		waiterDone <- m.LockClock(s, self, deadline)
	})

	select {
	case errno := <-waiterDone:
		require.Equal(t, kerrno.Timeout, errno)
	case <-time.After(time.Second):
		t.Fatal("lock did not time out")
	}
}

func TestSharedLockAllowsMultipleReaders(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	n := 3
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		s.Spawn("reader", 0, func(s *sched.Scheduler, self *sched.Thread) {
			require.Equal(t, kerrno.Success, m.LockShared(s, self))
			done <- struct{}{}
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func TestSharedLockBlocksWriter(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	m := ksync.NewMutex("m", ksync.RaiseError, ktime.ClockMonotonicCoarse)

	readerDone := make(chan struct{})
	release := make(chan struct{})
	s.Spawn("reader", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.LockShared(s, self))
		close(readerDone)
		<-release
		require.Equal(t, kerrno.Success, m.UnlockShared())
	})
	<-readerDone

	writerAcquired := make(chan struct{})
	s.Spawn("writer", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, m.Lock(s, self))
		close(writerAcquired)
	})

	select {
	case <-writerAcquired:
		t.Fatal("writer acquired while reader held shared lock")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	select {
	case <-writerAcquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after reader released")
	}
}
