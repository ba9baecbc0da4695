package ipc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/ipc"
	"github.com/kavionic/padoskernel/kerrno"
	"github.com/kavionic/padoskernel/ktime"
	"github.com/kavionic/padoskernel/sched"
)

func TestSendThenReceiveRoundTrips(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	port := ipc.NewMessagePort("port", 4, ktime.ClockMonotonicCoarse)

	done := make(chan struct{})
	s.Spawn("sender", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, port.Send(s, self, 7, 42, []byte("hello")))
		close(done)
	})
	<-done

	require.Equal(t, 1, port.Count())

	buf := make([]byte, 16)
	recvDone := make(chan struct{})
	s.Spawn("receiver", 0, func(s *sched.Scheduler, self *sched.Thread) {
		n, handler, code, errno := port.Receive(s, self, buf)
		require.Equal(t, kerrno.Success, errno)
		require.Equal(t, "hello", string(buf[:n]))
		require.Equal(t, uint32(7), handler)
		require.Equal(t, int32(42), code)
		close(recvDone)
	})
	<-recvDone
	require.Equal(t, 0, port.Count())
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	port := ipc.NewMessagePort("port", 1, ktime.ClockMonotonicCoarse)

	received := make(chan struct{})
	s.Spawn("receiver", 0, func(s *sched.Scheduler, self *sched.Thread) {
		buf := make([]byte, 8)
		n, _, _, errno := port.Receive(s, self, buf)
		require.Equal(t, kerrno.Success, errno)
		require.Equal(t, "hi", string(buf[:n]))
		close(received)
	})

	select {
	case <-received:
		t.Fatal("receive returned before any message was sent")
	case <-time.After(20 * time.Millisecond):
	}

	s.Spawn("sender", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, port.Send(s, self, 0, 0, []byte("hi")))
	})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("receiver never woke after send")
	}
}

func TestSendBlocksWhileFullThenUnblocksOnReceive(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	port := ipc.NewMessagePort("port", 1, ktime.ClockMonotonicCoarse)

	s.Spawn("filler", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, port.Send(s, self, 0, 0, []byte("a")))
	})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, port.Count())

	secondSent := make(chan struct{})
	s.Spawn("blocked-sender", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, port.Send(s, self, 0, 0, []byte("b")))
		close(secondSent)
	})

	select {
	case <-secondSent:
		t.Fatal("second send completed while port was full")
	case <-time.After(20 * time.Millisecond):
	}

	s.Spawn("drainer", 0, func(s *sched.Scheduler, self *sched.Thread) {
		buf := make([]byte, 4)
		_, _, _, errno := port.Receive(s, self, buf)
		require.Equal(t, kerrno.Success, errno)
	})

	select {
	case <-secondSent:
	case <-time.After(time.Second):
		t.Fatal("blocked sender never unblocked after drain")
	}
}

func TestReceiveTimesOutWhenEmpty(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	port := ipc.NewMessagePort("port", 1, ktime.ClockMonotonicCoarse)

	result := make(chan kerrno.Errno, 1)
	s.Spawn("receiver", 0, func(s *sched.Scheduler, self *sched.Thread) {
		deadline := ktime.Deadline{Clock: ktime.ClockMonotonicCoarse, At: s.Clock.Now(ktime.ClockMonotonicCoarse).Add(10 * time.Millisecond)}
		_, _, _, errno := port.ReceiveClock(s, self, make([]byte, 4), deadline)
		result <- errno
	})

	select {
	case errno := <-result:
		require.Equal(t, kerrno.Timeout, errno)
	case <-time.After(time.Second):
		t.Fatal("receive did not time out")
	}
}

func TestShortReadTruncatesPayload(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	port := ipc.NewMessagePort("port", 4, ktime.ClockMonotonicCoarse)

	s.Spawn("sender", 0, func(s *sched.Scheduler, self *sched.Thread) {
		require.Equal(t, kerrno.Success, port.Send(s, self, 0, 0, []byte("abcdef")))
	})
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	s.Spawn("receiver", 0, func(s *sched.Scheduler, self *sched.Thread) {
		buf := make([]byte, 3)
		n, _, _, errno := port.Receive(s, self, buf)
		require.Equal(t, kerrno.Success, errno)
		require.Equal(t, 3, n)
		require.Equal(t, "abc", string(buf))
		close(done)
	})
	<-done
}
