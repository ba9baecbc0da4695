package sched_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/sched"
)

func TestThreadTLSRoundTrip(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	var got any
	var ok bool
	s.Spawn("tls-user", 0, func(s *sched.Scheduler, self *sched.Thread) {
		self.SetTLS("sigactions", 42)
		got, ok = self.TLS("sigactions")
		close(done)
	})
	<-done
	require.True(t, ok)
	require.Equal(t, 42, got)
}

func TestThreadRunTimeAccumulates(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()

	done := make(chan struct{})
	th := s.Spawn("busy", 0, func(s *sched.Scheduler, self *sched.Thread) {
		time.Sleep(5 * time.Millisecond)
		close(done)
	})
	<-done
	require.Eventually(t, func() bool {
		return th.RunTime() >= 5*time.Millisecond
	}, time.Second, time.Millisecond)
}

func TestStateStringTable(t *testing.T) {
	require.Equal(t, "ready", sched.StateReady.String())
	require.Equal(t, "zombie", sched.StateZombie.String())
	require.Equal(t, "frozen", sched.StateFrozen.String())
}
