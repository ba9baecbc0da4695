package fault_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/fault"
	"github.com/kavionic/padoskernel/ksignal"
	"github.com/kavionic/padoskernel/sched"
)

func spawnAndCapture(s *sched.Scheduler, release <-chan struct{}) *sched.Thread {
	var mu sync.Mutex
	var th *sched.Thread
	ready := make(chan struct{})
	s.Spawn("target", 0, func(s *sched.Scheduler, self *sched.Thread) {
		mu.Lock()
		th = self
		mu.Unlock()
		close(ready)
		<-release
	})
	<-ready
	mu.Lock()
	defer mu.Unlock()
	return th
}

func TestRaiseMemManageAccessViolationIsSigsegv(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	release := make(chan struct{})
	defer close(release)
	th := spawnAndCapture(s, release)

	result := fault.Raise(th, fault.ClassMemManage, fault.ReasonAccessViolation, 0x2000_1000, 0x0800_0042)
	require.Equal(t, ksignal.DeliveryTerminated, result)
}

func TestRaiseUsageFaultDivByZeroIsSigfpeWithPC(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	release := make(chan struct{})
	defer close(release)
	th := spawnAndCapture(s, release)

	var gotSig ksignal.Signal
	var gotAddr uintptr
	ksignal.SetAction(th, ksignal.SIGFPE, ksignal.SigAction{
		Disposition: ksignal.Handled,
		Handler: func(sig ksignal.Signal, info ksignal.Info) {
			gotSig = sig
			gotAddr = info.Addr
		},
	})

	result := fault.Raise(th, fault.ClassUsageFault, fault.ReasonDivByZero, 0, 0x0800_0100)
	require.Equal(t, ksignal.DeliveryHandled, result)
	require.Equal(t, ksignal.SIGFPE, gotSig)
	require.Equal(t, uintptr(0x0800_0100), gotAddr)
}

func TestRaiseBusImpreciseCarriesNoAddress(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	release := make(chan struct{})
	defer close(release)
	th := spawnAndCapture(s, release)

	var gotAddr uintptr
	var gotCode ksignal.Code
	ksignal.SetAction(th, ksignal.SIGBUS, ksignal.SigAction{
		Disposition: ksignal.Handled,
		Handler: func(sig ksignal.Signal, info ksignal.Info) {
			gotAddr = info.Addr
			gotCode = info.Code
		},
	})

	result := fault.Raise(th, fault.ClassBusFault, fault.ReasonBusImprecise, 0x2000_2000, 0x0800_0200)
	require.Equal(t, ksignal.DeliveryHandled, result)
	require.Equal(t, uintptr(0), gotAddr)
	require.Equal(t, ksignal.CodeBusObjectError, gotCode)
}

func TestRaiseUnclassifiedDefaultsToSigbus(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	release := make(chan struct{})
	defer close(release)
	th := spawnAndCapture(s, release)

	var gotSig ksignal.Signal
	ksignal.SetAction(th, ksignal.SIGBUS, ksignal.SigAction{
		Disposition: ksignal.Handled,
		Handler:     func(sig ksignal.Signal, info ksignal.Info) { gotSig = sig },
	})

	result := fault.Raise(th, fault.ClassMemManage, fault.ReasonUnclassified, 0, 0x0800_0300)
	require.Equal(t, ksignal.DeliveryHandled, result)
	require.Equal(t, ksignal.SIGBUS, gotSig)
}

func TestRaiseOverridesExplicitIgnore(t *testing.T) {
	s := sched.Boot()
	defer s.Shutdown()
	release := make(chan struct{})
	defer close(release)
	th := spawnAndCapture(s, release)

	ksignal.SetAction(th, ksignal.SIGSEGV, ksignal.SigAction{Disposition: ksignal.Ignore})

	result := fault.Raise(th, fault.ClassMemManage, fault.ReasonAccessViolation, 0x2000_3000, 0x0800_0400)
	require.Equal(t, ksignal.DeliveryTerminated, result)
}
