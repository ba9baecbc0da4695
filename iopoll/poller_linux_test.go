//go:build linux

package iopoll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/kavionic/padoskernel/iopoll"
)

func TestFastPollerFiresReadCallbackOnPipeWrite(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var p iopoll.FastPoller
	require.NoError(t, p.Init())
	defer p.Close()

	fired := make(chan iopoll.IOEvents, 1)
	require.NoError(t, p.RegisterFD(fds[0], iopoll.EventRead, func(ev iopoll.IOEvents) {
		fired <- ev
	}))

	_, err := unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err := p.Poll(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	select {
	case ev := <-fired:
		require.True(t, ev&iopoll.EventRead != 0)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestFastPollerUnregisterFDStopsDelivery(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var p iopoll.FastPoller
	require.NoError(t, p.Init())
	defer p.Close()

	require.NoError(t, p.RegisterFD(fds[0], iopoll.EventRead, func(iopoll.IOEvents) {}))
	require.NoError(t, p.UnregisterFD(fds[0]))
	require.ErrorIs(t, p.UnregisterFD(fds[0]), iopoll.ErrFDNotRegistered)
}

func TestFastPollerRegisterFDTwiceIsRejected(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var p iopoll.FastPoller
	require.NoError(t, p.Init())
	defer p.Close()

	require.NoError(t, p.RegisterFD(fds[0], iopoll.EventRead, func(iopoll.IOEvents) {}))
	require.ErrorIs(t, p.RegisterFD(fds[0], iopoll.EventRead, func(iopoll.IOEvents) {}), iopoll.ErrFDAlreadyRegistered)
}
