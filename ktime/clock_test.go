package ktime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/ktime"
)

func TestDeadlineRoundTrip(t *testing.T) {
	src := ktime.NewSource()
	src.SetRealTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	at := src.Now(ktime.ClockRealtime).Add(5 * time.Second)
	d := ktime.Deadline{Clock: ktime.ClockRealtime, At: at}

	mono, infinite := src.ToMonotonicDeadline(d)
	require.False(t, infinite)

	back := src.MonotonicToClock(ktime.ClockRealtime, mono)
	require.WithinDuration(t, at, back, time.Millisecond)
}

func TestZeroDeadlineIsInfinite(t *testing.T) {
	src := ktime.NewSource()
	_, infinite := src.ToMonotonicDeadline(ktime.Deadline{})
	require.True(t, infinite)
}

func TestMonotonicClockIgnoresRealtimeOffset(t *testing.T) {
	src := ktime.NewSource()
	before := src.Now(ktime.ClockMonotonicCoarse)
	src.SetRealTime(time.Now().Add(365 * 24 * time.Hour))
	after := src.Now(ktime.ClockMonotonicCoarse)
	require.WithinDuration(t, before, after, time.Second)
}
