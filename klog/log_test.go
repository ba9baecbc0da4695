package klog_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/klog"
)

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := klog.New("sched", klog.WithWriter(&buf))

	l.Debug().Msg("should not appear")
	require.Empty(t, buf.String())

	l.Info().Str("thread", "init").Msg("spawned")
	require.Contains(t, buf.String(), "spawned")
	require.Contains(t, buf.String(), "component")
	require.Contains(t, buf.String(), "sched")
}

func TestWithLevelRaisesVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := klog.New("sched", klog.WithWriter(&buf), klog.WithLevel(klog.LevelTrace))

	l.Trace().Msg("tick")
	require.Contains(t, buf.String(), "tick")
}

func TestNilLoggerDiscardsSilently(t *testing.T) {
	var l *klog.Logger
	require.NotPanics(t, func() {
		l.Info().Str("k", "v").Msg("noop")
		l.Warn("category").Msg("noop")
		l.With("a", "b").Error().Msg("noop")
	})
}

func TestWarnIsRateLimited(t *testing.T) {
	var buf bytes.Buffer
	l := klog.New("ksync", klog.WithWriter(&buf), klog.WithLevel(klog.LevelWarn))

	for i := 0; i < 100; i++ {
		l.Warn("mutex-contended").Msg("lock retry")
	}

	n := bytes.Count(buf.Bytes(), []byte("lock retry"))
	require.Less(t, n, 100, "rate limiter should have suppressed some warnings")
	require.Greater(t, n, 0, "rate limiter should have allowed at least one warning through")
}

func TestWithChainsFields(t *testing.T) {
	var buf bytes.Buffer
	l := klog.New("ipc", klog.WithWriter(&buf)).With("port", "notify").WithUint64("handle", 7)

	l.Info().Msg("bound")
	out := buf.String()
	require.Contains(t, out, "\"port\":\"notify\"")
	require.Contains(t, out, "\"handle\":7")
}
