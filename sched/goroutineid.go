package sched

import "runtime"

// currentGoroutineID parses the calling goroutine's id out of its own stack
// trace header ("goroutine 123 [running]:..."), the exact technique
// eventloop/loop.go uses for its loopGoroutineID/isLoopThread affinity
// check. It is the only portable way to ask "am I thread T's backing
// goroutine" without requiring every kernel entry point to be threaded
// through an explicit context value.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
