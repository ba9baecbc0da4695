// Package ksignal implements the kernel's POSIX-style signal delivery:
// per-thread pending/blocked masks, a sigaction table, queued real-time
// signal nodes, and the single-signal-per-boundary delivery rule,
// grounded on original_source/Kernel/KPosixSignals.cpp.
package ksignal

// Signal identifies a POSIX signal number (1-based, matching the
// original's sig_mkmask(n) = 1 << (n-1) convention).
type Signal int

// Signal numbers, matching the Linux/original_source numbering used by
// the rest of the PadOS signal machinery.
const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGQUIT Signal = 3
	SIGILL  Signal = 4
	SIGTRAP Signal = 5
	SIGABRT Signal = 6
	SIGBUS  Signal = 7
	SIGFPE  Signal = 8
	SIGKILL Signal = 9
	SIGUSR1 Signal = 10
	SIGSEGV Signal = 11
	SIGUSR2 Signal = 12
	SIGPIPE Signal = 13
	SIGALRM Signal = 14
	SIGTERM Signal = 15
	SIGCHLD Signal = 17
	SIGCONT Signal = 18
	SIGSTOP Signal = 19
	SIGTSTP Signal = 20

	// SIGRTMIN/SIGRTMAX bound the queued, non-coalescing real-time range,
	// spec's "queued real-time signal list" distinguishing feature versus
	// the coalescing standard range below SIGRTMIN.
	SIGRTMIN Signal = 34
	SIGRTMAX Signal = 64

	// NumSignals sizes the sigaction table and the SignalSet bitmask;
	// SIGRTMAX is the highest representable signal number.
	NumSignals = int(SIGRTMAX)
)

// SignalSet is a bitmask of signal numbers, one bit per Signal (bit 0
// unused since signals are 1-based), mirroring sigset_t.
type SignalSet uint64

// Mask returns the single-bit SignalSet for sig.
func Mask(sig Signal) SignalSet {
	if sig <= 0 || int(sig) > 64 {
		return 0
	}
	return SignalSet(1) << uint(sig-1)
}

// Has reports whether sig is a member of the set.
func (s SignalSet) Has(sig Signal) bool {
	return s&Mask(sig) != 0
}

// With returns a copy of s with sig added.
func (s SignalSet) With(sig Signal) SignalSet {
	return s | Mask(sig)
}

// Without returns a copy of s with sig removed.
func (s SignalSet) Without(sig Signal) SignalSet {
	return s &^ Mask(sig)
}

// How selects kthread_sigmask's combine operation.
type How int

const (
	SigBlock How = iota
	SigUnblock
	SigSetMask
)

// Code is siginfo_t's si_code: where a signal came from.
type Code int32

const (
	CodeUser   Code = iota // sent by kill()-style explicit action
	CodeQueue              // delivered via sigqueue() with an attached value
	CodeKernel             // synthesized by the kernel (a fault, for instance)

	// The remaining codes are fault subcodes: each is only meaningful
	// when paired with the specific signal that carries it, the same
	// overloading siginfo_t.si_code uses in POSIX.
	CodeSegvAccessError   // SIGSEGV: access violation against a mapped region
	CodeBusAddressError   // SIGBUS: precise bus fault, bad address
	CodeBusObjectError    // SIGBUS: imprecise/stacking bus fault
	CodeBusAlignment      // SIGBUS: unaligned access trap
	CodeFPEIntegerDivide  // SIGFPE: integer division by zero
	CodeIllCoprocessor    // SIGILL: coprocessor unavailable/disabled
	CodeIllIllegalOpcode  // SIGILL: undefined instruction
	CodeIllIllegalAddress // SIGILL: invalid exception return / CPU state
)

// Info is siginfo_t, trimmed to the fields this module actually threads
// through: the signal number, its origin code, and an optional attached
// value (sigqueue's sigval_t).
type Info struct {
	Signo Signal
	Code  Code
	Value int64
	// Addr is the faulting address for SIGSEGV/SIGBUS/SIGFPE/SIGILL,
	// siginfo_t.si_addr's equivalent; zero for signals with no address.
	Addr uintptr
}

// Flag is sigaction_t.sa_flags.
type Flag uint32

const (
	// FlagNoDefer keeps the delivered signal unblocked during its own
	// handler, instead of the default auto-block-while-handling.
	FlagNoDefer Flag = 1 << iota
	// FlagResetHand resets the disposition to Default after one delivery.
	FlagResetHand
)

// Disposition is what a SigAction does with a delivered signal.
type Disposition uint8

const (
	// Default applies the signal's built-in action (see DefaultAction).
	Default Disposition = iota
	// Ignore silently drops the signal (for signals sig_can_be_ignored
	// allows ignoring).
	Ignore
	// Handled invokes Handler synchronously.
	Handled
)

// Handler is a signal handler, invoked synchronously by Deliver with the
// thread's blocked mask already updated per Mask/Flags.
type Handler func(sig Signal, info Info)

// SigAction is one entry of a thread's sigaction table.
type SigAction struct {
	Disposition Disposition
	Handler     Handler
	Mask        SignalSet // additionally blocked while Handler runs
	Flags       Flag
}

// DefaultAction is the built-in behavior for a signal whose disposition
// is Default, mirroring sig_get_default_action.
type DefaultAction int

const (
	ActionTerminate DefaultAction = iota
	ActionTerminateCoreDump
	ActionIgnore
	ActionStop
	ActionContinue
)

// defaultActions mirrors the original's per-signal default-action table.
var defaultActions = map[Signal]DefaultAction{
	SIGCHLD: ActionIgnore,
	SIGCONT: ActionContinue,
	SIGSTOP: ActionStop,
	SIGTSTP: ActionStop,
	SIGQUIT: ActionTerminateCoreDump,
	SIGILL:  ActionTerminateCoreDump,
	SIGTRAP: ActionTerminateCoreDump,
	SIGABRT: ActionTerminateCoreDump,
	SIGBUS:  ActionTerminateCoreDump,
	SIGFPE:  ActionTerminateCoreDump,
	SIGSEGV: ActionTerminateCoreDump,
}

func defaultActionFor(sig Signal) DefaultAction {
	if a, ok := defaultActions[sig]; ok {
		return a
	}
	return ActionTerminate
}

// canBeIgnored mirrors sig_can_be_ignored: SIGKILL and SIGSTOP can never
// be blocked, caught, or ignored.
func canBeIgnored(sig Signal) bool {
	return sig != SIGKILL && sig != SIGSTOP
}

// canAutoReset mirrors sig_can_auto_reset: SA_RESETHAND never applies to
// the two uncatchable signals either.
func canAutoReset(sig Signal) bool {
	return canBeIgnored(sig)
}

// isRealtime reports whether sig is in the non-coalescing queued range.
func isRealtime(sig Signal) bool {
	return sig >= SIGRTMIN && sig <= SIGRTMAX
}
