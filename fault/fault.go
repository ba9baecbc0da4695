// Package fault classifies a CPU fault exception into a POSIX signal and
// siginfo_t payload and raises it against the faulting thread, grounded
// on original_source/Kernel/Interrupts/FaultHandlers.cpp's
// classify_memmanage_fault/classify_busfault_fault/classify_usagefault_fault
// and handle_fault.
package fault

import (
	"github.com/kavionic/padoskernel/ksignal"
	"github.com/kavionic/padoskernel/sched"
)

// Class identifies which Cortex-M fault exception fired, the Go analogue
// of the original's IRQn_Type switch in classify_fault.
type Class int

const (
	ClassMemManage Class = iota
	ClassBusFault
	ClassUsageFault
)

// Reason is a fault class's sub-classification, the Go analogue of the
// individual SCB->CFSR bits each classify_*_fault function tests.
type Reason int

const (
	// MemManage reasons.
	ReasonAccessViolation Reason = iota // IACCVIOL/DACCVIOL
	ReasonMemStacking                  // MSTKERR/MUNSTKERR/MLSPERR

	// BusFault reasons.
	ReasonBusPrecise   // PRECISERR, address known
	ReasonBusImprecise // IMPRECISERR, address lost by the time it's handled
	ReasonBusStacking  // STKERR/UNSTKERR/LSPERR

	// UsageFault reasons.
	ReasonDivByZero      // DIVBYZERO
	ReasonUnaligned      // UNALIGNED
	ReasonNoCoprocessor  // NOCP
	ReasonUndefinedInstr // UNDEFINSTR
	ReasonInvalidPC      // INVPC
	ReasonInvalidState   // INVSTATE

	// ReasonUnclassified covers a class/CFSR combination none of the
	// checks above matched, mirroring classify_fault's "si_signo == 0"
	// fallback to SIGBUS/BUS_OBJERR.
	ReasonUnclassified
)

// classify maps a fault Class+Reason to its signal and si_code, mirroring
// the original's per-class classify_* functions line for line.
func classify(class Class, reason Reason) (ksignal.Signal, ksignal.Code) {
	switch class {
	case ClassMemManage:
		switch reason {
		case ReasonAccessViolation:
			return ksignal.SIGSEGV, ksignal.CodeSegvAccessError
		case ReasonMemStacking:
			return ksignal.SIGBUS, ksignal.CodeBusObjectError
		}
	case ClassBusFault:
		switch reason {
		case ReasonBusPrecise:
			return ksignal.SIGBUS, ksignal.CodeBusAddressError
		case ReasonBusImprecise:
			return ksignal.SIGBUS, ksignal.CodeBusObjectError
		case ReasonBusStacking:
			return ksignal.SIGBUS, ksignal.CodeBusObjectError
		}
	case ClassUsageFault:
		switch reason {
		case ReasonDivByZero:
			return ksignal.SIGFPE, ksignal.CodeFPEIntegerDivide
		case ReasonUnaligned:
			return ksignal.SIGBUS, ksignal.CodeBusAlignment
		case ReasonNoCoprocessor:
			return ksignal.SIGILL, ksignal.CodeIllCoprocessor
		case ReasonUndefinedInstr:
			return ksignal.SIGILL, ksignal.CodeIllIllegalOpcode
		case ReasonInvalidPC, ReasonInvalidState:
			return ksignal.SIGILL, ksignal.CodeIllIllegalAddress
		}
	}
	// Failed to classify: default to SIGBUS, as classify_fault does.
	return ksignal.SIGBUS, ksignal.CodeBusObjectError
}

// addressCarryingReasons is the set of Reasons whose classify_* function
// populates si_addr from a fault address register (MMFAR/BFAR); every
// other reason leaves it zero (imprecise bus faults lose the address by
// the time the handler runs, and UsageFault has no address register at
// all).
func addressCarryingReasons(class Class, reason Reason) bool {
	switch class {
	case ClassMemManage:
		return reason == ReasonAccessViolation || reason == ReasonMemStacking
	case ClassBusFault:
		return reason == ReasonBusPrecise || reason == ReasonBusStacking
	}
	return false
}

// Raise classifies a fault into a signal and delivers it synchronously
// against t, the Go analogue of handle_fault: addr is the fault address
// register's value (MMFAR/BFAR), used only for the reasons that actually
// carry one; pc is the faulting instruction's address, which overwrites
// si_addr for SIGFPE/SIGILL exactly as handle_fault does after classify_fault
// returns, so a SIGILL/SIGFPE handler always finds the faulting
// instruction rather than a data address.
//
// Delivery always forces the signal's default action even if the thread
// has set SIG_IGN for it (see ksignal.RaiseFault) — a fault interrupted a
// specific instruction and cannot be silently ignored.
func Raise(t *sched.Thread, class Class, reason Reason, addr, pc uintptr) ksignal.DeliveryResult {
	sig, code := classify(class, reason)

	info := ksignal.Info{Signo: sig, Code: code}
	switch {
	case sig == ksignal.SIGFPE || sig == ksignal.SIGILL:
		info.Addr = pc
	case addressCarryingReasons(class, reason):
		info.Addr = addr
	}

	return ksignal.RaiseFault(t, sig, info)
}
