// Package fault implements the kernel's one-way escalation path: every
// programmer bug and hardware-fatal condition in §7's error taxonomy ends
// up here. It is modeled on mazboot's abortBoot/jumpToNull-style deliberate
// crash helpers, generalized into a single reusable entry point as
// SPEC_FULL.md §2.A calls for.
package fault

import (
	"monkos/cpu"
	"monkos/interrupt"
	"monkos/klog"
)

// Error is the value passed to Halt once a fatal diagnostic has been
// rendered. It satisfies the error interface so host tooling can treat it
// like any other Go error while still carrying the full captured context.
type Error struct {
	Reason string
	Ctx    *interrupt.Context
}

func (e *Error) Error() string { return e.Reason }

// Out is where the red-screen diagnostic (§7's "user-visible failure") is
// rendered. It defaults to klog.Stderr, and no build in this repository
// repoints it: there is no TTY 0 console driver here.
var Out = klog.Stderr

// Halt is invoked after the diagnostic has been rendered and interrupts
// disabled. The real build replaces this with an indefinite HLT loop; the
// host/test build's default panics with the *Error so test harnesses can
// recover() and assert on the rendered diagnostic text (§7).
var Halt = func(err *Error) { panic(err) }

// Fatal renders the diagnostic described in §7 ("exception name, vector and
// error code, all captured registers, the flags register, and a 128-byte
// stack dump") and escalates via Halt. ctx and stack may be nil/empty when
// the fault did not originate from a captured interrupt context (e.g. a
// heap or paging invariant violation discovered outside an ISR).
func Fatal(ports cpu.Ports, reason string, ctx *interrupt.Context, stack []byte) {
	ports.DisableInterrupts()

	Out.Line("*** MonkOS fatal fault ***")
	Out.Str("reason: ")
	Out.Line(reason)

	if ctx != nil {
		Out.Str("vector=")
		Out.Hex64(ctx.Vector)
		Out.Str(" error=")
		Out.Hex64(ctx.ErrorCode)
		Out.Str("\n")

		Out.Str("rax="); Out.Hex64(ctx.RAX); Out.Str(" rbx="); Out.Hex64(ctx.RBX); Out.Str("\n")
		Out.Str("rcx="); Out.Hex64(ctx.RCX); Out.Str(" rdx="); Out.Hex64(ctx.RDX); Out.Str("\n")
		Out.Str("rsi="); Out.Hex64(ctx.RSI); Out.Str(" rdi="); Out.Hex64(ctx.RDI); Out.Str("\n")
		Out.Str("rbp="); Out.Hex64(ctx.RBP); Out.Str("\n")
		Out.Str("r8 ="); Out.Hex64(ctx.R8); Out.Str(" r9 ="); Out.Hex64(ctx.R9); Out.Str("\n")
		Out.Str("r10="); Out.Hex64(ctx.R10); Out.Str(" r11="); Out.Hex64(ctx.R11); Out.Str("\n")
		Out.Str("r12="); Out.Hex64(ctx.R12); Out.Str(" r13="); Out.Hex64(ctx.R13); Out.Str("\n")
		Out.Str("r14="); Out.Hex64(ctx.R14); Out.Str(" r15="); Out.Hex64(ctx.R15); Out.Str("\n")
		Out.Str("rip="); Out.Hex64(ctx.RIP); Out.Str(" cs ="); Out.Hex64(ctx.CS); Out.Str("\n")
		Out.Str("rsp="); Out.Hex64(ctx.RSP); Out.Str(" ss ="); Out.Hex64(ctx.SS); Out.Str("\n")
		Out.Str("rfl="); Out.Hex64(ctx.RFlags); Out.Str("\n")
	}

	if len(stack) > 0 {
		Out.Line("stack dump:")
		n := len(stack)
		if n > 128 {
			n = 128
		}
		for i := 0; i < n; i += 8 {
			end := i + 8
			if end > n {
				end = n
			}
			var word uint64
			for j := i; j < end; j++ {
				word |= uint64(stack[j]) << (8 * uint(j-i))
			}
			Out.Hex64(word)
			Out.Str("\n")
		}
	}

	Halt(&Error{Reason: reason, Ctx: ctx})
}
