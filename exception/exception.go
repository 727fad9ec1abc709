// Package exception implements component C: the default handler for each
// of the 21 CPU-defined fault/trap vectors (0x00-0x14). The vector table
// below is grounded in the x86-64 architecture manual and cross-checked
// against gopheros' kernel/gate (InterruptNumber constants) and Orizon's
// internal/runtime/kernel default-handler wiring, both present in the
// retrieval pack.
package exception

import (
	"monkos/cpu"
	"monkos/fault"
	"monkos/interrupt"
	"monkos/klog"
)

// Policy describes what a default handler does when no override has been
// installed via interrupt.Dispatcher.InstallHandler.
type Policy int

const (
	// FatalPolicy renders the §7 diagnostic and halts indefinitely.
	FatalPolicy Policy = iota
	// RecoverablePolicy logs a one-line diagnostic and resumes the
	// interrupted context.
	RecoverablePolicy
)

// Vector describes one of the 21 CPU exception vectors.
type Vector struct {
	Number   uint8
	Name     string
	Mnemonic string
	Policy   Policy
}

// Table enumerates every CPU-defined exception vector MonkOS knows about,
// in vector order, matching SPEC_FULL.md §4.C.
var Table = []Vector{
	{0x00, "Divide-by-zero", "#DE", FatalPolicy},
	{0x01, "Debug", "#DB", RecoverablePolicy},
	{0x02, "NMI", "NMI", FatalPolicy},
	{0x03, "Breakpoint", "#BP", RecoverablePolicy},
	{0x04, "Overflow", "#OF", FatalPolicy},
	{0x05, "Bound-range-exceeded", "#BR", FatalPolicy},
	{0x06, "Invalid opcode", "#UD", FatalPolicy},
	{0x07, "Device-not-available", "#NM", FatalPolicy},
	{0x08, "Double fault", "#DF", FatalPolicy},
	{0x09, "Coprocessor segment overrun", "legacy", FatalPolicy},
	{0x0A, "Invalid TSS", "#TS", FatalPolicy},
	{0x0B, "Segment-not-present", "#NP", FatalPolicy},
	{0x0C, "Stack-segment fault", "#SS", FatalPolicy},
	{0x0D, "General protection", "#GP", FatalPolicy},
	{0x0E, "Page fault", "#PF", FatalPolicy},
	{0x0F, "Reserved", "", FatalPolicy},
	{0x10, "x87 floating-point exception", "#MF", FatalPolicy},
	{0x11, "Alignment check", "#AC", FatalPolicy},
	{0x12, "Machine check", "#MC", FatalPolicy},
	{0x13, "SIMD floating-point exception", "#XF", FatalPolicy},
	{0x14, "Virtualization exception", "#VE", FatalPolicy},
}

// ByVector looks up a vector's default policy entry.
func ByVector(vector uint8) (Vector, bool) {
	for _, v := range Table {
		if v.Number == vector {
			return v, true
		}
	}
	return Vector{}, false
}

// InstallDefaults registers the default handler for every entry in Table
// onto d. A later interrupt.Dispatcher.InstallHandler call for the same
// vector supersedes the default, per §4.C.
func InstallDefaults(d *interrupt.Dispatcher, ports cpu.Ports) {
	for _, v := range Table {
		v := v // capture
		d.InstallHandler(v.Number, func(ctx *interrupt.Context) {
			handle(ports, v, ctx)
		})
	}
}

func handle(ports cpu.Ports, v Vector, ctx *interrupt.Context) {
	switch v.Policy {
	case RecoverablePolicy:
		klog.Stdout.Str(v.Name)
		klog.Stdout.Str(" (")
		klog.Stdout.Str(v.Mnemonic)
		klog.Stdout.Str(") at rip=")
		klog.Stdout.Hex64(ctx.RIP)
		klog.Stdout.Str("\n")
	default:
		fault.Fatal(ports, v.Name, ctx, nil)
	}
}
