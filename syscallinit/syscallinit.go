// Package syscallinit implements component I: probing for SYSCALL/SYSRET
// support and programming the MSRs that make it usable. It is grounded in
// cpu.Ports' CPUID/RDMSR/WRMSR primitives (component A), the only
// machine-level surface this bootstrap needs.
package syscallinit

import (
	"errors"
	"sync"

	"monkos/cpu"
)

// MSR indices and bit positions this bootstrap programs (§4.I).
const (
	msrEFER  = 0xC000_0080
	msrSTAR  = 0xC000_0081
	msrLSTAR = 0xC000_0082
	msrFMASK = 0xC000_0084

	eferSCE = 1 << 0

	// cpuidExtendedFeatures is CPUID leaf 0x80000001; EDX bit 11 reports
	// SYSCALL/SYSRET support.
	cpuidExtendedFeatures = 0x8000_0001
	syscallSupportBit     = 1 << 11
)

// ErrUnsupported is returned when the CPU does not implement SYSCALL/SYSRET.
// The kernel has no int 0x80 fallback (§4.I): cmd/monkos's kmain treats
// this as fatal, while cmd/monksim only reports it.
var ErrUnsupported = errors.New("syscallinit: CPU does not support SYSCALL/SYSRET")

// star packs IA32_STAR's two selector fields the way an idle-mode-only
// kernel needs them: bits 32-47 are the ring-0 CS/SS pair used on syscall
// entry, bits 48-63 are the ring-3 base used to derive the ring-3 CS/SS
// pair on sysret. With no user mode ever actually entered, these selectors
// are never live-tested beyond being written.
func star(kernelCS, userCSBase uint16) uint64 {
	return uint64(userCSBase)<<48 | uint64(kernelCS)<<32
}

// Bootstrap is a one-shot guard around syscall_init: each Bootstrap value
// holds its own sync.Once, so Init runs its checks and MSR writes once per
// value. A *Bootstrap is not safe to Init concurrently from multiple
// goroutines by design — this kernel has none.
type Bootstrap struct {
	once sync.Once
	err  error
	done bool
}

// Init verifies SYSCALL/SYSRET support and, if present, programs
// IA32_EFER, IA32_STAR, IA32_LSTAR, and IA32_FMASK so that a later
// `syscall` instruction vectors to trampoline. Subsequent calls are no-ops
// that return the first call's result (§8 scenario 7: "a second call is a
// no-op").
func (b *Bootstrap) Init(ports cpu.Ports, kernelCS, userCSBase uint16, trampoline uintptr, fmask uint64) error {
	b.once.Do(func() {
		_, _, _, edx := ports.CPUID(cpuidExtendedFeatures)
		if edx&syscallSupportBit == 0 {
			b.err = ErrUnsupported
			return
		}

		efer := ports.RDMSR(msrEFER)
		ports.WRMSR(msrEFER, efer|eferSCE)
		ports.WRMSR(msrSTAR, star(kernelCS, userCSBase))
		ports.WRMSR(msrLSTAR, uint64(trampoline))
		ports.WRMSR(msrFMASK, fmask)
		b.done = true
	})
	return b.err
}

// Done reports whether Init has completed successfully.
func (b *Bootstrap) Done() bool { return b.done }
