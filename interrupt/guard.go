package interrupt

import "monkos/cpu"

// Guard is the scoped interrupt-masking helper spec.md §9 calls for: it
// disables interrupts on acquisition and restores the CPU's prior
// enabled/disabled state on every exit path, including a deferred Release
// after a panic, so that no critical section can leak interrupts-disabled
// state past its scope.
type Guard struct {
	ports cpu.Ports
	prev  bool
	armed bool
}

// Mask disables interrupts and returns a Guard; call Release (typically via
// defer) to restore the previous state. This is the mechanism §5 specifies
// for mutual exclusion between mainline code and ISRs. Dispatcher.Init is
// its only caller in this repository; InstallHandler, the page-frame
// database's free-list updates and memmap's Add take no Guard themselves.
func Mask(ports cpu.Ports) *Guard {
	prev := ports.InterruptsEnabled()
	ports.DisableInterrupts()
	return &Guard{ports: ports, prev: prev, armed: true}
}

// Release restores interrupts to whatever state they were in when Mask was
// called. It is idempotent: calling it more than once has no additional
// effect.
func (g *Guard) Release() {
	if !g.armed {
		return
	}
	g.armed = false
	if g.prev {
		g.ports.EnableInterrupts()
	}
}
