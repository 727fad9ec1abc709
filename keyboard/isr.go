package keyboard

import (
	"monkos/cpu"
	"monkos/interrupt"
)

// dataPort is the PS/2 controller's data register (§4.H).
const dataPort = 0x60

// Install wires State's scan-code handler to IRQ 1 on the given dispatcher
// and unmasks the line, mirroring how the teacher kernel's own device
// handlers are registered through interrupt.Dispatcher.InstallHandler
// rather than a hand-patched IDT entry.
func Install(d *interrupt.Dispatcher, ports cpu.Ports, s *State) {
	d.InstallHandler(interrupt.IRQKeyboard, func(ctx *interrupt.Context) {
		raw := ports.In8(dataPort)
		s.HandleScanCode(raw)
		d.SendEOI(1)
	})
	d.IRQUnmask(1)
}
