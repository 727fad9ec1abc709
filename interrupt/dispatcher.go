package interrupt

import "monkos/cpu"

// Handler is the signature every registered interrupt/exception handler
// implements. It receives a reference to the captured context exactly as
// the common assembly thunk would hand it off (§4.B).
type Handler func(ctx *Context)

// Legacy 8259 PIC I/O ports and command bytes.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picInit     = 0x11 // ICW1: edge-triggered, cascade mode, ICW4 needed
	picICW4_8086 = 0x01
	picEOI      = 0x20

	slaveCascadeLine = 2 // IRQ2 on the master carries the slave's output
)

// Dispatcher owns the 256-entry handler table and mediates the cascaded PIC
// pair. The "thunk" the spec describes as assembly-emitted is modeled here
// as a single Go entry point (Dispatch) parameterized by the vector number
// already recorded in Context, matching smoynes-elsie's
// vm.INT.Register(priority, isr) registration idiom rather than a hand
// written per-vector table — see SPEC_FULL.md §4.B.
type Dispatcher struct {
	ports    cpu.Ports
	handlers [VectorCount]Handler

	masterMask uint8
	slaveMask  uint8
}

// NewDispatcher constructs a Dispatcher bound to the given CPU port
// primitives. Call Init once before enabling interrupts.
func NewDispatcher(ports cpu.Ports) *Dispatcher {
	return &Dispatcher{ports: ports, masterMask: 0xFF, slaveMask: 0xFF}
}

// Init remaps the legacy PIC so hardware IRQs land on vectors 0x20-0x2F
// (instead of overlapping the CPU exception vectors) and masks every
// hardware line. Handlers must be installed, and only the lines actually in
// use unmasked, before interrupts are enabled.
func (d *Dispatcher) Init() {
	g := Mask(d.ports)
	defer g.Release()

	// ICW1: begin initialization sequence on both controllers.
	d.ports.Out8(picMasterCommand, picInit)
	d.ports.Out8(picSlaveCommand, picInit)

	// ICW2: vector offsets.
	d.ports.Out8(picMasterData, IRQBase)
	d.ports.Out8(picSlaveData, IRQBase+8)

	// ICW3: tell each controller about the cascade wiring.
	d.ports.Out8(picMasterData, 1<<slaveCascadeLine)
	d.ports.Out8(picSlaveData, slaveCascadeLine)

	// ICW4: 8086/88 mode.
	d.ports.Out8(picMasterData, picICW4_8086)
	d.ports.Out8(picSlaveData, picICW4_8086)

	// Mask every hardware line until a consumer explicitly unmasks it.
	d.masterMask = 0xFF
	d.slaveMask = 0xFF
	d.ports.Out8(picMasterData, d.masterMask)
	d.ports.Out8(picSlaveData, d.slaveMask)
}

// InstallHandler registers or clears (handler == nil) the handler for a
// vector. Per §4.B the caller is responsible for holding interrupts
// disabled around the store if it could race a live ISR on the same
// vector; the store itself is a single slice-element write.
func (d *Dispatcher) InstallHandler(vector uint8, handler Handler) {
	d.handlers[vector] = handler
}

// HandlerFor returns the currently installed handler for vector, or nil.
func (d *Dispatcher) HandlerFor(vector uint8) Handler {
	return d.handlers[vector]
}

// Dispatch is the common dispatcher every per-vector thunk calls into
// (§4.B's dispatch algorithm): it looks up the handler slot and, if
// non-nil, invokes it with the captured context. A nil slot falls straight
// through, matching the spec's "execution falls through to returning"
// wording.
func (d *Dispatcher) Dispatch(ctx *Context) {
	h := d.handlers[ctx.Vector]
	if h == nil {
		return
	}
	h(ctx)
}

// IRQUnmask clears the mask bit for the given IRQ line on whichever
// controller owns it. Unmasking an IRQ >= 8 also unmasks the cascade line
// on the master, since the slave's interrupts cannot otherwise reach the
// CPU.
func (d *Dispatcher) IRQUnmask(irq uint8) {
	if irq < 8 {
		d.masterMask &^= 1 << irq
		d.ports.Out8(picMasterData, d.masterMask)
		return
	}
	d.slaveMask &^= 1 << (irq - 8)
	d.ports.Out8(picSlaveData, d.slaveMask)
	d.masterMask &^= 1 << slaveCascadeLine
	d.ports.Out8(picMasterData, d.masterMask)
}

// IRQMask sets the mask bit for the given IRQ line, disabling delivery.
func (d *Dispatcher) IRQMask(irq uint8) {
	if irq < 8 {
		d.masterMask |= 1 << irq
		d.ports.Out8(picMasterData, d.masterMask)
		return
	}
	d.slaveMask |= 1 << (irq - 8)
	d.ports.Out8(picSlaveData, d.slaveMask)
}

// SendEOI acknowledges the interrupt to the controller(s) that raised it.
// Every hardware IRQ handler is required to call this before returning
// (§4.B); IRQ lines >= 8 require an EOI to both the slave and the master.
func (d *Dispatcher) SendEOI(irq uint8) {
	if irq >= 8 {
		d.ports.Out8(picSlaveCommand, picEOI)
	}
	d.ports.Out8(picMasterCommand, picEOI)
}

// MasterMask and SlaveMask expose the current mask registers for tests and
// diagnostics (cmd/memviz renders them alongside the memory map).
func (d *Dispatcher) MasterMask() uint8 { return d.masterMask }
func (d *Dispatcher) SlaveMask() uint8  { return d.slaveMask }
