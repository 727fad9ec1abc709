package cpu

// Fake is an in-memory Ports implementation for host tests and for
// cmd/monksim. It records every port/MSR write so tests can assert on the
// exact side effects a real CPU program would have produced (§8 scenario 7:
// syscall_init's MSR programming is only observable through this fake).
type Fake struct {
	ports8  map[uint16]uint8
	ports16 map[uint16]uint16
	ports32 map[uint16]uint32
	msrs    map[uint32]uint64

	// CPUIDLeaves lets a test script the CPUID responses this fake CPU
	// reports, e.g. leaf 0x80000001 EDX bit 11 for SYSCALL support.
	CPUIDLeaves map[uint32][4]uint32

	interruptsEnabled bool
	halted            int
	lastSoftwareInt   uint8
	softwareInts      []uint8

	// RaiseHook, when set, is invoked by RaiseSoftwareInterrupt after it has
	// recorded the vector, letting tests wire a fake CPU
	// straight into interrupt.Dispatcher.
	RaiseHook func(vector uint8)
}

// NewFake returns a Fake with interrupts enabled, matching the CPU state a
// real machine is in once the boot loader hands off.
func NewFake() *Fake {
	return &Fake{
		ports8:            make(map[uint16]uint8),
		ports16:           make(map[uint16]uint16),
		ports32:           make(map[uint16]uint32),
		msrs:              make(map[uint32]uint64),
		CPUIDLeaves:       make(map[uint32][4]uint32),
		interruptsEnabled: true,
	}
}

func (f *Fake) In8(port uint16) uint8 { return f.ports8[port] }
func (f *Fake) Out8(port uint16, value uint8) { f.ports8[port] = value }
func (f *Fake) In16(port uint16) uint16 { return f.ports16[port] }
func (f *Fake) Out16(port uint16, value uint16) { f.ports16[port] = value }
func (f *Fake) In32(port uint16) uint32 { return f.ports32[port] }
func (f *Fake) Out32(port uint16, value uint32) { f.ports32[port] = value }

func (f *Fake) CPUID(leaf uint32) (eax, ebx, ecx, edx uint32) {
	r := f.CPUIDLeaves[leaf]
	return r[0], r[1], r[2], r[3]
}

func (f *Fake) RDMSR(id uint32) uint64 { return f.msrs[id] }
func (f *Fake) WRMSR(id uint32, value uint64) { f.msrs[id] = value }

// MSR exposes a written MSR value for test assertions.
func (f *Fake) MSR(id uint32) uint64 { return f.msrs[id] }

var lastPageTable uintptr

func (f *Fake) SetPageTable(physAddr uintptr) { lastPageTable = physAddr }

// LastPageTable returns the most recently loaded page-table root, for tests.
func (f *Fake) LastPageTable() uintptr { return lastPageTable }

func (f *Fake) EnableInterrupts() { f.interruptsEnabled = true }
func (f *Fake) DisableInterrupts() { f.interruptsEnabled = false }
func (f *Fake) InterruptsEnabled() bool { return f.interruptsEnabled }

func (f *Fake) HaltUntilInterrupt() { f.halted++ }

// Halted returns how many times HaltUntilInterrupt has been called.
func (f *Fake) Halted() int { return f.halted }

func (f *Fake) RaiseSoftwareInterrupt(vector uint8) {
	f.lastSoftwareInt = vector
	f.softwareInts = append(f.softwareInts, vector)
	if f.RaiseHook != nil {
		f.RaiseHook(vector)
	}
}

// SoftwareInterrupts returns every vector raised via RaiseSoftwareInterrupt,
// in order, for test assertions.
func (f *Fake) SoftwareInterrupts() []uint8 { return f.softwareInts }
