//go:build amd64 && baremetal

package cpu

// Real is the on-target Ports implementation. It is only ever linked into a
// freestanding build (the `baremetal` tag): producing the linker script,
// bootstrap stub, and Go-runtime-free build settings that such a build
// requires is boot-loader/assembly-thunk territory, which spec.md §1 and §9
// explicitly carve out as "thin glue" whose implementation vehicle is free.
// Real exists so that the primitive bindings themselves — which component A
// of the design does own — have a concrete home; cpu.Fake is what the rest
// of this repository, including every test, actually runs against.
type Real struct{}

func (Real) In8(port uint16) uint8 { return rawIn8(port) }
func (Real) Out8(port uint16, value uint8) { rawOut8(port, value) }
func (Real) In16(port uint16) uint16 { return rawIn16(port) }
func (Real) Out16(port uint16, value uint16) { rawOut16(port, value) }
func (Real) In32(port uint16) uint32 { return rawIn32(port) }
func (Real) Out32(port uint16, value uint32) { rawOut32(port, value) }

func (Real) CPUID(leaf uint32) (eax, ebx, ecx, edx uint32) { return rawCPUID(leaf) }

func (Real) RDMSR(id uint32) uint64 { return rawRDMSR(id) }
func (Real) WRMSR(id uint32, value uint64) { rawWRMSR(id, value) }

func (Real) SetPageTable(physAddr uintptr) { rawSetCR3(physAddr) }

func (Real) EnableInterrupts() { rawSTI() }
func (Real) DisableInterrupts() { rawCLI() }
func (Real) InterruptsEnabled() bool { return rawPushfq()&(1<<9) != 0 }

func (Real) HaltUntilInterrupt() { rawHLT() }

func (Real) RaiseSoftwareInterrupt(vector uint8) { rawINT(vector) }

// The raw* functions are implemented in asm_amd64.s; they are minimal
// wrappers over a single machine instruction each and must not allocate or
// block, per §4.A.
func rawIn8(port uint16) uint8
func rawOut8(port uint16, value uint8)
func rawIn16(port uint16) uint16
func rawOut16(port uint16, value uint16)
func rawIn32(port uint16) uint32
func rawOut32(port uint16, value uint32)
func rawCPUID(leaf uint32) (eax, ebx, ecx, edx uint32)
func rawRDMSR(id uint32) uint64
func rawWRMSR(id uint32, value uint64)
func rawSetCR3(physAddr uintptr)
func rawSTI()
func rawCLI()
func rawPushfq() uint64
func rawHLT()
func rawINT(vector uint8)
