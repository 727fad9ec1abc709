//go:build amd64 && baremetal

// Command monkos is the kernel's own entry point: kmain(), called by the
// boot loader's assembly stub with interrupts disabled (§6's boot-time
// contract). Its init order follows the teacher's own KernelMain
// discipline (src/go/mazarin/kernel.go: UART, then memory, then
// peripherals, in a fixed sequence with early diagnostics at every step),
// retargeted from the Raspberry Pi's UART/GPU bring-up to the x86-64
// components this kernel actually has: memory map, frame database, kernel
// page tables, interrupts, devices, syscall bootstrap.
package main

import (
	"unsafe"

	"monkos/addr"
	"monkos/cpu"
	"monkos/exception"
	"monkos/fault"
	"monkos/interrupt"
	"monkos/keyboard"
	"monkos/klog"
	"monkos/memmap"
	"monkos/pagedb"
	"monkos/paging"
	"monkos/syscallinit"
)

// handoffAddr is the fixed low-memory location the boot loader leaves the
// packed memory-map handoff structure at (§6). The boot stub is
// responsible for placing it here before jumping to kmain; the layout
// matches the packed (addr u64, size u64, type i32, flags u32) record
// array the contract describes.
const handoffAddr = uintptr(0x0000_7000)

type handoffHeader struct {
	count      uint64
	lastUsable uint64
}

type handoffRegion struct {
	addr  uint64
	size  uint64
	typ   int32
	flags uint32
}

// readHandoff parses the boot loader's packed memory-map structure into a
// memmap.Map. It is unsafe by construction: the boot contract is the only
// guarantee this memory is valid and of the expected shape.
func readHandoff() *memmap.Map {
	hdr := (*handoffHeader)(unsafe.Pointer(handoffAddr))
	base := handoffAddr + unsafe.Sizeof(handoffHeader{})

	m := memmap.New()
	for i := uint64(0); i < hdr.count; i++ {
		r := (*handoffRegion)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(handoffRegion{})))
		m.Add(r.addr, r.size, memmap.Type(r.typ))
	}
	m.Normalize()
	return m
}

// buildIdentityMap installs the kernel's identity page table per §4.E's
// "kernel identity map" rule: for every normalized region outside
// {Unmapped, Bad}, pick the largest page size base/length are aligned to,
// and derive entry flags from the region's type.
func buildIdentityMap(engine *paging.Engine, m *memmap.Map, kernelAS *paging.AddressSpace) {
	for _, r := range m.Regions() {
		if r.Type == memmap.Unmapped || r.Type == memmap.Bad {
			continue
		}

		flags := paging.Present | paging.Writable | paging.System
		if r.Type == memmap.Uncached || r.Type == memmap.AcpiNvs {
			flags |= paging.WriteThrough | paging.CacheDisable
		}

		cur, end := r.Addr, r.End()
		for cur < end {
			remaining := end - cur
			switch {
			case cur%(1<<30) == 0 && remaining >= (1<<30):
				engine.MapHuge(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 1 << 30
			case cur%(2<<20) == 0 && remaining >= (2<<20):
				engine.MapLarge(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 2 << 20
			default:
				engine.Map(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 4096
			}
		}
	}
}

// kmain is the kernel's single entry point (§6). It runs with interrupts
// disabled throughout initialization and only enables them once every
// handler the idle loop depends on is installed.
func kmain() {
	ports := cpu.Real{}
	ports.DisableInterrupts()
	fault.Halt = func(*fault.Error) {
		for {
			ports.HaltUntilInterrupt()
		}
	}

	klog.Stdout.Line("MonkOS booting")

	m := readHandoff()

	frames, err := pagedb.New(m)
	if err != nil {
		fault.Fatal(ports, "page-frame database initialization failed", nil, nil)
	}

	engine := paging.NewEngine(frames, ports)
	engine.InitKernelRoot()
	// The kernel's own identity-mapped address space is built through the
	// same windowed bookkeeping every address space uses (§9's
	// self-referential window), parked in a fixed high canonical range far
	// above any physical address the identity map itself ever covers.
	kernelAS := engine.CreateAddressSpace(addr.VirtAddr(0xffff_ffff_0000_0000), 2<<20)
	buildIdentityMap(engine, m, kernelAS)
	ports.SetPageTable(uintptr(kernelAS.PRoot))

	dispatcher := interrupt.NewDispatcher(ports)
	dispatcher.Init()
	exception.InstallDefaults(dispatcher, ports)

	kbd := keyboard.New(keyboard.USUnshifted, keyboard.USShifted)
	keyboard.Install(dispatcher, ports, kbd)

	var syscallBoot syscallinit.Bootstrap
	if err := syscallBoot.Init(ports, 0x08, 0x1b, 0, 0); err != nil {
		fault.Fatal(ports, "CPU does not support SYSCALL/SYSRET", nil, nil)
	}

	klog.Stdout.Line("MonkOS ready")
	ports.EnableInterrupts()

	for {
		ports.HaltUntilInterrupt()
	}
}

func main() {
	kmain()
}
