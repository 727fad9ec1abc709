// Package paging implements component F: the four-level x86-64 page-table
// engine layered on the page-frame database. Entry encoding and the typed
// PhysAddr/VirtAddr vocabulary follow biscuit's mem.Pa_t uintptr pattern
// (Oichkatzelesfrettschen-biscuit/biscuit/src/mem/mem.go: PTE_P/PTE_W/
// PTE_U/PTE_PS/PTE_ADDR bit constants, Pmap_t [512]Pa_t tables); the
// kernel-range-inherited-into-every-address-space construction is grounded
// in Orizon's internal/runtime/kernel/vmm.go CreateAddressSpace, which
// copies the kernel PGD's upper-half entries into every new page
// directory the same way this package copies the kernel's PML4.
package paging

import (
	"unsafe"

	"monkos/addr"
	"monkos/cpu"
	"monkos/fault"
	"monkos/pagedb"
)

// Flags are the low-order PTE bits (§6's bit-exact layout) plus the
// kernel's own "system" marker (bit 9, the first available-to-software
// bit) used to protect the top-level entries every address space inherits
// from the kernel.
type Flags uint64

const (
	Present      Flags = 1 << 0
	Writable     Flags = 1 << 1
	User         Flags = 1 << 2
	WriteThrough Flags = 1 << 3
	CacheDisable Flags = 1 << 4
	Accessed     Flags = 1 << 5
	Dirty        Flags = 1 << 6
	Huge         Flags = 1 << 7 // "page size" bit, valid at levels 2 and 3 only
	Global       Flags = 1 << 8
	System       Flags = 1 << 9  // kernel-inherited entry; never modified (§4.F, §9)
	Window       Flags = 1 << 10 // this address space's own self-mapping window branch
	NoExecute    Flags = 1 << 63
)

const addrMask = 0x000ffffffffff000 // bits 12..51

// PTE is one raw page-table entry.
type PTE uint64

func newPTE(p addr.PhysAddr, flags Flags) PTE {
	return PTE(uint64(p)&addrMask | uint64(flags))
}

// Addr returns the physical frame address encoded in bits 12..51.
func (e PTE) Addr() addr.PhysAddr { return addr.PhysAddr(uint64(e) & addrMask) }

// Has reports whether every bit in f is set.
func (e PTE) Has(f Flags) bool { return Flags(e)&f == f }

// table is a single 512-entry page-table-sized page, viewed in place over
// the page-frame database's backing storage.
type table = [512]PTE

// windowPageCount bounds the self-referential window (§3.4's
// [vroot, vterm) range) at 512 pages — one level-1 table's worth — so the
// window's own backing tables can be pre-allocated once at
// CreateAddressSpace and the bump-pointer self-mapping (§9) never needs to
// walk through Map's general allocate-on-demand path and risk mapping the
// very table it is trying to install.
const windowPageCount = 512

// Engine is the page-table engine (component F). One Engine serves every
// address space; the kernel's own root table is built once via
// InitKernelRoot and its top-level entries are copied into every address
// space CreateAddressSpace produces.
type Engine struct {
	frames     *pagedb.DB
	ports      cpu.Ports
	kernelRoot addr.PhysAddr
	haveKernel bool
}

// NewEngine constructs a page-table engine over frames, escalating through
// ports when an operation hits a fatal condition (§7).
func NewEngine(frames *pagedb.DB, ports cpu.Ports) *Engine {
	return &Engine{frames: frames, ports: ports}
}

func (e *Engine) table(p addr.PhysAddr) *table {
	b := e.frames.Bytes(p)
	return (*table)(unsafe.Pointer(&b[0]))
}

// InitKernelRoot allocates and returns the kernel's own top-level table,
// initially empty. CreateAddressSpace copies its entries, System-marked
// ones included, into every address space created afterwards.
func (e *Engine) InitKernelRoot() addr.PhysAddr {
	root, err := e.frames.AllocFrame()
	if err != nil {
		fault.Fatal(e.ports, "out of physical frames building the kernel page table root", nil, nil)
	}
	e.kernelRoot = root
	e.haveKernel = true
	return root
}

// AddressSpace is the §3.4 tuple: the top-level table's physical address,
// and the self-referential virtual window used for this space's own
// intermediate page-table frames.
type AddressSpace struct {
	PRoot addr.PhysAddr
	VRoot addr.VirtAddr
	VNext addr.VirtAddr
	VTerm addr.VirtAddr

	windowPML4           uint16
	windowPDPT, windowPD addr.PhysAddr
	windowPT             addr.PhysAddr
}

// CreateAddressSpace allocates a fresh top-level table, copies the
// kernel's root entries into it (§4.F), and reserves
// [windowBase, windowBase+windowSize) as this space's self-mapping window.
func (e *Engine) CreateAddressSpace(windowBase addr.VirtAddr, windowSize uint64) *AddressSpace {
	if windowSize > windowPageCount*addr.PageSize {
		fault.Fatal(e.ports, "address space window exceeds one page table's span", nil, nil)
	}
	if !windowBase.IsAligned(addr.PageSize) {
		fault.Fatal(e.ports, "address space window base is not page-aligned", nil, nil)
	}

	root, err := e.frames.AllocFrame()
	if err != nil {
		fault.Fatal(e.ports, "out of physical frames creating an address space", nil, nil)
	}

	as := &AddressSpace{
		PRoot: root,
		VRoot: windowBase,
		VNext: windowBase,
		VTerm: addr.VirtAddr(uint64(windowBase) + windowSize),
	}

	if e.haveKernel {
		*e.table(root) = *e.table(e.kernelRoot)
	}

	// Pre-allocate the window's own backing path (PDPT, PD, PT) once, up
	// front, so the bump-pointer self-mapping below never needs to
	// allocate through the general Map path.
	pml4i, pdpti, pdi, _ := windowBase.PageTableIndices()
	as.windowPML4 = pml4i

	rootTable := e.table(root)
	if rootTable[pml4i].Has(System) {
		fault.Fatal(e.ports, "address space window collides with a kernel-reserved slot", nil, nil)
	}
	pdpt := e.allocTable()
	rootTable[pml4i] = newPTE(pdpt, Present|Writable|Window)
	as.windowPDPT = pdpt

	pdptTable := e.table(pdpt)
	pd := e.allocTable()
	pdptTable[pdpti] = newPTE(pd, Present|Writable)
	as.windowPD = pd

	pdTable := e.table(pd)
	pt := e.allocTable()
	pdTable[pdi] = newPTE(pt, Present|Writable)
	as.windowPT = pt

	return as
}

func (e *Engine) allocTable() addr.PhysAddr {
	p, err := e.frames.AllocFrame()
	if err != nil {
		fault.Fatal(e.ports, "out of physical frames allocating a page table", nil, nil)
	}
	return p
}

// mapWindow installs frame into the address space's self-mapping window at
// the current bump pointer, advancing VNext (§9).
func (e *Engine) mapWindow(as *AddressSpace, frame addr.PhysAddr) {
	if as.VNext >= as.VTerm {
		fault.Fatal(e.ports, "address space self-mapping window exhausted", nil, nil)
	}
	_, _, _, pti := as.VNext.PageTableIndices()
	e.table(as.windowPT)[pti] = newPTE(frame, Present|Writable)
	as.VNext = addr.VirtAddr(uint64(as.VNext) + addr.PageSize)
}

// walk descends from the address space's root to the level-1 (PT) table
// for v, allocating missing intermediate tables as it goes. It returns the
// PT and the final-level index to write.
func (e *Engine) walk(as *AddressSpace, v addr.VirtAddr) (*table, uint16) {
	pml4i, pdpti, pdi, pti := v.PageTableIndices()
	t := e.table(as.PRoot)

	for _, idx := range []uint16{pml4i, pdpti, pdi} {
		entry := t[idx]
		if !entry.Has(Present) {
			frame := e.allocTable()
			t[idx] = newPTE(frame, Present|Writable)
			e.mapWindow(as, frame)
			t = e.table(frame)
			continue
		}
		if entry.Has(System) {
			fault.Fatal(e.ports, "attempted to modify a system-marked page table entry", nil, nil)
		}
		t = e.table(entry.Addr())
	}
	return t, pti
}

// Map installs a leaf mapping from v to p with flags, allocating any
// missing intermediate tables (§4.F).
func (e *Engine) Map(as *AddressSpace, v addr.VirtAddr, p addr.PhysAddr, flags Flags) {
	pt, pti := e.walk(as, v)
	if pt[pti].Has(System) {
		fault.Fatal(e.ports, "attempted to modify a system-marked page table entry", nil, nil)
	}
	pt[pti] = newPTE(p, flags|Present)
}

// MapLarge installs a 2 MiB leaf at level 2 (the page directory), skipping
// the level-1 table entirely. p must be 2 MiB aligned.
func (e *Engine) MapLarge(as *AddressSpace, v addr.VirtAddr, p addr.PhysAddr, flags Flags) {
	if !p.IsAligned(addr.LargePageSize) {
		fault.Fatal(e.ports, "large page physical address is not 2 MiB aligned", nil, nil)
	}
	pml4i, pdpti, pdi, _ := v.PageTableIndices()
	t := e.table(as.PRoot)
	for _, idx := range []uint16{pml4i, pdpti} {
		entry := t[idx]
		if !entry.Has(Present) {
			frame := e.allocTable()
			t[idx] = newPTE(frame, Present|Writable)
			e.mapWindow(as, frame)
			t = e.table(frame)
			continue
		}
		t = e.table(entry.Addr())
	}
	if t[pdi].Has(System) {
		fault.Fatal(e.ports, "attempted to modify a system-marked page table entry", nil, nil)
	}
	t[pdi] = newPTE(p, flags|Present|Huge)
}

// MapHuge installs a 1 GiB leaf at level 3 (the page-directory-pointer
// table). p must be 1 GiB aligned.
func (e *Engine) MapHuge(as *AddressSpace, v addr.VirtAddr, p addr.PhysAddr, flags Flags) {
	if !p.IsAligned(addr.HugePageSize) {
		fault.Fatal(e.ports, "huge page physical address is not 1 GiB aligned", nil, nil)
	}
	pml4i, pdpti, _, _ := v.PageTableIndices()
	t := e.table(as.PRoot)
	entry := t[pml4i]
	if !entry.Has(Present) {
		frame := e.allocTable()
		t[pml4i] = newPTE(frame, Present|Writable)
		e.mapWindow(as, frame)
		t = e.table(frame)
	} else {
		t = e.table(entry.Addr())
	}
	if t[pdpti].Has(System) {
		fault.Fatal(e.ports, "attempted to modify a system-marked page table entry", nil, nil)
	}
	t[pdpti] = newPTE(p, flags|Present|Huge)
}

// Unmap clears the leaf entry for v and returns the physical address it
// previously mapped. Intermediate tables are not auto-freed (§4.F).
func (e *Engine) Unmap(as *AddressSpace, v addr.VirtAddr) addr.PhysAddr {
	pt, pti := e.walk(as, v)
	if !pt[pti].Has(Present) {
		fault.Fatal(e.ports, "unmap of an address with no mapping", nil, nil)
	}
	if pt[pti].Has(System) {
		fault.Fatal(e.ports, "attempted to modify a system-marked page table entry", nil, nil)
	}
	p := pt[pti].Addr()
	pt[pti] = 0
	return p
}

// DestroyAddressSpace recursively walks the four levels, freeing every
// allocated leaf frame and every intermediate table that does not carry
// the System bit, then frees the root itself.
func (e *Engine) DestroyAddressSpace(as *AddressSpace) {
	e.destroyLevel(as.PRoot, 4)
	// The self-mapping window's own three backing tables are skipped by
	// destroyLevel (the root's window slot carries the Window flag, and
	// the window's PT holds only alias entries into frames owned
	// elsewhere) so they must be freed here, directly, exactly once.
	e.frames.FreeFrame(as.windowPT)
	e.frames.FreeFrame(as.windowPD)
	e.frames.FreeFrame(as.windowPDPT)
	e.frames.FreeFrame(as.PRoot)
}

// destroyLevel frees every non-System, non-Window child of the table at p,
// recursing down to the leaves at level 1. level counts down from 4
// (PML4) to 1 (PT); leaves (level 1) are freed directly rather than
// recursed into. Window-flagged entries are skipped entirely: the
// self-mapping window's own three tables are freed once, directly, by
// DestroyAddressSpace, and the window's PT holds only alias entries
// pointing at frames owned and freed by their real mapping branch.
func (e *Engine) destroyLevel(p addr.PhysAddr, level int) {
	t := e.table(p)
	for i := range t {
		entry := t[i]
		if !entry.Has(Present) || entry.Has(System) || entry.Has(Window) {
			continue
		}
		if level > 1 {
			e.destroyLevel(entry.Addr(), level-1)
		}
		e.frames.FreeFrame(entry.Addr())
	}
}
