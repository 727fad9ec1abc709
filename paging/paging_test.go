package paging

import (
	"testing"

	"monkos/addr"
	"monkos/cpu"
	"monkos/fault"
	"monkos/memmap"
	"monkos/pagedb"
)

func newEngine(t *testing.T) (*Engine, *pagedb.DB, *cpu.Fake) {
	t.Helper()
	m := memmap.New()
	m.Add(0x0, 16<<20, memmap.Usable)
	m.Normalize()
	db, err := pagedb.New(m)
	if err != nil {
		t.Fatalf("pagedb.New: %v", err)
	}
	fake := cpu.NewFake()
	return NewEngine(db, fake), db, fake
}

func TestMapThenWalkRoundTrips(t *testing.T) {
	e, db, _ := newEngine(t)
	e.InitKernelRoot()
	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)

	leaf, err := db.AllocFrame()
	if err != nil {
		t.Fatalf("AllocFrame: %v", err)
	}
	v := addr.VirtAddr(0x0000_0000_4000_0000)
	e.Map(as, v, leaf, Present|Writable)

	pt, pti := e.walk(as, v)
	if !pt[pti].Has(Present) {
		t.Fatal("mapped leaf entry is not Present")
	}
	if pt[pti].Addr() != leaf {
		t.Fatalf("mapped leaf addr = %#x, want %#x", pt[pti].Addr(), leaf)
	}
}

func TestUnmapReturnsPriorAddressAndClearsEntry(t *testing.T) {
	e, db, _ := newEngine(t)
	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)

	leaf, _ := db.AllocFrame()
	v := addr.VirtAddr(0x0000_0000_4000_1000)
	e.Map(as, v, leaf, Present|Writable)

	got := e.Unmap(as, v)
	if got != leaf {
		t.Fatalf("Unmap returned %#x, want %#x", got, leaf)
	}

	pt, pti := e.walk(as, v)
	if pt[pti].Has(Present) {
		t.Fatal("entry still Present after Unmap")
	}
}

func TestCreateAddressSpaceInheritsKernelEntries(t *testing.T) {
	e, _, _ := newEngine(t)
	e.InitKernelRoot()

	// Install a System-marked top-level entry directly, as the kernel's
	// own identity-map construction would, then verify a fresh address
	// space inherits it verbatim.
	kernelV := addr.VirtAddr(0xffff_8000_0000_0000)
	pml4i, _, _, _ := kernelV.PageTableIndices()
	frame := e.allocTable()
	root := e.table(e.kernelRoot)
	root[pml4i] = newPTE(frame, Present|Writable|System)

	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)
	newRoot := e.table(as.PRoot)
	if !newRoot[pml4i].Has(System) {
		t.Fatal("new address space did not inherit the kernel's System-marked top-level entry")
	}
	if newRoot[pml4i].Addr() != frame {
		t.Fatalf("inherited entry addr = %#x, want %#x", newRoot[pml4i].Addr(), frame)
	}
}

func TestModifyingSystemEntryIsFatal(t *testing.T) {
	e, _, fake := newEngine(t)
	e.InitKernelRoot()

	v := addr.VirtAddr(0xffff_8000_0000_0000)
	pml4i, _, _, _ := v.PageTableIndices()
	frame := e.allocTable()
	root := e.table(e.kernelRoot)
	root[pml4i] = newPTE(frame, Present|Writable|System)

	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)

	oldHalt := fault.Halt
	defer func() { fault.Halt = oldHalt }()
	halted := false
	fault.Halt = func(err *fault.Error) { halted = true; panic(err) }

	func() {
		defer func() { recover() }()
		e.Map(as, v, addr.PhysAddr(0x1000), Present|Writable)
	}()

	if !halted {
		t.Fatal("writing to a System-marked entry did not escalate to the fatal path")
	}
	if fake.InterruptsEnabled() {
		t.Fatal("fatal path must disable interrupts")
	}
}

func TestMapLargeRequiresAlignment(t *testing.T) {
	e, _, _ := newEngine(t)
	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)

	oldHalt := fault.Halt
	defer func() { fault.Halt = oldHalt }()
	halted := false
	fault.Halt = func(err *fault.Error) { halted = true; panic(err) }

	func() {
		defer func() { recover() }()
		e.MapLarge(as, addr.VirtAddr(0x0000_0000_c000_0000), addr.PhysAddr(0x1234), Present|Writable)
	}()

	if !halted {
		t.Fatal("misaligned large-page physical address did not escalate to the fatal path")
	}
}

func TestDestroyAddressSpaceFreesNonSystemFramesAndLeavesSystemOnesAlone(t *testing.T) {
	e, db, _ := newEngine(t)
	e.InitKernelRoot()

	sysV := addr.VirtAddr(0xffff_8000_0000_0000)
	pml4i, _, _, _ := sysV.PageTableIndices()
	sysFrame := e.allocTable()
	root := e.table(e.kernelRoot)
	root[pml4i] = newPTE(sysFrame, Present|Writable|System)

	as := e.CreateAddressSpace(addr.VirtAddr(0x0000_7f00_0000_0000), 64<<10)
	leaf, _ := db.AllocFrame()
	v := addr.VirtAddr(0x0000_0000_5000_0000)
	e.Map(as, v, leaf, Present|Writable)

	before := db.Available()
	e.DestroyAddressSpace(as)
	after := db.Available()
	if after <= before {
		t.Fatalf("DestroyAddressSpace did not free any frames: before=%d after=%d", before, after)
	}

	if rec := db.Record(sysFrame); rec.Type != pagedb.Allocated {
		t.Fatal("DestroyAddressSpace freed a System-marked frame it does not own")
	}
}
