package main

import (
	"encoding/binary"
	"os"
	"testing"

	"monkos/memmap"
	"monkos/pagedb"
	"monkos/paging"

	"monkos/addr"
	"monkos/cpu"
)

func TestSampleMemoryMapNormalizesWithoutGaps(t *testing.T) {
	m := sampleMemoryMap()
	m.Normalize()
	regions := m.Regions()
	if len(regions) == 0 {
		t.Fatal("expected at least one region")
	}
	if regions[0].Addr != 0 {
		t.Fatalf("map must start at 0, got %#x", regions[0].Addr)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Addr != regions[i-1].End() {
			t.Fatalf("gap between region %d (%#x) and %d (%#x)", i-1, regions[i-1].End(), i, regions[i].Addr)
		}
	}
}

func TestLoadE820DumpParsesRecords(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "e820-*.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	writeRecord := func(base, length uint64, typ uint32) {
		rec := make([]byte, e820RecordSize)
		binary.LittleEndian.PutUint64(rec[0:8], base)
		binary.LittleEndian.PutUint64(rec[8:16], length)
		binary.LittleEndian.PutUint32(rec[16:20], typ)
		if _, err := f.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	writeRecord(0, 0x9_0000, 1)
	writeRecord(0x9_0000, 0x1_0000, 2)

	m, err := loadE820Dump(f.Name())
	if err != nil {
		t.Fatalf("loadE820Dump: %v", err)
	}
	m.Normalize()
	regions := m.Regions()
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d: %+v", len(regions), regions)
	}
	if regions[0].Type != memmap.Usable || regions[1].Type != memmap.Reserved {
		t.Fatalf("unexpected region types: %+v", regions)
	}
}

func TestLoadE820DumpRejectsTruncatedFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "e820-*.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, e820RecordSize-1)); err != nil {
		t.Fatal(err)
	}

	if _, err := loadE820Dump(f.Name()); err == nil {
		t.Fatal("expected an error for a truncated dump file")
	}
}

// translate walks the table rooted at root by hand, the same read-only way
// renderPageTableTree does, since paging.Engine's own Unmap refuses to
// touch a System-marked entry and every identity-map entry is System.
func translate(frames *pagedb.DB, root addr.PhysAddr, v addr.VirtAddr) (addr.PhysAddr, bool) {
	pml4i, pdpti, pdi, pti := v.PageTableIndices()
	indices := []uint16{pml4i, pdpti, pdi, pti}
	p := root
	for level, idx := range indices {
		bytes := frames.Bytes(p)
		raw := binary.LittleEndian.Uint64(bytes[int(idx)*8 : int(idx)*8+8])
		if raw&1 == 0 {
			return 0, false
		}
		entryAddr := addr.PhysAddr(raw & addrMask)
		huge := raw&(1<<7) != 0
		if huge && level < len(indices)-1 {
			offset := uint64(v) & (uint64(1)<<(uint(3-level)*9+12) - 1)
			return addr.PhysAddr(uint64(entryAddr) + offset), true
		}
		p = entryAddr
	}
	return p, true
}

func TestBuildIdentityMapIdentityMapsMidpointOfEachMappedRegion(t *testing.T) {
	m := sampleMemoryMap()
	m.Normalize()

	frames, err := pagedb.New(m)
	if err != nil {
		t.Fatalf("pagedb.New: %v", err)
	}
	engine := paging.NewEngine(frames, cpu.NewFake())
	engine.InitKernelRoot()
	kernelAS := engine.CreateAddressSpace(addr.VirtAddr(0xffff_ffff_0000_0000), 2<<20)
	buildIdentityMap(engine, m, kernelAS)

	for _, r := range m.Regions() {
		if r.Type == memmap.Unmapped || r.Type == memmap.Bad {
			continue
		}
		mid := r.Addr + r.Size/2
		mid -= mid % 4096
		p, ok := translate(frames, kernelAS.PRoot, addr.VirtAddr(mid))
		if !ok {
			t.Fatalf("region %#x: virt %#x has no mapping", r.Addr, mid)
		}
		if uint64(p) != mid {
			t.Fatalf("region %#x: expected identity mapping, got phys %#x for virt %#x", r.Addr, p, mid)
		}
	}
}
