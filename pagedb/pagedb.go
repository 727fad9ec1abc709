// Package pagedb implements component E's page-frame database: a 32-byte
// record per 4 KiB physical frame, an index-addressed free list, and the
// alloc_frame/free_frame primitives every higher layer (the paging engine,
// the heap) allocates physical memory through.
//
// The free list is cyclic array indices rather than a pointer chain,
// grounded directly in biscuit's mem.Physpg_t ("nexti uint32") and
// mem.Physmem_t ("freei", "freelen") — Oichkatzelesfrettschen-biscuit/
// biscuit/src/mem/mem.go, present in the retrieval pack — per §9's explicit
// instruction to model the free list this way so the cyclic structure
// never needs unsafe.Pointer chains.
package pagedb

import (
	"errors"

	"monkos/addr"
	"monkos/memmap"
)

// recordSize is the fixed per-frame record size (§3.2): two free-list
// indices, three counters, and a type tag, padded out to 32 bytes so that
// pf_count*32 sizing computations (§4.E step 2) match the record layout
// exactly.
const recordSize = 32

// Invalid is the free-list sentinel index (biscuit's analogous sentinel is
// an out-of-range freei value); no real frame ever uses it.
const Invalid = ^uint32(0)

// Type classifies a page-frame record.
type Type uint8

const (
	Reserved Type = iota
	Available
	Allocated
)

// Record is one page-frame database entry (§3.2).
type Record struct {
	Prev, Next uint32
	Refcount   uint16
	Sharecount uint16
	Flags      uint16
	Type       Type
	_          [17]byte // pad to recordSize
}

// ErrExhausted is returned by AllocFrame when the free list is empty. The
// design treats frame exhaustion as fatal (§7, §4.E): callers are expected
// to escalate through fault.Fatal rather than handle it locally, but
// pagedb itself stays free of the fault/cpu dependency so it remains
// testable in isolation.
var ErrExhausted = errors.New("pagedb: no free frames")

// DB is the page-frame database: the fixed-size record array plus the
// doubly linked free list and backing physical memory simulation used by
// AllocFrame's zero-on-allocate step.
type DB struct {
	records  []Record
	mem      []byte // simulated physical RAM, records[i] backs mem[i*4096:(i+1)*4096]
	freeHead uint32
	freeTail uint32
	available uint32
}

// PFDBBytes returns the record-array size (§4.E step 2) for a map whose
// last usable address is lastUsable, rounded up to a 2 MiB boundary.
func PFDBBytes(lastUsable uint64) uint64 {
	pfCount := (lastUsable + addr.PageSize - 1) / addr.PageSize
	bytes := pfCount * recordSize
	return uint64(addr.PhysAddr(bytes).AlignUp(addr.LargePageSize))
}

// New builds the page-frame database from a normalized memory map (§4.E
// steps 1,2,3,5). It reserves the record array's own backing physical
// range out of a Usable region (marking that sub-range Reserved in m) and
// splices every remaining Usable frame onto the free list head-to-tail in
// address order. Step 4 (building and activating the kernel identity map)
// is the paging engine's responsibility, not the database's.
func New(m *memmap.Map) (*DB, error) {
	lastUsable := m.LastUsable()
	pfCount := (lastUsable + addr.PageSize - 1) / addr.PageSize
	pfdbBytes := PFDBBytes(lastUsable)

	if pfdbBytes > 0 {
		if _, ok := reserve(m, pfdbBytes); !ok {
			return nil, errors.New("pagedb: no usable region large enough for the page-frame database")
		}
	}

	db := &DB{
		records:  make([]Record, pfCount),
		mem:      make([]byte, pfCount*addr.PageSize),
		freeHead: Invalid,
		freeTail: Invalid,
	}

	regions := m.Regions()
	for i := range db.records {
		frameAddr := uint64(i) * addr.PageSize
		typ := memmap.Reserved
		for _, r := range regions {
			if frameAddr >= r.Addr && frameAddr < r.End() {
				typ = r.Type
				break
			}
		}
		if typ == memmap.Usable {
			db.records[i].Type = Available
			db.pushFree(uint32(i))
		} else {
			db.records[i].Type = Reserved
		}
	}

	return db, nil
}

// reserve finds a Usable region at least size bytes long, marks a
// page-aligned sub-range of it Reserved, and reports the base address of
// the reserved range.
func reserve(m *memmap.Map, size uint64) (uint64, bool) {
	for _, r := range m.Regions() {
		if r.Type != memmap.Usable {
			continue
		}
		base := addr.PhysAddr(r.Addr).AlignUp(addr.LargePageSize)
		if uint64(base)+size > r.End() {
			continue
		}
		m.Add(uint64(base), size, memmap.Reserved)
		m.Normalize()
		return uint64(base), true
	}
	return 0, false
}

// Available reports the number of frames currently on the free list.
func (d *DB) Available() uint32 { return d.available }

// FrameCount reports the total number of frame records managed.
func (d *DB) FrameCount() int { return len(d.records) }

func (d *DB) pushFree(i uint32) {
	d.records[i].Prev = d.freeTail
	d.records[i].Next = Invalid
	if d.freeTail != Invalid {
		d.records[d.freeTail].Next = i
	} else {
		d.freeHead = i
	}
	d.freeTail = i
	d.available++
}

func (d *DB) popFree() (uint32, bool) {
	if d.freeHead == Invalid {
		return 0, false
	}
	i := d.freeHead
	d.freeHead = d.records[i].Next
	if d.freeHead != Invalid {
		d.records[d.freeHead].Prev = Invalid
	} else {
		d.freeTail = Invalid
	}
	d.records[i].Next = Invalid
	d.records[i].Prev = Invalid
	d.available--
	return i, true
}

// AllocFrame pops the free-list head, zeroes its backing 4 KiB page, marks
// the record Allocated with refcount 1, and returns its physical address.
func (d *DB) AllocFrame() (addr.PhysAddr, error) {
	i, ok := d.popFree()
	if !ok {
		return 0, ErrExhausted
	}
	if d.records[i].Type != Available {
		panic("pagedb: free list contained a non-Available record")
	}
	d.records[i].Type = Allocated
	d.records[i].Refcount = 1
	d.zero(i)
	return addr.PhysAddr(uint64(i) * addr.PageSize), nil
}

// FreeFrame decrements the frame's refcount; when it reaches zero the
// frame is marked Available and prepended to the free list.
func (d *DB) FreeFrame(p addr.PhysAddr) {
	i := d.index(p)
	if d.records[i].Type != Allocated {
		panic("pagedb: FreeFrame on a non-Allocated frame")
	}
	d.records[i].Refcount--
	if d.records[i].Refcount > 0 {
		return
	}
	d.records[i].Type = Available
	d.pushFreeHead(i)
}

// pushFreeHead prepends i to the free list, used by FreeFrame so recently
// freed frames are reused before the list is otherwise exhausted.
func (d *DB) pushFreeHead(i uint32) {
	d.records[i].Next = d.freeHead
	d.records[i].Prev = Invalid
	if d.freeHead != Invalid {
		d.records[d.freeHead].Prev = i
	} else {
		d.freeTail = i
	}
	d.freeHead = i
	d.available++
}

// Ref increments a frame's refcount (used when a physical page is shared,
// e.g. the kernel's identity-mapped frames referenced from every address
// space).
func (d *DB) Ref(p addr.PhysAddr) {
	i := d.index(p)
	if d.records[i].Type != Allocated {
		panic("pagedb: Ref on a non-Allocated frame")
	}
	d.records[i].Refcount++
}

// Bytes returns the backing storage for the frame at p, a 4 KiB slice
// sharing memory with the database (writes are visible to subsequent
// reads at the same address, simulating physical RAM for host tests).
func (d *DB) Bytes(p addr.PhysAddr) []byte {
	i := d.index(p)
	return d.mem[uint64(i)*addr.PageSize : (uint64(i)+1)*addr.PageSize]
}

// Record returns a copy of the frame record at p, for diagnostics and
// tests.
func (d *DB) Record(p addr.PhysAddr) Record {
	return d.records[d.index(p)]
}

func (d *DB) index(p addr.PhysAddr) uint32 {
	if !p.IsAligned(addr.PageSize) {
		panic("pagedb: address is not frame-aligned")
	}
	i := uint64(p) / addr.PageSize
	if i >= uint64(len(d.records)) {
		panic("pagedb: address out of range")
	}
	return uint32(i)
}

func (d *DB) zero(i uint32) {
	base := uint64(i) * addr.PageSize
	for j := base; j < base+addr.PageSize; j++ {
		d.mem[j] = 0
	}
}
