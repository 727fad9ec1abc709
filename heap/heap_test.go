package heap

import (
	"testing"
	"unsafe"
)

// fakeGrower backs a Heap with a pre-sized array so growth never
// reallocates (the contract GrowFunc documents).
type fakeGrower struct {
	arena []byte
	used  int
}

func newFakeGrower(maxPages int) *fakeGrower {
	return &fakeGrower{arena: make([]byte, maxPages*pageSize)}
}

func (g *fakeGrower) grow(pages int) ([]byte, bool) {
	need := g.used + pages*pageSize
	if need > len(g.arena) {
		return g.arena[:g.used], false
	}
	g.used = need
	return g.arena[:g.used], true
}

func newTestHeap(t *testing.T, maxPages int) *Heap {
	t.Helper()
	g := newFakeGrower(maxPages)
	return New(maxPages, g.grow)
}

func payloadOffset(h *Heap, p unsafe.Pointer) uint64 {
	return uint64(uintptr(p) - uintptr(unsafe.Pointer(&h.mem[0])))
}

func TestAllocReturnsSixteenByteAlignedPointers(t *testing.T) {
	h := newTestHeap(t, initialPages)
	for _, size := range []uint64{1, 7, 8, 15, 16, 100, 4000} {
		p := h.Alloc(size)
		if p == nil {
			t.Fatalf("Alloc(%d) = nil", size)
		}
		if uintptr(p)%16 != 0 {
			t.Fatalf("Alloc(%d) returned unaligned pointer %#x", size, p)
		}
	}
}

func TestAllocWritableAndDistinctRegions(t *testing.T) {
	h := newTestHeap(t, initialPages)
	a := h.Alloc(64)
	b := h.Alloc(64)
	if a == nil || b == nil {
		t.Fatal("expected both allocations to succeed")
	}
	abytes := unsafe.Slice((*byte)(a), 64)
	bbytes := unsafe.Slice((*byte)(b), 64)
	for i := range abytes {
		abytes[i] = 0xAA
	}
	for i := range bbytes {
		bbytes[i] = 0xBB
	}
	for i, v := range abytes {
		if v != 0xAA {
			t.Fatalf("region a corrupted at %d: %#x", i, v)
		}
	}
	for i, v := range bbytes {
		if v != 0xBB {
			t.Fatalf("region b corrupted at %d: %#x", i, v)
		}
	}
}

func TestFreeThenReallocReusesSpace(t *testing.T) {
	h := newTestHeap(t, initialPages)
	a := h.Alloc(128)
	off := payloadOffset(h, a)
	h.Free(a)

	b := h.Alloc(128)
	if payloadOffset(h, b) != off {
		t.Fatalf("expected Alloc to reuse freed offset %#x, got %#x", off, payloadOffset(h, b))
	}
}

func TestFreeCoalescesAdjacentFreeBlocks(t *testing.T) {
	h := newTestHeap(t, initialPages)
	a := h.Alloc(64)
	b := h.Alloc(64)
	c := h.Alloc(64)
	_ = b
	aOff := payloadOffset(h, a)

	h.Free(a)
	h.Free(c)
	h.Free(b) // merges with both neighbours

	// An allocation too large for any one of a, b or c alone should now be
	// placed at a's offset, in the block a, b and c coalesced into, without
	// growing the heap.
	pagesBefore := h.pages
	big := h.Alloc(150)
	if big == nil {
		t.Fatal("expected coalesced free space to satisfy a larger allocation")
	}
	if payloadOffset(h, big) != aOff {
		t.Fatalf("expected the allocation at the coalesced block's offset %#x, got %#x", aOff, payloadOffset(h, big))
	}
	if h.pages != pagesBefore {
		t.Fatal("allocation should have been satisfied by the coalesced block, not by growth")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	h := newTestHeap(t, initialPages)
	a := h.Alloc(32)
	h.Free(a)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double free")
		}
	}()
	h.Free(a)
}

func TestAllocGrowsWhenNoFreeBlockFits(t *testing.T) {
	h := newTestHeap(t, initialPages+4)
	// Exhaust the initial burst with one big allocation leaving no room
	// for another of similar size.
	first := h.Alloc(uint64(initialPages)*pageSize - 256)
	if first == nil {
		t.Fatal("expected the first large allocation to succeed")
	}
	pagesBefore := h.pages
	second := h.Alloc(8000)
	if second == nil {
		t.Fatal("expected the second allocation to trigger growth and succeed")
	}
	if h.pages <= pagesBefore {
		t.Fatal("expected Alloc to have grown the heap's page count")
	}
}

func TestAllocReturnsNilAtPageCeiling(t *testing.T) {
	h := newTestHeap(t, initialPages) // no room to grow beyond the initial burst
	// Consume essentially the whole arena.
	first := h.Alloc(uint64(initialPages)*pageSize - 256)
	if first == nil {
		t.Fatal("expected the first allocation to succeed")
	}
	if p := h.Alloc(8000); p != nil {
		t.Fatal("expected Alloc to return nil once the page ceiling is reached")
	}
}
