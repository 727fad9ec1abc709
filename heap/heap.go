// Package heap implements component G: the kernel heap allocator layered
// on the page-table engine. The block layout (doubly linked segments, a
// header carried at the front of every block, first/best-fit scan over
// the free chain, split-if-large-enough) is adapted from the teacher's
// src/go/mazarin/heap.go heapSegment allocator — its best-fit search
// becomes the spec's required first-fit over an address-ordered free
// list, its single next/prev-linked list of every segment becomes a free
// list that only threads free blocks (allocated blocks carry no list
// pointers), and its bump-allocated single arena becomes a growable one
// bounded by a page ceiling (§4.G step 3).
package heap

import "unsafe"

const (
	// HeaderSize is the 16-byte block header: an 8-byte size field and an
	// 8-byte flags field (§3.5).
	HeaderSize = 16
	// FooterSize is the 8-byte trailing size field used for the
	// footer-lookback coalescing scan.
	FooterSize = 8
	// pageSize is the page granularity new heap pages are requested in.
	pageSize = 4096
	// initialPages is the fixed initial burst of pages heap_create
	// allocates (§4.G).
	initialPages = 16
	// minSplitRemainder is the smallest remaining free block worth
	// splitting off: header + 16 bytes of free-list pointers + footer.
	minSplitRemainder = HeaderSize + 16 + FooterSize
)

const noBlock = ^uint64(0)

type blockFlags uint64

const flagAllocated blockFlags = 1 << 0

type header struct {
	size  uint64
	flags blockFlags
}

type footer struct {
	size uint64
}

// freeLinks occupies the payload prefix of a free block (§3.5: "free
// blocks additionally carry previous and next free-block pointers").
type freeLinks struct {
	prev uint64
	next uint64
}

// GrowFunc requests additionalPages more backing pages for the heap,
// returning the heap's up-to-date backing storage and whether the
// request succeeded. It is how the heap obtains memory from the
// page-table engine without importing paging directly, keeping this
// package host-testable in isolation (§8).
//
// The returned slice must always share the same backing array as every
// slice previously returned: virtual memory never moves once mapped, and
// every unsafe.Pointer Alloc has handed out remains valid only as long as
// that holds. A GrowFunc backed by paging.Map extends the mapping in
// place; a GrowFunc backed by a test fake must pre-size its array and
// re-slice it, never append into a smaller one.
type GrowFunc func(additionalPages int) (mem []byte, ok bool)

// Heap is the kernel heap allocator (§3.5): an address-sorted free list of
// variable-sized blocks over a growable backing arena.
type Heap struct {
	mem       []byte
	pages     int
	maxPages  int
	grow      GrowFunc
	freeHead  uint64
	freeTail  uint64
}

// New creates a heap over an initial arena of initialPages pages,
// installing a single free block spanning it, with maxPages as the
// growth ceiling and grow as the callback used to request more pages.
func New(maxPages int, grow GrowFunc) *Heap {
	h := &Heap{maxPages: maxPages, grow: grow, freeHead: noBlock, freeTail: noBlock}
	mem, ok := grow(initialPages)
	if !ok {
		panic("heap: failed to allocate the initial page burst")
	}
	h.mem = mem
	h.pages = initialPages
	h.installFreeBlock(0, uint64(len(mem))-HeaderSize-FooterSize, noBlock, noBlock)
	h.freeHead, h.freeTail = 0, 0
	return h
}

func (h *Heap) headerAt(off uint64) *header {
	return (*header)(unsafe.Pointer(&h.mem[off]))
}

func (h *Heap) footerAt(off uint64, size uint64) *footer {
	return (*footer)(unsafe.Pointer(&h.mem[off+HeaderSize+size]))
}

func (h *Heap) linksAt(off uint64) *freeLinks {
	return (*freeLinks)(unsafe.Pointer(&h.mem[off+HeaderSize]))
}

// blockTotal returns the total size (header+payload+footer) of the block
// at off.
func (h *Heap) blockTotal(off uint64) uint64 {
	return HeaderSize + h.headerAt(off).size + FooterSize
}

// installFreeBlock writes a free block's header, footer, and free-list
// links at off with the given payload size, linking it between prev and
// next in the free list (does not itself update h.freeHead/h.freeTail or
// the prev/next blocks' own links — callers splice those separately).
func (h *Heap) installFreeBlock(off, size, prev, next uint64) {
	h.headerAt(off).size = size
	h.headerAt(off).flags = 0
	h.footerAt(off, size).size = size
	links := h.linksAt(off)
	links.prev = prev
	links.next = next
}

// unlinkFree removes off from the free list.
func (h *Heap) unlinkFree(off uint64) {
	links := h.linksAt(off)
	prev, next := links.prev, links.next
	if prev != noBlock {
		h.linksAt(prev).next = next
	} else {
		h.freeHead = next
	}
	if next != noBlock {
		h.linksAt(next).prev = prev
	} else {
		h.freeTail = prev
	}
}

// insertFreeAfter splices off into the free list immediately after prev
// (prev == noBlock means "at the head").
func (h *Heap) insertFreeAfter(prev, off uint64) {
	var next uint64
	if prev == noBlock {
		next = h.freeHead
		h.freeHead = off
	} else {
		next = h.linksAt(prev).next
		h.linksAt(prev).next = off
	}
	if next != noBlock {
		h.linksAt(next).prev = off
	} else {
		h.freeTail = off
	}
	links := h.linksAt(off)
	links.prev = prev
	links.next = next
}

// effectiveSize rounds a requested payload size up so that
// (effectiveSize + FooterSize) is a multiple of 16 — i.e. so the next
// block's header, which always starts on a 16-byte boundary given
// HeaderSize is itself a multiple of 16, keeps every payload pointer
// 16-byte aligned (§3.5).
func effectiveSize(requested uint64) uint64 {
	total := requested + FooterSize
	if rem := total % 16; rem != 0 {
		total += 16 - rem
	}
	return total - FooterSize
}

// Alloc returns a pointer to size bytes of 16-byte-aligned memory, or nil
// if the heap could not satisfy the request even after growing up to its
// page ceiling (§4.G, §7: heap exhaustion is not fatal).
func (h *Heap) Alloc(size uint64) unsafe.Pointer {
	need := effectiveSize(size)

	off, ok := h.firstFit(need)
	if !ok {
		if !h.growFor(need) {
			return nil
		}
		off, ok = h.firstFit(need)
		if !ok {
			return nil
		}
	}

	h.unlinkFree(off)
	hdr := h.headerAt(off)
	if hdr.size >= need+minSplitRemainder {
		tailOff := off + HeaderSize + need + FooterSize
		tailSize := hdr.size - need - HeaderSize - FooterSize
		h.installFreeBlock(tailOff, tailSize, noBlock, noBlock)
		h.insertAddressOrdered(tailOff)
		hdr.size = need
		h.footerAt(off, need).size = need
	}
	hdr.flags = flagAllocated

	return unsafe.Pointer(&h.mem[off+HeaderSize])
}

// insertAddressOrdered inserts off, a block not currently on the free
// list, into the free list at the position preserving address order.
func (h *Heap) insertAddressOrdered(off uint64) {
	prev := noBlock
	cur := h.freeHead
	for cur != noBlock && cur < off {
		prev = cur
		cur = h.linksAt(cur).next
	}
	h.insertFreeAfter(prev, off)
}

// firstFit returns the first free block (in address order) whose payload
// is at least need bytes.
func (h *Heap) firstFit(need uint64) (uint64, bool) {
	for off := h.freeHead; off != noBlock; off = h.linksAt(off).next {
		if h.headerAt(off).size >= need {
			return off, true
		}
	}
	return 0, false
}

// growFor requests enough additional pages to satisfy need bytes, up to
// maxPages, extending the last block if it is free or appending a fresh
// free block otherwise (§4.G step 3).
func (h *Heap) growFor(need uint64) bool {
	total := need + HeaderSize + FooterSize
	pagesNeeded := int((total + pageSize - 1) / pageSize)
	if pagesNeeded < 1 {
		pagesNeeded = 1
	}
	if h.pages+pagesNeeded > h.maxPages {
		pagesNeeded = h.maxPages - h.pages
	}
	if pagesNeeded <= 0 {
		return false
	}

	oldLen := uint64(len(h.mem))
	mem, ok := h.grow(pagesNeeded)
	if !ok {
		return false
	}
	h.mem = mem
	h.pages += pagesNeeded
	addedBytes := uint64(len(mem)) - oldLen

	if h.freeTail != noBlock && h.freeTail+h.blockTotal(h.freeTail) == oldLen {
		// The last block is free and physically adjacent to the new
		// space: extend it in place rather than creating a new block.
		hdr := h.headerAt(h.freeTail)
		hdr.size += addedBytes
		h.footerAt(h.freeTail, hdr.size).size = hdr.size
		return hdr.size >= need
	}

	newOff := oldLen
	newSize := addedBytes - HeaderSize - FooterSize
	h.installFreeBlock(newOff, newSize, h.freeTail, noBlock)
	if h.freeTail != noBlock {
		h.linksAt(h.freeTail).next = newOff
	} else {
		h.freeHead = newOff
	}
	h.freeTail = newOff
	return newSize >= need
}

// Free releases memory previously returned by Alloc, coalescing eagerly
// with a physically adjacent free neighbour on either side (§4.G).
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	off := uint64(uintptr(ptr)-uintptr(unsafe.Pointer(&h.mem[0]))) - HeaderSize
	hdr := h.headerAt(off)
	if hdr.flags&flagAllocated == 0 {
		panic("heap: double free")
	}

	size := hdr.size
	blockEnd := off + HeaderSize + size + FooterSize

	// Coalesce with the next block if it is free and within bounds: its
	// entire header+payload+footer span is absorbed into this block's
	// payload.
	if blockEnd < uint64(len(h.mem)) {
		nextHdr := h.headerAt(blockEnd)
		if nextHdr.flags&flagAllocated == 0 {
			h.unlinkFree(blockEnd)
			size += HeaderSize + nextHdr.size + FooterSize
		}
	}

	// Coalesce with the previous block if it is free, found via
	// footer-lookback: its header and this block's (possibly
	// next-extended) payload+header are absorbed into the previous
	// block's payload, and the merged block is now addressed at the
	// previous block's offset.
	if off >= FooterSize {
		prevFooter := (*footer)(unsafe.Pointer(&h.mem[off-FooterSize]))
		prevOff := off - FooterSize - prevFooter.size - HeaderSize
		prevHdr := h.headerAt(prevOff)
		if prevHdr.flags&flagAllocated == 0 {
			h.unlinkFree(prevOff)
			size += HeaderSize + FooterSize + prevHdr.size
			off = prevOff
		}
	}

	h.headerAt(off).size = size
	h.headerAt(off).flags = 0
	h.footerAt(off, size).size = size
	h.insertAddressOrdered(off)
}
