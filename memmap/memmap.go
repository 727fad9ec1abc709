// Package memmap implements component D: canonicalizing the BIOS-supplied
// physical memory region list (spec.md §4.D) into an ordered, gapless,
// non-overlapping sequence. There is no close teacher analogue for the
// normalization algorithm itself (mazboot never canonicalizes a region
// list — its ARM memory layout is a single fixed RAM window); the Region
// type nonetheless follows the typed-address convention grounded in
// biscuit's mem.Pa_t (a raw address is never passed around untyped).
package memmap

import "sort"

// Type classifies a physical memory region. The ordinal value is
// significant: §4.D's overlap-resolution rule is "higher type number
// wins", so the ordering below encodes which classification should survive
// when two reported regions disagree about the same bytes. Usable memory
// always loses to anything more restrictive; Unmapped (the kernel's own
// null-guard page) and Bad (reported-broken RAM) sit at the top since they
// must never be silently reclassified as usable by a weaker overlapping
// report.
type Type int

const (
	Usable Type = iota
	AcpiReclaim
	AcpiNvs
	Uncached
	Reserved
	Bad
	Unmapped
)

func (t Type) String() string {
	switch t {
	case Usable:
		return "Usable"
	case AcpiReclaim:
		return "AcpiReclaim"
	case AcpiNvs:
		return "AcpiNvs"
	case Uncached:
		return "Uncached"
	case Reserved:
		return "Reserved"
	case Bad:
		return "Bad"
	case Unmapped:
		return "Unmapped"
	default:
		return "Unknown"
	}
}

// Region is one entry of the physical memory map (§3.1).
type Region struct {
	Addr  uint64
	Size  uint64
	Type  Type
	Flags uint32
}

// End returns the exclusive end address of the region.
func (r Region) End() uint64 { return r.Addr + r.Size }

// Map is the physical memory map: an ordered, non-overlapping sequence of
// regions built up by Add calls and canonicalized by Normalize.
type Map struct {
	input      []Region
	regions    []Region
	lastUsable uint64
	normalized bool
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// Add appends a region to the map's input set. If the map has already been
// normalized once, Add re-normalizes immediately so Regions/LastUsable
// always reflect every region added so far (§4.D: "if the map has already
// been initialized, re-normalizes").
func (m *Map) Add(addr, size uint64, t Type) {
	m.input = append(m.input, Region{Addr: addr, Size: size, Type: t})
	if m.normalized {
		m.Normalize()
	}
}

// Regions returns an immutable snapshot of the normalized region sequence.
// Callers receive a copy; mutating it cannot corrupt the map's own state.
func (m *Map) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

// LastUsable returns the end address of the highest-addressed Usable
// region, or 0 if none exists.
func (m *Map) LastUsable() uint64 { return m.lastUsable }

// Normalize applies the §4.D algorithm: stable-sort, resolve overlaps by
// "higher type wins", fill gaps with Reserved, coalesce same-type
// neighbours, and recompute LastUsable. It is idempotent:
// Normalize(); Normalize() leaves Regions() unchanged (§8).
func (m *Map) Normalize() {
	m.normalized = true

	if len(m.input) == 0 {
		m.regions = nil
		m.lastUsable = 0
		return
	}

	// Stable sort ascending by (addr, size) — step 1. The sweep below takes
	// the highest type over each sub-interval, so its result, duplicates
	// included, does not depend on this order.
	in := make([]Region, len(m.input))
	copy(in, m.input)
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Addr != in[j].Addr {
			return in[i].Addr < in[j].Addr
		}
		return in[i].Size < in[j].Size
	})

	// Collect every region boundary plus 0, so the map always starts at
	// address 0 per the §3.1 coverage invariant.
	boundSet := map[uint64]struct{}{0: {}}
	for _, r := range in {
		boundSet[r.Addr] = struct{}{}
		boundSet[r.End()] = struct{}{}
	}
	bounds := make([]uint64, 0, len(boundSet))
	for b := range boundSet {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	// Step 2: for each sub-interval between consecutive boundaries, the
	// winning classification is the highest type ordinal among every input
	// region that fully covers it (every input region either fully covers
	// or is disjoint from a sub-interval, since bounds includes every
	// region edge). An interval no input region covers is a gap, handled
	// in step 3.
	type sweep struct {
		start, end uint64
		hasType    bool
		typ        Type
	}
	var swept []sweep
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		hasType := false
		var best Type
		for _, r := range in {
			if r.Addr <= start && r.End() >= end {
				if !hasType || r.Type > best {
					best = r.Type
					hasType = true
				}
			}
		}
		swept = append(swept, sweep{start: start, end: end, hasType: hasType, typ: best})
	}

	// Step 3: fill gaps with Reserved.
	out := make([]Region, 0, len(swept))
	for _, s := range swept {
		typ := s.typ
		if !s.hasType {
			typ = Reserved
		}
		out = append(out, Region{Addr: s.start, Size: s.end - s.start, Type: typ})
	}

	// Step 4: coalesce same-type neighbours (this also merges a filled gap
	// into an already-Reserved neighbour, satisfying "if a neighbour
	// already has type Reserved, extend it instead").
	coalesced := out[:0:0]
	for _, r := range out {
		if n := len(coalesced); n > 0 && coalesced[n-1].Type == r.Type && coalesced[n-1].End() == r.Addr {
			coalesced[n-1].Size += r.Size
			continue
		}
		coalesced = append(coalesced, r)
	}

	m.regions = coalesced

	// Step 5: recompute last_usable.
	var lastUsable uint64
	for _, r := range m.regions {
		if r.Type == Usable && r.End() > lastUsable {
			lastUsable = r.End()
		}
	}
	m.lastUsable = lastUsable
}
