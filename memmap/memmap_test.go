package memmap

import "testing"

func regionsEqual(t *testing.T, got []Region, want []Region) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(regions) = %d, want %d\ngot:  %+v\nwant: %+v", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("region %d = %+v, want %+v\ngot:  %+v\nwant: %+v", i, got[i], want[i], got, want)
		}
	}
}

func TestNormalizeResolvesOverlapByHigherType(t *testing.T) {
	m := New()
	m.Add(0x0, 0x1000, Usable)
	m.Add(0x800, 0x1000, Reserved)
	m.Normalize()

	regionsEqual(t, m.Regions(), []Region{
		{Addr: 0x0, Size: 0x800, Type: Usable},
		{Addr: 0x800, Size: 0x1000, Type: Reserved},
	})
	if m.LastUsable() != 0x800 {
		t.Fatalf("LastUsable() = %#x, want 0x800", m.LastUsable())
	}
}

func TestNormalizeFillsGapsWithReserved(t *testing.T) {
	m := New()
	m.Add(0x1000, 0x1000, Usable)
	m.Add(0x4000, 0x1000, Usable)
	m.Normalize()

	regionsEqual(t, m.Regions(), []Region{
		{Addr: 0x0, Size: 0x1000, Type: Reserved},
		{Addr: 0x1000, Size: 0x1000, Type: Usable},
		{Addr: 0x2000, Size: 0x2000, Type: Reserved},
		{Addr: 0x4000, Size: 0x1000, Type: Usable},
	})
}

func TestNormalizeCoalescesAdjacentGapIntoExistingReserved(t *testing.T) {
	m := New()
	m.Add(0x0, 0x1000, Usable)
	m.Add(0x2000, 0x1000, Reserved)
	// gap [0x1000,0x2000) should merge with the Reserved region that follows
	m.Normalize()

	regionsEqual(t, m.Regions(), []Region{
		{Addr: 0x0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Reserved},
	})
}

func TestNormalizeIsIdempotent(t *testing.T) {
	m := New()
	m.Add(0x0, 0x9FC00, Usable)
	m.Add(0x9FC00, 0x400, Reserved)
	m.Add(0xF0000, 0x10000, Reserved)
	m.Add(0x100000, 0x7EF0000, Usable)
	m.Normalize()
	first := m.Regions()

	m.Normalize()
	second := m.Regions()

	regionsEqual(t, second, first)
}

func TestNormalizeCoversFromZeroWithNoGaps(t *testing.T) {
	m := New()
	m.Add(0x3000, 0x1000, Usable)
	m.Normalize()

	regions := m.Regions()
	if regions[0].Addr != 0 {
		t.Fatalf("first region starts at %#x, want 0", regions[0].Addr)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i-1].End() != regions[i].Addr {
			t.Fatalf("gap between region %d (end %#x) and region %d (addr %#x)",
				i-1, regions[i-1].End(), i, regions[i].Addr)
		}
	}
}

func TestNormalizeTruncatesWeakerPartialOverlap(t *testing.T) {
	m := New()
	m.Add(0x0, 0x2000, Usable)
	m.Add(0x1000, 0x2000, Bad)
	m.Normalize()

	regionsEqual(t, m.Regions(), []Region{
		{Addr: 0x0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Bad},
	})
}

func TestAddAfterNormalizeReNormalizes(t *testing.T) {
	m := New()
	m.Add(0x0, 0x1000, Usable)
	m.Normalize()
	if len(m.Regions()) != 1 {
		t.Fatalf("expected a single region before second Add")
	}

	m.Add(0x0, 0x1000, Unmapped)
	regionsEqual(t, m.Regions(), []Region{
		{Addr: 0x0, Size: 0x1000, Type: Unmapped},
	})
}

func TestEmptyMapNormalizesToNoRegions(t *testing.T) {
	m := New()
	m.Normalize()
	if regions := m.Regions(); len(regions) != 0 {
		t.Fatalf("Regions() = %+v, want empty", regions)
	}
	if m.LastUsable() != 0 {
		t.Fatalf("LastUsable() = %#x, want 0", m.LastUsable())
	}
}
