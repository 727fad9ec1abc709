package bitfield

import "testing"

func TestPackUnpackPTEFlagsRoundTrip(t *testing.T) {
	cases := []PTEFlags{
		{},
		{Present: true},
		{Present: true, Writable: true},
		{Present: true, Writable: true, User: true, Global: true},
		{Present: true, System: true, Huge: true},
		{Present: true, Window: true},
	}

	for _, want := range cases {
		packed, err := PackPTEFlags(want)
		if err != nil {
			t.Fatalf("PackPTEFlags(%+v): %v", want, err)
		}
		got := UnpackPTEFlags(packed)
		if got != want {
			t.Fatalf("round trip mismatch: packed=%#x got=%+v want=%+v", packed, got, want)
		}
	}
}

func TestUnpackPTEFlagsIgnoresAddressBits(t *testing.T) {
	// Bits above the flag range (frame address bits) must not perturb the
	// decoded flags.
	raw := uint64(0x000ffffffffff000) | 1 // Present set, every address bit set
	f := UnpackPTEFlags(raw)
	if !f.Present {
		t.Fatal("Present not decoded")
	}
	if f.Writable || f.User || f.System {
		t.Fatalf("address bits leaked into unrelated flags: %+v", f)
	}
}

func TestPackPTEFlagsRejectsOutOfRangeReserved(t *testing.T) {
	_, err := PackPTEFlags(PTEFlags{Reserved: 1 << 21})
	if err == nil {
		t.Fatal("expected an error packing a Reserved value that overflows its 21 bits")
	}
}
