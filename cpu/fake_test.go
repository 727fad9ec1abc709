package cpu

import "testing"

func TestFakePortRoundTrip(t *testing.T) {
	f := NewFake()
	f.Out8(0x60, 0x42)
	if got := f.In8(0x60); got != 0x42 {
		t.Fatalf("In8(0x60) = %#x, want 0x42", got)
	}

	f.Out32(0xCF8, 0xdeadbeef)
	if got := f.In32(0xCF8); got != 0xdeadbeef {
		t.Fatalf("In32(0xCF8) = %#x, want 0xdeadbeef", got)
	}
}

func TestFakeMSRRoundTrip(t *testing.T) {
	f := NewFake()
	f.WRMSR(0xC0000080, 0x501)
	if got := f.RDMSR(0xC0000080); got != 0x501 {
		t.Fatalf("RDMSR = %#x, want 0x501", got)
	}
}

func TestFakeInterruptState(t *testing.T) {
	f := NewFake()
	if !f.InterruptsEnabled() {
		t.Fatal("fake CPU should start with interrupts enabled")
	}
	f.DisableInterrupts()
	if f.InterruptsEnabled() {
		t.Fatal("DisableInterrupts did not clear the flag")
	}
	f.EnableInterrupts()
	if !f.InterruptsEnabled() {
		t.Fatal("EnableInterrupts did not set the flag")
	}
}

func TestFakeHaltAndSoftwareInterrupt(t *testing.T) {
	f := NewFake()
	f.HaltUntilInterrupt()
	f.HaltUntilInterrupt()
	if f.Halted() != 2 {
		t.Fatalf("Halted() = %d, want 2", f.Halted())
	}

	var seen []uint8
	f.RaiseHook = func(v uint8) { seen = append(seen, v) }
	f.RaiseSoftwareInterrupt(0x21)
	if len(seen) != 1 || seen[0] != 0x21 {
		t.Fatalf("RaiseHook saw %v, want [0x21]", seen)
	}
	if got := f.SoftwareInterrupts(); len(got) != 1 || got[0] != 0x21 {
		t.Fatalf("SoftwareInterrupts() = %v", got)
	}
}
