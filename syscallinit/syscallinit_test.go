package syscallinit

import (
	"testing"

	"monkos/cpu"
)

func fakeWithSyscallSupport() *cpu.Fake {
	f := cpu.NewFake()
	f.CPUIDLeaves[cpuidExtendedFeatures] = [4]uint32{0, 0, 0, syscallSupportBit}
	return f
}

func TestInitProgramsExpectedMSRs(t *testing.T) {
	f := fakeWithSyscallSupport()
	var b Bootstrap

	if err := b.Init(f, 0x08, 0x1b, 0xffff_8000_0010_0000, 0x0002_0000); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !b.Done() {
		t.Fatal("Done() = false after successful Init")
	}

	if got := f.RDMSR(msrEFER); got&eferSCE == 0 {
		t.Fatalf("IA32_EFER.SCE not set: %#x", got)
	}
	if got := f.RDMSR(msrSTAR); got != star(0x08, 0x1b) {
		t.Fatalf("IA32_STAR = %#x, want %#x", got, star(0x08, 0x1b))
	}
	if got := f.RDMSR(msrLSTAR); got != 0xffff_8000_0010_0000 {
		t.Fatalf("IA32_LSTAR = %#x, want trampoline address", got)
	}
	if got := f.RDMSR(msrFMASK); got != 0x0002_0000 {
		t.Fatalf("IA32_FMASK = %#x, want 0x20000", got)
	}
}

func TestInitSecondCallIsNoOp(t *testing.T) {
	f := fakeWithSyscallSupport()
	var b Bootstrap

	if err := b.Init(f, 0x08, 0x1b, 0x1000, 0x2000); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := b.Init(f, 0x10, 0x2b, 0x9999, 0x8888); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	if got := f.RDMSR(msrLSTAR); got != 0x1000 {
		t.Fatalf("second Init call reprogrammed IA32_LSTAR: got %#x, want unchanged 0x1000", got)
	}
}

func TestInitWithoutSupportReturnsErrorAndWritesNothing(t *testing.T) {
	f := cpu.NewFake() // CPUIDLeaves empty: leaf reports all-zero EDX
	var b Bootstrap

	err := b.Init(f, 0x08, 0x1b, 0x1000, 0x2000)
	if err != ErrUnsupported {
		t.Fatalf("Init err = %v, want ErrUnsupported", err)
	}
	if b.Done() {
		t.Fatal("Done() = true despite unsupported CPU")
	}
	if got := f.RDMSR(msrEFER); got != 0 {
		t.Fatalf("IA32_EFER written despite unsupported CPU: %#x", got)
	}
}
