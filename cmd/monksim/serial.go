package main

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"monkos/cpu"
)

// keyboardDataPort and keyboardStatusPort are the only I/O ports monksim's
// -serial mode actually proxies over the wire (§4.H); every other port/MSR
// access falls through to the backing fake so the simulator still has a
// full CPU to run the syscall-bootstrap probe against.
const (
	keyboardDataPort   = 0x60
	keyboardStatusPort = 0x64

	serialReadTimeout = 20 * time.Millisecond
)

// serialPorts wraps a cpu.Ports fake, intercepting the keyboard's I/O
// ports and forwarding them across a real serial link (SPEC_FULL.md §2.B:
// "lets the simulator's cpu.Ports implementation proxy in8/out8 calls for
// a chosen port range over a real serial link"). Everything outside that
// port range delegates to the fake unchanged.
type serialPorts struct {
	cpu.Ports
	port serial.Port
	mu   sync.Mutex
}

func newSerialPorts(device string, baud int, fallback cpu.Ports) (*serialPorts, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial device %s: %w", device, err)
	}
	// A finite read timeout turns In8 into a poll rather than a blocking
	// wait for a byte that may never arrive: the simulator's read loop
	// calls In8 on every idle tick exactly as the kernel's own
	// halt-until-interrupt loop would check the status port.
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		return nil, fmt.Errorf("configuring serial read timeout: %w", err)
	}
	return &serialPorts{Ports: fallback, port: p}, nil
}

func (s *serialPorts) Close() error { return s.port.Close() }

func (s *serialPorts) In8(port uint16) uint8 {
	if port != keyboardDataPort && port != keyboardStatusPort {
		return s.Ports.In8(port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 1)
	n, err := s.port.Read(buf)
	if err != nil || n == 0 {
		return 0
	}
	return buf[0]
}

func (s *serialPorts) Out8(port uint16, value uint8) {
	if port != keyboardDataPort && port != keyboardStatusPort {
		s.Ports.Out8(port, value)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.port.Write([]byte{value})
}
