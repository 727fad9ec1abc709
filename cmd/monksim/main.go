// Command monksim is the host-side keyboard simulator (§2.B): it puts the
// controlling terminal into raw mode so real keystrokes are fed byte-for-
// byte through the same keyboard.State state machine the kernel's IRQ-1
// handler runs (§4.H), instead of only exercising that logic through a
// synthetic test harness. An optional -serial flag proxies the simulated
// CPU's in8/out8 calls for the keyboard's I/O port range over a real
// serial link, letting monksim drive real PS/2-to-serial hardware end to
// end without booting the kernel image. It also runs the syscall-bootstrap
// capability probe (component I) against whatever CPU it is wired to,
// since that MSR programming is otherwise only observable through a fake.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"monkos/cpu"
	"monkos/keyboard"
	"monkos/syscallinit"
)

func main() {
	serialPort := flag.String("serial", "", "proxy the keyboard data/status ports over this serial device (e.g. /dev/ttyUSB0) instead of a synthetic CPU")
	baud := flag.Int("baud", 115200, "serial baud rate, used only with -serial")
	flag.Parse()

	var ports cpu.Ports
	fake := cpu.NewFake()
	fake.CPUIDLeaves[0x8000_0001] = [4]uint32{0, 0, 0, 1 << 11}
	ports = fake

	if *serialPort != "" {
		sp, err := newSerialPorts(*serialPort, *baud, fake)
		if err != nil {
			fmt.Fprintf(os.Stderr, "monksim: %v\n", err)
			os.Exit(1)
		}
		defer sp.Close()
		ports = sp
	}

	var boot syscallinit.Bootstrap
	if err := boot.Init(ports, 0x08, 0x1b, 0x0, 0x0002_0000); err != nil {
		fmt.Fprintf(os.Stderr, "monksim: syscall bootstrap: %v\n", err)
	} else {
		fmt.Println("monksim: SYSCALL/SYSRET bootstrap succeeded")
	}

	kbd := keyboard.New(keyboard.USUnshifted, keyboard.USShifted)

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monksim: putting terminal in raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	if rows, cols, err := terminalSize(fd); err == nil {
		fmt.Fprintf(os.Stderr, "monksim: terminal is %dx%d\n", cols, rows)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		term.Restore(fd, oldState)
		os.Exit(0)
	}()

	fmt.Fprintln(os.Stderr, "monksim: raw keystrokes are now fed through the keyboard state machine; Ctrl-D to quit")

	sp, usingSerial := ports.(*serialPorts)
	buf := make([]byte, 1)
	for {
		ready, err := pollStdin(fd, syscall.Timeval{Sec: 0, Usec: 20_000})
		if err != nil {
			return
		}
		if ready {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			c := buf[0]
			if c == 0x04 { // Ctrl-D
				return
			}
			for _, code := range asciiToScanCodes(c) {
				kbd.HandleScanCode(code)
			}
		}

		// With -serial active, also poll the real keyboard's data port on
		// every tick, the same way the kernel's ISR would react to a
		// hardware IRQ, so scan codes produced by actual PS/2 hardware
		// drive the identical decode path as synthetic terminal input.
		if usingSerial {
			if b := sp.In8(keyboardDataPort); b != 0 {
				kbd.HandleScanCode(b)
			}
		}

		for {
			ch, ok := kbd.TryNextChar()
			if !ok {
				break
			}
			os.Stdout.Write([]byte{ch})
		}
	}
}

// asciiToScanCodes maps a raw terminal byte back to the down (and, for
// shifted characters, the modifier down/up pair around it) scan codes that
// would have produced it on real PS/2 hardware, by reverse-scanning the
// same tables the kernel's IRQ-1 handler decodes with. This lets a host
// terminal session exercise the identical decode path a real keyboard
// drives.
func asciiToScanCodes(c byte) []byte {
	if code, ok := findScanCode(keyboard.USUnshifted, c); ok {
		return []byte{code, code | 0x80}
	}
	if code, ok := findScanCode(keyboard.USShifted, c); ok {
		const leftShiftDown = 0x2A
		return []byte{leftShiftDown, code, code | 0x80, leftShiftDown | 0x80}
	}
	return nil
}

func findScanCode(t keyboard.Table, c byte) (byte, bool) {
	for i, v := range t {
		if v == c {
			return byte(i), true
		}
	}
	return 0, false
}
