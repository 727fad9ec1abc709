package main

import (
	"syscall"

	"github.com/creack/goselect"
	"golang.org/x/sys/unix"
)

// terminalSize reports the controlling terminal's dimensions via
// golang.org/x/sys/unix's ioctl wrapper, used alongside x/term's raw-mode
// switch for the low-level fd control SPEC_FULL.md §2.B calls for.
func terminalSize(fd int) (rows, cols int, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Row), int(ws.Col), nil
}

// pollStdin reports whether fd has a byte ready within timeout, using
// creack/goselect's wrapper around select(2) so the read loop can also
// service a -serial link without blocking indefinitely on terminal input.
func pollStdin(fd int, timeout syscall.Timeval) (bool, error) {
	fds := goselect.NewFDSet()
	fds.Zero()
	fds.Set(uintptr(fd))
	n, err := goselect.Select(fd+1, fds, nil, nil, &timeout)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
