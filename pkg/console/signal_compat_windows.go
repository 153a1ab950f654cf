//go:build windows
// +build windows

package console

import "os"

// signalsToCapture returns the signals that trigger terminal restoration on
// Windows. Only os.Interrupt is deliverable here.
func signalsToCapture() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// resizeSignal returns nil on Windows since SIGWINCH is not available.
func resizeSignal() os.Signal { return nil }

// reRaiseSignal cannot re-raise POSIX signals on Windows; exit after cleanup.
func reRaiseSignal(sig os.Signal) { os.Exit(1) }

// setNonblock is a no-op on Windows; reads are bounded by the probe timeout
// logic instead.
func setNonblock(fd int, nonblock bool) error {
	return nil
}
