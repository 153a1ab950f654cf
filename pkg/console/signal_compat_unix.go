//go:build !windows
// +build !windows

package console

import (
	"os"
	"os/signal"
	"syscall"
)

// signalsToCapture returns the signals that trigger terminal restoration on
// Unix-like systems.
func signalsToCapture() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
	}
}

// resizeSignal returns the terminal resize signal (SIGWINCH).
func resizeSignal() os.Signal {
	return syscall.SIGWINCH
}

// reRaiseSignal re-raises a signal so the default handler can run.
func reRaiseSignal(sig os.Signal) {
	signal.Reset(sig)
	syscall.Kill(syscall.Getpid(), sig.(syscall.Signal))
}

// setNonblock toggles O_NONBLOCK on a raw descriptor. The probe and the read
// loop use it so reads can be bounded without giving the descriptor to the
// runtime poller.
func setNonblock(fd int, nonblock bool) error {
	return syscall.SetNonblock(fd, nonblock)
}
