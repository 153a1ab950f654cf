package console

import (
	"bytes"
	"errors"
	"io"
	"os"
	"syscall"
	"time"
)

const (
	defaultDetectTimeout = 500 * time.Millisecond
	detectPollInterval   = 5 * time.Millisecond
)

// CapabilityFlags is the one-shot detection result. Written once after the
// probe completes, read-only for the rest of the session.
type CapabilityFlags struct {
	ExtendedProtocol bool
	KittyFlags       int
}

// DetectResult carries the probe outcome plus any bytes that arrived past
// the replies (the user may type while the probe is in flight); the caller
// feeds those back into the normal input path.
type DetectResult struct {
	Caps     CapabilityFlags
	Leftover []byte
}

// DetectExtendedProtocol probes the terminal for kitty keyboard protocol
// support: it writes the kitty capability query followed by a DA1 query as a
// fence, then polls for the replies until the fence answers or the timeout
// expires. Every terminal answers DA1, so a fence reply without a kitty
// reply is a definitive "not supported"; a timeout defaults to disabled.
// The probe never fails the session: on any read error the capability is
// simply reported as absent.
func DetectExtendedProtocol(in *os.File, out io.Writer, timeout time.Duration) DetectResult {
	if timeout <= 0 {
		timeout = defaultDetectTimeout
	}
	var res DetectResult
	if _, err := io.WriteString(out, kittyQuery+primaryAttrQuery); err != nil {
		return res
	}

	deadline := time.Now().Add(timeout)
	if in.SetReadDeadline(deadline) == nil {
		defer in.SetReadDeadline(time.Time{})
	} else if err := setNonblock(int(in.Fd()), true); err == nil {
		defer setNonblock(int(in.Fd()), false)
	}

	var pending []byte
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, err := in.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var done bool
			pending, done = siftProbeReplies(pending, &res)
			if done {
				res.Leftover = append(res.Leftover, pending...)
				return res
			}
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || os.IsTimeout(err) {
				time.Sleep(detectPollInterval)
				continue
			}
			break
		}
		if n == 0 {
			time.Sleep(detectPollInterval)
		}
	}
	res.Leftover = append(res.Leftover, pending...)
	return res
}

// siftProbeReplies separates probe replies from interleaved user input.
// It returns the unconsumed tail (a possibly incomplete reply prefix) and
// whether the DA1 fence arrived.
func siftProbeReplies(pending []byte, res *DetectResult) ([]byte, bool) {
	i := 0
	for i < len(pending) {
		if pending[i] != 0x1b {
			res.Leftover = append(res.Leftover, pending[i])
			i++
			continue
		}
		seq, status := scanProbeCSI(pending[i:])
		if status == parseIncomplete {
			return pending[i:], false
		}
		if status == parseInvalid {
			res.Leftover = append(res.Leftover, pending[i])
			i++
			continue
		}
		isQueryReply := bytes.HasPrefix(seq, []byte("\x1b[?"))
		switch {
		case isQueryReply && seq[len(seq)-1] == 'u':
			res.Caps.ExtendedProtocol = true
			res.Caps.KittyFlags = parseProbeFlags(seq)
		case isQueryReply && seq[len(seq)-1] == 'c':
			return pending[i+len(seq):], true
		default:
			// Some other terminal report; pass it through untouched.
			res.Leftover = append(res.Leftover, seq...)
		}
		i += len(seq)
	}
	return nil, false
}

// scanProbeCSI extracts one complete CSI sequence from the front of p,
// which must start with ESC.
func scanProbeCSI(p []byte) ([]byte, parseStatus) {
	if len(p) == 1 {
		return nil, parseIncomplete
	}
	if p[1] != '[' {
		return nil, parseInvalid
	}
	for i := 2; i < len(p); i++ {
		switch {
		case p[i] >= 0x40 && p[i] <= 0x7e:
			return p[:i+1], parseOK
		case p[i] >= 0x20 && p[i] <= 0x3f:
			// parameter byte
		default:
			return nil, parseInvalid
		}
	}
	return nil, parseIncomplete
}

// parseProbeFlags pulls the flag bitmask out of a kitty reply \x1b[?<flags>u.
func parseProbeFlags(seq []byte) int {
	flags := 0
	for _, b := range seq[3:] {
		if b < '0' || b > '9' {
			break
		}
		flags = flags*10 + int(b-'0')
	}
	return flags
}
