package console

import (
	"sync"
	"time"
	"unicode/utf8"
)

const defaultEscTimeout = 50 * time.Millisecond

// UnitScanner segments the raw byte stream into the units the decoder
// consumes: complete escape sequences, single control bytes, and text runs.
// Text arriving in one delivery stays one unit, which is what lets the
// decoder recognize drag bursts and backslash+Enter gestures; typed input
// still arrives one byte per read. A lone ESC is resolved by timeout, since
// nothing else distinguishes the Escape key from the start of a sequence.
type UnitScanner struct {
	mu         sync.Mutex
	clock      Clock
	escTimeout time.Duration
	emit       func(string)

	esc      []byte
	escTimer Timer
	run      []byte
}

// NewUnitScanner creates a scanner delivering units to emit in input order.
// emit runs synchronously on the writing (or timer) goroutine.
func NewUnitScanner(clock Clock, escTimeout time.Duration, emit func(string)) *UnitScanner {
	if clock == nil {
		clock = SystemClock()
	}
	if escTimeout <= 0 {
		escTimeout = defaultEscTimeout
	}
	return &UnitScanner{clock: clock, escTimeout: escTimeout, emit: emit}
}

// Write consumes one raw delivery from the terminal. It always accepts the
// whole slice.
func (s *UnitScanner) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range p {
		s.scanByteLocked(b)
	}
	// Hold back only a trailing partial rune; everything else ships now.
	s.flushRunLocked(false)
	return len(p), nil
}

// Flush force-emits anything still buffered: a partial rune, or a pending
// escape prefix. Called on session teardown.
func (s *UnitScanner) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushRunLocked(true)
	if len(s.esc) > 0 {
		s.cancelEscTimerLocked()
		s.emit(string(s.esc))
		s.esc = s.esc[:0]
	}
}

func (s *UnitScanner) scanByteLocked(b byte) {
	if len(s.esc) > 0 {
		s.scanEscByteLocked(b)
		return
	}
	if b == 0x1b {
		s.flushRunLocked(true)
		s.esc = append(s.esc, b)
		s.armEscTimerLocked()
		return
	}
	if b < 0x20 || b == 0x7f {
		s.flushRunLocked(true)
		s.emit(string(rune(b)))
		return
	}
	s.run = append(s.run, b)
}

func (s *UnitScanner) scanEscByteLocked(b byte) {
	if b == 0x1b {
		// A fresh ESC supersedes whatever was pending.
		s.emit(string(s.esc))
		s.esc = append(s.esc[:0], b)
		s.armEscTimerLocked()
		return
	}
	s.esc = append(s.esc, b)

	if len(s.esc) == 2 {
		if b == '[' || b == 'O' {
			s.armEscTimerLocked()
			return
		}
		// Two-byte unit: Alt+printable, ESC+CR, ESC+LF, or junk the
		// decoder classifies as it sees fit.
		s.finishEscLocked()
		return
	}

	switch s.esc[1] {
	case '[':
		switch {
		case b >= 0x40 && b <= 0x7e:
			s.finishEscLocked()
		case b >= 0x20 && b <= 0x3f:
			// Parameter or intermediate byte.
			s.armEscTimerLocked()
		default:
			// Control byte inside a sequence: malformed. Ship what we
			// have and reprocess the byte on its own.
			s.cancelEscTimerLocked()
			s.emit(string(s.esc[:len(s.esc)-1]))
			s.esc = s.esc[:0]
			s.scanByteLocked(b)
		}
	case 'O':
		s.finishEscLocked()
	}
}

func (s *UnitScanner) finishEscLocked() {
	s.cancelEscTimerLocked()
	s.emit(string(s.esc))
	s.esc = s.esc[:0]
}

func (s *UnitScanner) armEscTimerLocked() {
	if s.escTimer != nil {
		s.escTimer.Stop()
	}
	s.escTimer = s.clock.AfterFunc(s.escTimeout, s.onEscTimeout)
}

func (s *UnitScanner) cancelEscTimerLocked() {
	if s.escTimer != nil {
		s.escTimer.Stop()
		s.escTimer = nil
	}
}

// onEscTimeout resolves a stalled escape prefix: most commonly a lone ESC,
// meaning the user pressed the Escape key.
func (s *UnitScanner) onEscTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.esc) == 0 {
		return
	}
	s.escTimer = nil
	s.emit(string(s.esc))
	s.esc = s.esc[:0]
}

// flushRunLocked emits the accumulated text run. Unless forced, a trailing
// incomplete UTF-8 sequence stays buffered so a rune split across reads is
// delivered whole.
func (s *UnitScanner) flushRunLocked(force bool) {
	if len(s.run) == 0 {
		return
	}
	keep := 0
	if !force {
		keep = incompleteRuneTail(s.run)
	}
	cut := len(s.run) - keep
	if cut == 0 {
		return
	}
	s.emit(string(s.run[:cut]))
	s.run = append(s.run[:0], s.run[cut:]...)
}

// incompleteRuneTail reports how many trailing bytes form the prefix of an
// unfinished multibyte rune, or zero when the buffer ends on a boundary.
func incompleteRuneTail(p []byte) int {
	i := len(p) - 1
	for i >= 0 && len(p)-i < utf8.UTFMax && p[i]&0xc0 == 0x80 {
		i--
	}
	if i < 0 || len(p)-i > utf8.UTFMax {
		return 0
	}
	var need int
	switch b := p[i]; {
	case b < 0x80:
		return 0
	case b&0xe0 == 0xc0:
		need = 2
	case b&0xf0 == 0xe0:
		need = 3
	case b&0xf8 == 0xf0:
		need = 4
	default:
		return 0
	}
	if have := len(p) - i; have < need {
		return have
	}
	return 0
}
