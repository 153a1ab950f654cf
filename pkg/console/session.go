package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const readPollInterval = 10 * time.Millisecond

// InterceptMode selects where bracketed-paste framing is detected.
type InterceptMode int

const (
	// InterceptAuto picks raw interception for terminal stacks known to
	// mangle paste framing at the unit level (Cygwin/MSYS), keypress
	// elsewhere.
	InterceptAuto InterceptMode = iota
	// InterceptKeypress runs every byte through the unit scanner; the
	// decoder recognizes paste markers as ordinary units.
	InterceptKeypress
	// InterceptRaw scans raw bytes for paste markers before segmentation
	// and routes paste bodies verbatim into the decoder's capture, so
	// paste content is preserved byte for byte.
	InterceptRaw
)

func (m InterceptMode) String() string {
	switch m {
	case InterceptKeypress:
		return "keypress"
	case InterceptRaw:
		return "raw"
	default:
		return "auto"
	}
}

// SessionOptions configure a terminal session. Zero values give a live
// session on stdin/stdout with defaults.
type SessionOptions struct {
	Input  *os.File
	Output io.Writer
	Mode   InterceptMode

	// DisableExtended skips protocol detection entirely; ForceExtended
	// assumes support without probing (for terminals that lie to DA1).
	DisableExtended bool
	ForceExtended   bool
	DetectTimeout   time.Duration

	EscTimeout      time.Duration
	BackslashWindow time.Duration
	DragIdle        time.Duration

	Clock  Clock
	Logger *log.Logger

	// RawTap observes every raw byte read from the terminal, before any
	// decoding. Used by trace recording.
	RawTap io.Writer

	// OnResize, when set, is invoked with the new terminal size on
	// SIGWINCH.
	OnResize func(width, height int)
}

// Session owns the terminal lifecycle: raw mode, paste/focus reporting,
// protocol detection, the read loop, and guaranteed restoration on every
// exit path including signals.
type Session struct {
	opts       SessionOptions
	dispatcher *Dispatcher
	decoder    *Decoder
	scanner    *UnitScanner

	fd        int
	oldState  *term.State
	caps      CapabilityFlags
	intercept InterceptMode

	stopChan  chan struct{}
	doneChan  chan struct{}
	sigChan   chan os.Signal
	winchChan chan os.Signal
	started   bool
	stopOnce  sync.Once

	// Raw-interception scan state: whether the byte scanner is inside a
	// paste, and held-back bytes that may open a split marker.
	rawInPaste bool
	rawTail    []byte
}

// NewSession builds a session that emits decoded events through dispatcher.
func NewSession(dispatcher *Dispatcher, opts SessionOptions) *Session {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	s := &Session{
		opts:       opts,
		dispatcher: dispatcher,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		sigChan:    make(chan os.Signal, 1),
	}
	s.decoder = NewDecoder(dispatcher, DecoderOptions{
		Clock:           opts.Clock,
		BackslashWindow: opts.BackslashWindow,
		DragIdle:        opts.DragIdle,
		Logger:          opts.Logger,
	})
	s.scanner = NewUnitScanner(opts.Clock, opts.EscTimeout, s.decoder.Feed)
	return s
}

// Decoder exposes the session's decoder, mainly for tests and replay.
func (s *Session) Decoder() *Decoder { return s.decoder }

// Caps reports the detection result. Valid after Start returns.
func (s *Session) Caps() CapabilityFlags { return s.caps }

// Intercept reports the resolved interception mode. Valid after Start.
func (s *Session) Intercept() InterceptMode { return s.intercept }

// Done is closed when the read loop exits (terminal EOF or Stop).
func (s *Session) Done() <-chan struct{} { return s.doneChan }

// Start switches the terminal to raw mode, enables bracketed-paste and focus
// reporting, runs protocol detection, and launches the read loop.
func (s *Session) Start() error {
	fd := int(s.opts.Input.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("input is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	s.fd = fd
	s.oldState = oldState

	if _, err := io.WriteString(s.opts.Output, bracketedPasteOn+focusReportingOn); err != nil {
		term.Restore(fd, oldState)
		return fmt.Errorf("enable paste reporting: %w", err)
	}

	var leftover []byte
	if !s.opts.DisableExtended {
		res := DetectExtendedProtocol(s.opts.Input, s.opts.Output, s.opts.DetectTimeout)
		s.caps = res.Caps
		leftover = res.Leftover
	}
	if s.opts.ForceExtended {
		s.caps.ExtendedProtocol = true
	}
	if s.caps.ExtendedProtocol {
		if _, err := io.WriteString(s.opts.Output, kittyEnableSeq(kittyFlagDisambig)); err != nil {
			term.Restore(fd, oldState)
			return fmt.Errorf("enable keyboard protocol: %w", err)
		}
	}
	s.decoder.SetExtendedProtocol(s.caps.ExtendedProtocol)
	s.resolveIntercept()

	signal.Notify(s.sigChan, signalsToCapture()...)
	go s.watchSignals()
	if rs := resizeSignal(); rs != nil && s.opts.OnResize != nil {
		s.winchChan = make(chan os.Signal, 1)
		signal.Notify(s.winchChan, rs)
		go s.watchResize()
	}

	s.started = true
	go s.readLoop(leftover)

	if s.opts.Logger != nil {
		s.opts.Logger.Printf("session started: extended=%v intercept=%s",
			s.caps.ExtendedProtocol, s.intercept)
	}
	return nil
}

func (s *Session) resolveIntercept() {
	if s.opts.Mode != InterceptAuto {
		s.intercept = s.opts.Mode
		return
	}
	if isatty.IsCygwinTerminal(s.opts.Input.Fd()) {
		s.intercept = InterceptRaw
		return
	}
	s.intercept = InterceptKeypress
}

// Stop restores all terminal state. It is idempotent and safe to call from
// any goroutine except a dispatcher handler (the read loop delivers events
// and Stop waits for it).
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.started {
			<-s.doneChan
		}
		signal.Stop(s.sigChan)
		close(s.sigChan)
		if s.winchChan != nil {
			signal.Stop(s.winchChan)
			close(s.winchChan)
		}

		// Deliver everything still buffered rather than dropping it.
		if len(s.rawTail) > 0 {
			if s.rawInPaste {
				s.decoder.Feed(string(s.rawTail))
			} else {
				s.scanner.Write(s.rawTail)
			}
			s.rawTail = nil
		}
		s.scanner.Flush()
		s.decoder.Flush()

		if s.caps.ExtendedProtocol {
			io.WriteString(s.opts.Output, kittyPop)
		}
		io.WriteString(s.opts.Output, focusReportingOff+bracketedPasteOff)
		if s.oldState != nil {
			term.Restore(s.fd, s.oldState)
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Printf("session stopped")
		}
	})
}

func (s *Session) watchSignals() {
	sig, ok := <-s.sigChan
	if !ok {
		return
	}
	if s.opts.Logger != nil {
		s.opts.Logger.Printf("restoring terminal on signal %v", sig)
	}
	s.Stop()
	reRaiseSignal(sig)
}

func (s *Session) watchResize() {
	for range s.winchChan {
		if w, h, err := term.GetSize(s.fd); err == nil {
			s.opts.OnResize(w, h)
		}
	}
}

func (s *Session) readLoop(initial []byte) {
	defer close(s.doneChan)
	if len(initial) > 0 {
		s.route(initial)
	}
	// Pollable inputs (ptys, pipes) honor read deadlines, which bound each
	// read directly. Plain stdin does not, so fall back to O_NONBLOCK
	// polling there.
	usingDeadline := s.opts.Input.SetReadDeadline(time.Now().Add(readPollInterval)) == nil
	if usingDeadline {
		defer s.opts.Input.SetReadDeadline(time.Time{})
	} else {
		setNonblock(s.fd, true)
		defer setNonblock(s.fd, false)
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}
		if usingDeadline {
			s.opts.Input.SetReadDeadline(time.Now().Add(readPollInterval))
		}
		n, err := s.opts.Input.Read(buf)
		if n > 0 {
			if s.opts.RawTap != nil {
				s.opts.RawTap.Write(buf[:n])
			}
			s.route(buf[:n])
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || os.IsTimeout(err) {
				if usingDeadline {
					continue
				}
				select {
				case <-s.stopChan:
					return
				case <-time.After(readPollInterval):
				}
				continue
			}
			// EOF or a dead descriptor ends the session's input.
			return
		}
		if n == 0 {
			time.Sleep(readPollInterval)
		}
	}
}

// route hands one raw delivery to the decode pipeline according to the
// interception mode. Paste handling itself lives only in the decoder; raw
// mode merely decides marker boundaries at the byte level.
func (s *Session) route(chunk []byte) {
	if s.intercept != InterceptRaw {
		s.scanner.Write(chunk)
		return
	}

	data := chunk
	if len(s.rawTail) > 0 {
		data = append(s.rawTail, chunk...)
		s.rawTail = nil
	}
	for len(data) > 0 {
		if s.rawInPaste {
			idx := bytes.Index(data, []byte(pasteEndMarker))
			if idx < 0 {
				keep := markerTail(data)
				if body := data[:len(data)-keep]; len(body) > 0 {
					s.decoder.Feed(string(body))
				}
				s.rawTail = append([]byte(nil), data[len(data)-keep:]...)
				return
			}
			if idx > 0 {
				s.decoder.Feed(string(data[:idx]))
			}
			s.decoder.Feed(pasteEndMarker)
			s.rawInPaste = false
			data = data[idx+len(pasteEndMarker):]
			continue
		}

		idx := bytes.Index(data, []byte(pasteStartMarker))
		if idx < 0 {
			keep := markerTail(data)
			if pre := data[:len(data)-keep]; len(pre) > 0 {
				s.scanner.Write(pre)
			}
			s.rawTail = append([]byte(nil), data[len(data)-keep:]...)
			return
		}
		if idx > 0 {
			s.scanner.Write(data[:idx])
		}
		s.scanner.Write([]byte(pasteStartMarker))
		s.rawInPaste = true
		data = data[idx+len(pasteStartMarker):]
	}
}

// markerTail reports the longest data suffix that is a proper prefix of a
// paste marker, so markers split across reads are never missed.
func markerTail(data []byte) int {
	max := len(pasteStartMarker) - 1
	if len(data) < max {
		max = len(data)
	}
	for n := max; n > 0; n-- {
		tail := data[len(data)-n:]
		if bytes.HasPrefix([]byte(pasteStartMarker), tail) || bytes.HasPrefix([]byte(pasteEndMarker), tail) {
			return n
		}
	}
	return 0
}
