package console

import (
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// extBuf ceiling: a malformed or adversarial stream may never
	// terminate a sequence, so growth past this forces a reset.
	maxExtendedBuffer = 256

	defaultBackslashWindow = 35 * time.Millisecond
	defaultDragIdle        = 100 * time.Millisecond
)

// DecoderOptions tune the decoder; zero values pick the defaults used by a
// live session.
type DecoderOptions struct {
	Clock           Clock
	BackslashWindow time.Duration
	DragIdle        time.Duration
	Logger          *log.Logger
}

// Decoder is the single owner of all mutable decoding state. It consumes one
// raw unit at a time, consults the sequence classifiers, mutates its buffers,
// and emits zero or more KeyEvents through the dispatcher. Malformed input
// never produces an error: the worst case is silent discard after a bounded
// accumulator overflows.
type Decoder struct {
	mu         sync.Mutex
	dispatcher *Dispatcher
	clock      Clock
	logger     *log.Logger

	backslashWindow time.Duration
	dragIdle        time.Duration

	extended bool

	pasteActive bool
	pasteBuf    strings.Builder

	dragActive bool
	dragBuf    strings.Builder
	dragTimer  Timer

	extBuf string

	backslashPending bool
	backslashTimer   Timer
}

// NewDecoder creates a decoder emitting through dispatcher and registers its
// buffer reset with the dispatcher's clear hooks.
func NewDecoder(dispatcher *Dispatcher, opts DecoderOptions) *Decoder {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.BackslashWindow <= 0 {
		opts.BackslashWindow = defaultBackslashWindow
	}
	if opts.DragIdle <= 0 {
		opts.DragIdle = defaultDragIdle
	}
	d := &Decoder{
		dispatcher:      dispatcher,
		clock:           opts.Clock,
		logger:          opts.Logger,
		backslashWindow: opts.BackslashWindow,
		dragIdle:        opts.DragIdle,
	}
	dispatcher.RegisterClearer(d.Clear)
	return d
}

// SetExtendedProtocol records the detection result. Set once, before input
// starts flowing.
func (d *Decoder) SetExtendedProtocol(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extended = enabled
}

// ExtendedProtocol reports the capability flag.
func (d *Decoder) ExtendedProtocol() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extended
}

// PasteActive reports whether a paste capture is in progress.
func (d *Decoder) PasteActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pasteActive
}

// Feed processes one raw unit. Events are dispatched after the decoder lock
// is released, in the order they were produced.
func (d *Decoder) Feed(unit string) {
	d.mu.Lock()
	var events []KeyEvent
	d.processLocked(&events, unit)
	d.mu.Unlock()

	for _, ev := range events {
		d.dispatcher.Dispatch(ev)
	}
}

// processLocked applies the decode precedence. First match wins; the order
// is load-bearing and mirrors the session's observable behavior exactly.
func (d *Decoder) processLocked(out *[]KeyEvent, unit string) {
	if unit == "" {
		return
	}

	// 1. Focus reports carry no input.
	if in, ou := ClassifyFocusEvent(unit); in || ou {
		return
	}

	// 2. Paste framing.
	isStart, isEnd := ClassifyPasteBoundary(unit)
	if isStart {
		d.flushDragLocked(out)
		d.pasteActive = true
		d.pasteBuf.Reset()
		if rest := unit[len(pasteStartMarker):]; rest != "" {
			d.pasteBuf.WriteString(rest)
		}
		return
	}
	if isEnd {
		rest := unit[len(pasteEndMarker):]
		if d.pasteActive {
			text := NormalizePastedText(d.pasteBuf.String())
			d.pasteActive = false
			d.pasteBuf.Reset()
			*out = append(*out, KeyEvent{Sequence: text, Paste: true})
		}
		if rest != "" {
			d.processLocked(out, rest)
		}
		return
	}

	// 3. Inside a paste everything is content, byte for byte. The raw
	// interrupt byte is exempt so step 11 stays reachable mid-capture.
	if d.pasteActive && !isCtrlC(unit) {
		d.pasteBuf.WriteString(unit)
		return
	}

	// 4. Drag capture: terminals send dropped paths as a burst with no end
	// marker, so completion is an idle timeout after the last fragment.
	// Same interrupt exemption as paste capture.
	if (d.dragActive || ClassifyDragStart(unit)) && !isCtrlC(unit) {
		d.dragActive = true
		d.dragBuf.WriteString(unit)
		if d.dragTimer != nil {
			d.dragTimer.Stop()
		}
		d.dragTimer = d.clock.AfterFunc(d.dragIdle, d.onDragTimeout)
		return
	}

	// 5. Alt+letter arrives as ESC-prefixed printable; complete on its own.
	if c, ok := MapAltKeyCharacter(unit); ok {
		ev := Classify(string(c))
		ev.Meta = true
		ev.Sequence = unit
		*out = append(*out, ev)
		return
	}

	// 6. Return resolves a pending backslash into Shift+Enter.
	if d.backslashPending && isReturnUnit(unit) {
		d.cancelBackslashLocked()
		*out = append(*out, KeyEvent{Name: "return", Sequence: unit, Shift: true})
		return
	}

	// 7. ESC+CR / ESC+LF: alternate terminal encoding of the same gesture.
	if unit == "\x1b\r" || unit == "\x1b\n" {
		*out = append(*out, KeyEvent{Name: "return", Sequence: unit, Shift: true})
		return
	}

	// 8. A lone backslash might be the start of backslash+Enter; hold it
	// until the window closes.
	if unit == "\\" && !d.backslashPending {
		d.backslashPending = true
		d.backslashTimer = d.clock.AfterFunc(d.backslashWindow, d.onBackslashTimeout)
		return
	}

	// 9. Anything else supersedes the pending backslash: flush it as a
	// literal, then run the current unit through the pipeline again.
	if d.backslashPending {
		d.cancelBackslashLocked()
		*out = append(*out, Classify("\\"))
		d.processLocked(out, unit)
		return
	}

	// 10. Extended protocol. Continuation chunks of a split sequence do not
	// start with ESC themselves, so a non-empty accumulator also routes
	// here; the interrupt byte is exempt so step 11 always runs for it.
	if d.extended && (unit[0] == 0x1b || (d.extBuf != "" && !isCtrlC(unit))) {
		d.processExtendedLocked(out, unit)
		return
	}

	// 11. Interrupt clears every buffer before the event goes out, so an
	// interrupt never leaves stale partial state behind.
	if isCtrlC(unit) {
		d.resetLocked()
		*out = append(*out, Classify(unit))
		return
	}

	// 12. Default.
	*out = append(*out, Classify(unit))
}

// processExtendedLocked tries a direct parse first, then falls back to the
// bounded accumulator for sequences split across deliveries.
func (d *Decoder) processExtendedLocked(out *[]KeyEvent, unit string) {
	if d.extBuf == "" {
		if ext, n, st := parseExtendedSequence(unit); st == parseOK && n == len(unit) {
			d.queueParsedLocked(out, ext)
			return
		}
	}
	d.extBuf += unit
	d.drainExtendedLocked(out)
}

// drainExtendedLocked consumes every complete sequence in the accumulator,
// skipping past unparseable prefixes so a junk byte can never wedge the
// decoder.
func (d *Decoder) drainExtendedLocked(out *[]KeyEvent) {
	for d.extBuf != "" {
		ext, n, st := parseExtendedSequence(d.extBuf)
		switch st {
		case parseOK:
			// Consume before queueing: an interrupt resets extBuf, and the
			// safety valve should discard whatever trailed it anyway.
			d.extBuf = d.extBuf[n:]
			d.queueParsedLocked(out, ext)
		case parseIncomplete:
			if len(d.extBuf) > maxExtendedBuffer {
				if d.logger != nil {
					d.logger.Printf("input: discarding %d-byte unterminated escape buffer", len(d.extBuf))
				}
				d.extBuf = ""
			}
			return
		case parseInvalid:
			idx := strings.IndexByte(d.extBuf[1:], 0x1b)
			if idx < 0 {
				d.extBuf = ""
				return
			}
			d.extBuf = d.extBuf[idx+1:]
		}
	}
}

// queueParsedLocked drops release reports and applies the interrupt safety
// valve to extended-encoded Ctrl+C, matching the raw-byte path.
func (d *Decoder) queueParsedLocked(out *[]KeyEvent, ext extendedKey) {
	if ext.Release {
		return
	}
	if ext.Key.Ctrl && ext.Key.Name == "c" {
		d.resetLocked()
	}
	*out = append(*out, ext.Key)
}

func (d *Decoder) onBackslashTimeout() {
	d.mu.Lock()
	if !d.backslashPending {
		d.mu.Unlock()
		return
	}
	d.backslashPending = false
	d.backslashTimer = nil
	ev := Classify("\\")
	d.mu.Unlock()

	d.dispatcher.Dispatch(ev)
}

func (d *Decoder) onDragTimeout() {
	d.mu.Lock()
	if !d.dragActive {
		d.mu.Unlock()
		return
	}
	ev := KeyEvent{Sequence: NormalizePastedText(d.dragBuf.String()), Paste: true}
	d.dragActive = false
	d.dragBuf.Reset()
	d.dragTimer = nil
	d.mu.Unlock()

	d.dispatcher.Dispatch(ev)
}

// Flush emits any in-flight paste or drag buffer as a final paste event and
// cancels all timers. The session controller calls it on teardown so
// buffered input is delivered rather than dropped.
func (d *Decoder) Flush() {
	d.mu.Lock()
	var events []KeyEvent
	if d.pasteActive && d.pasteBuf.Len() > 0 {
		events = append(events, KeyEvent{Sequence: NormalizePastedText(d.pasteBuf.String()), Paste: true})
	}
	d.pasteActive = false
	d.pasteBuf.Reset()
	d.flushDragLocked(&events)
	d.cancelBackslashLocked()
	d.extBuf = ""
	d.mu.Unlock()

	for _, ev := range events {
		d.dispatcher.Dispatch(ev)
	}
}

// Clear resets all decoder state without emitting anything. Registered with
// the dispatcher so external cancellation reaches the buffers.
func (d *Decoder) Clear() {
	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()
}

func (d *Decoder) flushDragLocked(out *[]KeyEvent) {
	if !d.dragActive {
		return
	}
	if d.dragTimer != nil {
		d.dragTimer.Stop()
		d.dragTimer = nil
	}
	if d.dragBuf.Len() > 0 {
		*out = append(*out, KeyEvent{Sequence: NormalizePastedText(d.dragBuf.String()), Paste: true})
	}
	d.dragActive = false
	d.dragBuf.Reset()
}

func (d *Decoder) cancelBackslashLocked() {
	if d.backslashTimer != nil {
		d.backslashTimer.Stop()
		d.backslashTimer = nil
	}
	d.backslashPending = false
}

func (d *Decoder) resetLocked() {
	d.pasteActive = false
	d.pasteBuf.Reset()
	if d.dragTimer != nil {
		d.dragTimer.Stop()
		d.dragTimer = nil
	}
	d.dragActive = false
	d.dragBuf.Reset()
	d.extBuf = ""
	d.cancelBackslashLocked()
}
