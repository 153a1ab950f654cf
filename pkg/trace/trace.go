// Package trace records raw terminal input with timing and replays it
// deterministically through the decode pipeline. A recorded trace is the
// ground truth for debugging decode problems reported from terminals we
// cannot reproduce locally.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/alantheprice/terminput/pkg/console"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Frame is one raw read from the terminal: the bytes delivered and the gap
// since the previous read. Data marshals as base64, so control bytes survive
// the JSON encoding.
type Frame struct {
	DelayMs int64  `json:"delay_ms"`
	Data    []byte `json:"data"`
}

// Writer records frames as JSON lines. It implements io.Writer so it can tap
// a session's raw input stream directly.
type Writer struct {
	mu   sync.Mutex
	out  io.Writer
	last time.Time
	now  func() time.Time
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, now: time.Now}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var delay int64
	if !w.last.IsZero() {
		delay = now.Sub(w.last).Milliseconds()
	}
	w.last = now

	frame := Frame{DelayMs: delay, Data: append([]byte(nil), p...)}
	b, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	if _, err := w.out.Write(append(b, '\n')); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadFrames parses a recorded trace.
func ReadFrames(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)
	// Paste frames can be large
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// ReplayOptions mirror the live session's decoder knobs. Zero values take
// the same defaults the session uses.
type ReplayOptions struct {
	Extended        bool
	EscTimeout      time.Duration
	BackslashWindow time.Duration
	DragIdle        time.Duration
}

// Replay feeds frames through a fresh pipeline on a simulated clock, so the
// same trace always yields the same events regardless of host timing.
func Replay(frames []Frame, opts ReplayOptions) []console.KeyEvent {
	clock := console.NewSimClock()
	dispatcher := console.NewDispatcher()
	var events []console.KeyEvent
	dispatcher.Subscribe(func(ev console.KeyEvent) {
		events = append(events, ev)
	})
	decoder := console.NewDecoder(dispatcher, console.DecoderOptions{
		Clock:           clock,
		BackslashWindow: opts.BackslashWindow,
		DragIdle:        opts.DragIdle,
	})
	decoder.SetExtendedProtocol(opts.Extended)
	scanner := console.NewUnitScanner(clock, opts.EscTimeout, decoder.Feed)

	for _, f := range frames {
		if f.DelayMs > 0 {
			clock.Advance(time.Duration(f.DelayMs) * time.Millisecond)
		}
		scanner.Write(f.Data)
	}
	// Let pending windows (escape prefix, backslash pairing, drag idle)
	// expire, then flush whatever is still in flight.
	clock.Advance(time.Second)
	scanner.Flush()
	decoder.Flush()
	return events
}

// FormatEvents renders events one per line in the stable textual form used
// for trace verification.
func FormatEvents(events []console.KeyEvent) string {
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s %q\n", ev.String(), ev.Sequence)
	}
	return b.String()
}

// Verify compares a replay rendering against an expected rendering and
// returns a readable diff when they differ.
func Verify(got, want string) (bool, string) {
	if got == want {
		return true, ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(want, got, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return false, dmp.DiffPrettyText(diffs)
}
