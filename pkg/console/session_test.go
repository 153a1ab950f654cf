package console

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
)

// openPTY returns a master/slave pair for driving a session like a real
// terminal, closed when the test ends.
func openPTY(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	return ptmx, tty
}

func readExact(t *testing.T, f *os.File, n int) string {
	t.Helper()
	f.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatalf("Failed reading %d bytes from pty: %v", n, err)
	}
	return string(buf)
}

func waitEvent(t *testing.T, events <-chan KeyEvent) KeyEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return KeyEvent{}
	}
}

func TestSessionLifecycle(t *testing.T) {
	ptmx, tty := openPTY(t)

	dispatcher := NewDispatcher()
	events := make(chan KeyEvent, 16)
	dispatcher.Subscribe(func(ev KeyEvent) { events <- ev })

	s := NewSession(dispatcher, SessionOptions{
		Input:           tty,
		Output:          tty,
		Mode:            InterceptKeypress,
		DisableExtended: true,
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	// Start writes the paste and focus reporting toggles to the terminal
	want := bracketedPasteOn + focusReportingOn
	if got := readExact(t, ptmx, len(want)); got != want {
		t.Errorf("Expected reporting toggles %q on start, got %q", want, got)
	}
	if s.Caps().ExtendedProtocol {
		t.Error("Expected extended protocol disabled when detection is skipped")
	}
	if s.Intercept() != InterceptKeypress {
		t.Errorf("Expected keypress interception, got %v", s.Intercept())
	}

	// Simulated keystrokes flow through to subscribers
	ptmx.WriteString("\r")
	ev := waitEvent(t, events)
	if ev.Name != "return" || ev.Shift {
		t.Errorf("Expected plain return, got %+v", ev)
	}

	ptmx.WriteString("\x1b[A")
	ev = waitEvent(t, events)
	if ev.Name != "up" {
		t.Errorf("Expected up, got %+v", ev)
	}

	s.Stop()
	want = focusReportingOff + bracketedPasteOff
	if got := readExact(t, ptmx, len(want)); got != want {
		t.Errorf("Expected reporting toggles %q on stop, got %q", want, got)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Expected Done to be closed after Stop")
	}

	// Stop is idempotent
	s.Stop()
}

func TestSessionPasteDelivery(t *testing.T) {
	ptmx, tty := openPTY(t)

	dispatcher := NewDispatcher()
	events := make(chan KeyEvent, 16)
	dispatcher.Subscribe(func(ev KeyEvent) { events <- ev })

	s := NewSession(dispatcher, SessionOptions{
		Input:           tty,
		Output:          io.Discard,
		Mode:            InterceptKeypress,
		DisableExtended: true,
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	ptmx.WriteString("\x1b[200~multi\r\nline\x1b[201~")
	ev := waitEvent(t, events)
	if !ev.Paste || ev.Sequence != "multi\nline" {
		t.Errorf("Expected normalized paste event, got %+v", ev)
	}
}

func TestSessionRawInterceptSplitMarker(t *testing.T) {
	ptmx, tty := openPTY(t)

	dispatcher := NewDispatcher()
	events := make(chan KeyEvent, 16)
	dispatcher.Subscribe(func(ev KeyEvent) { events <- ev })

	s := NewSession(dispatcher, SessionOptions{
		Input:           tty,
		Output:          io.Discard,
		Mode:            InterceptRaw,
		DisableExtended: true,
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	if s.Intercept() != InterceptRaw {
		t.Fatalf("Expected raw interception, got %v", s.Intercept())
	}

	// End marker split across two deliveries: the held-back tail must not
	// leak into the paste body
	ptmx.WriteString("\x1b[200~data\x1b[20")
	time.Sleep(50 * time.Millisecond)
	ptmx.WriteString("1~x")

	ev := waitEvent(t, events)
	if !ev.Paste || ev.Sequence != "data" {
		t.Errorf("Expected paste 'data', got %+v", ev)
	}
	ev = waitEvent(t, events)
	if ev.Name != "x" {
		t.Errorf("Expected trailing 'x' keystroke, got %+v", ev)
	}
}

func TestSessionStopFlushesBufferedPaste(t *testing.T) {
	ptmx, tty := openPTY(t)

	dispatcher := NewDispatcher()
	events := make(chan KeyEvent, 16)
	dispatcher.Subscribe(func(ev KeyEvent) { events <- ev })

	s := NewSession(dispatcher, SessionOptions{
		Input:           tty,
		Output:          io.Discard,
		Mode:            InterceptKeypress,
		DisableExtended: true,
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	// A paste with no end marker stays buffered until teardown
	ptmx.WriteString("\x1b[200~partial")
	deadline := time.Now().Add(2 * time.Second)
	for !s.Decoder().PasteActive() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !s.Decoder().PasteActive() {
		t.Fatal("Expected paste capture to become active")
	}

	s.Stop()
	ev := waitEvent(t, events)
	if !ev.Paste || ev.Sequence != "partial" {
		t.Errorf("Expected teardown to flush buffered paste, got %+v", ev)
	}
}

func TestSessionDetectsExtendedProtocol(t *testing.T) {
	ptmx, tty := openPTY(t)

	dispatcher := NewDispatcher()
	events := make(chan KeyEvent, 16)
	dispatcher.Subscribe(func(ev KeyEvent) { events <- ev })

	s := NewSession(dispatcher, SessionOptions{
		Input:         tty,
		Output:        tty,
		Mode:          InterceptKeypress,
		DetectTimeout: 2 * time.Second,
	})

	// Answer the capability probe the way a supporting terminal would
	go func() {
		ptmx.SetReadDeadline(time.Now().Add(2 * time.Second))
		seen := ""
		buf := make([]byte, 64)
		for !strings.Contains(seen, primaryAttrQuery) {
			n, err := ptmx.Read(buf)
			if err != nil {
				return
			}
			seen += string(buf[:n])
		}
		ptmx.WriteString("\x1b[?1u\x1b[?1;2c")
	}()

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if !s.Caps().ExtendedProtocol {
		t.Fatal("Expected extended protocol to be detected")
	}
	if s.Caps().KittyFlags != 1 {
		t.Errorf("Expected kitty flags 1, got %d", s.Caps().KittyFlags)
	}

	// The enable sequence goes out once detection confirms support
	if got := readExact(t, ptmx, len("\x1b[>1u")); got != "\x1b[>1u" {
		t.Errorf("Expected protocol enable sequence, got %q", got)
	}

	// Protocol-encoded keys decode through the live session
	ptmx.WriteString("\x1b[97;5u")
	ev := waitEvent(t, events)
	if ev.Name != "a" || !ev.Ctrl {
		t.Errorf("Expected ctrl+a, got %+v", ev)
	}

	s.Stop()
	want := kittyPop + focusReportingOff + bracketedPasteOff
	if got := readExact(t, ptmx, len(want)); got != want {
		t.Errorf("Expected protocol pop before reporting toggles, got %q", got)
	}
}

func TestSessionStartRejectsNonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	s := NewSession(NewDispatcher(), SessionOptions{Input: r, Output: io.Discard})
	if err := s.Start(); err == nil {
		t.Error("Expected start to fail on a non-terminal input")
		s.Stop()
	}
}

func TestInterceptModeString(t *testing.T) {
	if InterceptAuto.String() != "auto" {
		t.Errorf("Expected 'auto', got %q", InterceptAuto.String())
	}
	if InterceptKeypress.String() != "keypress" {
		t.Errorf("Expected 'keypress', got %q", InterceptKeypress.String())
	}
	if InterceptRaw.String() != "raw" {
		t.Errorf("Expected 'raw', got %q", InterceptRaw.String())
	}
}

func TestMarkerTail(t *testing.T) {
	cases := []struct {
		data string
		want int
	}{
		{"", 0},
		{"data", 0},
		{"data\x1b", 1},
		{"data\x1b[", 2},
		{"data\x1b[2", 3},
		{"data\x1b[20", 4},
		{"data\x1b[200", 5},
		{"data\x1b[201", 5},
		{"\x1b[", 2},
		{"\x1b[2x", 0},
		{"data~", 0},
	}
	for _, tc := range cases {
		if got := markerTail([]byte(tc.data)); got != tc.want {
			t.Errorf("markerTail(%q): expected %d, got %d", tc.data, tc.want, got)
		}
	}
}
