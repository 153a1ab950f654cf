package console

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyEvent is the decoded, application-meaningful form of one input unit:
// a keystroke, a paste, or a drag-drop. Name is the semantic identifier
// ("return", "c", "up"); it is empty for raw text and paste events.
// Sequence always carries the raw string that produced the event.
type KeyEvent struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
	Ctrl     bool   `json:"ctrl,omitempty"`
	Meta     bool   `json:"meta,omitempty"`
	Shift    bool   `json:"shift,omitempty"`
	Paste    bool   `json:"paste,omitempty"`
}

// String renders the event for human display, e.g. "ctrl+c" or "shift+return".
func (k KeyEvent) String() string {
	if k.Paste {
		return fmt.Sprintf("paste[%d bytes]", len(k.Sequence))
	}
	var parts []string
	if k.Ctrl {
		parts = append(parts, "ctrl")
	}
	if k.Meta {
		parts = append(parts, "meta")
	}
	if k.Shift {
		parts = append(parts, "shift")
	}
	switch {
	case k.Name != "":
		parts = append(parts, k.Name)
	case k.Sequence != "":
		parts = append(parts, fmt.Sprintf("%q", k.Sequence))
	default:
		parts = append(parts, "?")
	}
	return strings.Join(parts, "+")
}

// legacyKeys maps the fixed escape sequences terminals emit without any
// extended protocol to their semantic keys. Modified variants (ESC[1;5C
// and friends) are handled by the structured parser instead.
var legacyKeys = map[string]KeyEvent{
	"\x1b[A": {Name: "up"},
	"\x1b[B": {Name: "down"},
	"\x1b[C": {Name: "right"},
	"\x1b[D": {Name: "left"},
	"\x1b[H": {Name: "home"},
	"\x1b[F": {Name: "end"},
	"\x1b[Z": {Name: "tab", Shift: true},

	// SS3 variants, sent by terminals in application cursor mode.
	"\x1bOA": {Name: "up"},
	"\x1bOB": {Name: "down"},
	"\x1bOC": {Name: "right"},
	"\x1bOD": {Name: "left"},
	"\x1bOH": {Name: "home"},
	"\x1bOF": {Name: "end"},
	"\x1bOP": {Name: "f1"},
	"\x1bOQ": {Name: "f2"},
	"\x1bOR": {Name: "f3"},
	"\x1bOS": {Name: "f4"},

	"\x1b[1~":  {Name: "home"},
	"\x1b[2~":  {Name: "insert"},
	"\x1b[3~":  {Name: "delete"},
	"\x1b[4~":  {Name: "end"},
	"\x1b[5~":  {Name: "pageup"},
	"\x1b[6~":  {Name: "pagedown"},
	"\x1b[11~": {Name: "f1"},
	"\x1b[12~": {Name: "f2"},
	"\x1b[13~": {Name: "f3"},
	"\x1b[14~": {Name: "f4"},
	"\x1b[15~": {Name: "f5"},
	"\x1b[17~": {Name: "f6"},
	"\x1b[18~": {Name: "f7"},
	"\x1b[19~": {Name: "f8"},
	"\x1b[20~": {Name: "f9"},
	"\x1b[21~": {Name: "f10"},
	"\x1b[23~": {Name: "f11"},
	"\x1b[24~": {Name: "f12"},
}

// tildeKeyNames maps the numeric code of CSI <code>~ keys; shared by the
// legacy table above and the structured parser for modified variants.
var tildeKeyNames = map[int]string{
	1: "home", 2: "insert", 3: "delete", 4: "end", 5: "pageup", 6: "pagedown",
	11: "f1", 12: "f2", 13: "f3", 14: "f4", 15: "f5",
	17: "f6", 18: "f7", 19: "f8", 20: "f9", 21: "f10", 23: "f11", 24: "f12",
}

// Classify maps a complete raw unit to its most literal KeyEvent. It never
// fails: anything unrecognized comes back as a raw event with Name empty so
// the caller can still deliver it.
func Classify(seq string) KeyEvent {
	if seq == "" {
		return KeyEvent{}
	}
	if ev, ok := legacyKeys[seq]; ok {
		ev.Sequence = seq
		return ev
	}
	if len(seq) > 1 && seq[0] == 0x1b {
		// Modified arrows, tilde keys and CSI-u forms share one grammar
		// with the extended protocol.
		if ext, n, st := parseExtendedSequence(seq); st == parseOK && n == len(seq) {
			return ext.Key
		}
	}
	if len(seq) == 1 {
		return classifyByte(seq[0])
	}
	if r, size := utf8.DecodeRuneInString(seq); r != utf8.RuneError && size == len(seq) {
		return classifyRune(r, seq)
	}
	return KeyEvent{Sequence: seq}
}

func classifyByte(b byte) KeyEvent {
	seq := string(b)
	switch b {
	case '\r':
		return KeyEvent{Name: "return", Sequence: seq}
	case '\n':
		return KeyEvent{Name: "enter", Sequence: seq}
	case '\t':
		return KeyEvent{Name: "tab", Sequence: seq}
	case 0x1b:
		return KeyEvent{Name: "escape", Sequence: seq}
	case 0x7f:
		return KeyEvent{Name: "backspace", Sequence: seq}
	case ' ':
		return KeyEvent{Name: "space", Sequence: seq}
	case 0x00:
		return KeyEvent{Name: "space", Sequence: seq, Ctrl: true}
	}
	if b < 0x1b {
		// Remaining C0 bytes are Ctrl+letter.
		return KeyEvent{Name: string(rune('a' + b - 1)), Sequence: seq, Ctrl: true}
	}
	if b < 0x20 {
		// 0x1c..0x1f: Ctrl+backslash family.
		return KeyEvent{Name: string(rune(b + 0x40)), Sequence: seq, Ctrl: true}
	}
	if b < utf8.RuneSelf {
		return classifyRune(rune(b), seq)
	}
	return KeyEvent{Sequence: seq}
}

func classifyRune(r rune, seq string) KeyEvent {
	if unicode.IsUpper(r) {
		return KeyEvent{Name: string(unicode.ToLower(r)), Sequence: seq, Shift: true}
	}
	if r < utf8.RuneSelf {
		return KeyEvent{Name: string(r), Sequence: seq}
	}
	// Non-ASCII text: deliver raw, no semantic name.
	return KeyEvent{Sequence: seq}
}

// isReturnUnit reports whether a unit is a bare Return keystroke in either
// terminal encoding.
func isReturnUnit(seq string) bool {
	return seq == "\r" || seq == "\n"
}

// isCtrlC reports whether a unit is the raw interrupt byte.
func isCtrlC(seq string) bool {
	return seq == "\x03"
}
