package console

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// parseStatus distinguishes "wait for more bytes" from "skip this junk".
// Conflating the two either stalls the decoder forever or drops keystrokes,
// so every path through the parser must pick deliberately.
type parseStatus int

const (
	parseOK parseStatus = iota
	parseIncomplete
	parseInvalid
)

// extendedKey is one parsed extended-protocol sequence. Release marks key-up
// reports, which callers drop; repeats decode as ordinary presses.
type extendedKey struct {
	Key     KeyEvent
	Release bool
}

const (
	eventPress   = 1
	eventRepeat  = 2
	eventRelease = 3
)

// Keypad codepoints from the kitty functional-key block that map onto keys
// the application already understands.
var kittyKeypadNames = map[int]string{
	57414: "return",
	57417: "left",
	57418: "right",
	57419: "up",
	57420: "down",
	57421: "pageup",
	57422: "pagedown",
	57423: "home",
	57424: "end",
	57425: "insert",
	57426: "delete",
}

// parseExtendedSequence parses one complete extended-protocol escape
// sequence from the front of buf. It accepts kitty CSI-u, modified/plain
// CSI arrows and home/end, functional tilde keys, xterm modifyOtherKeys,
// and two-byte SS3 finals. consumed is meaningful only on parseOK.
func parseExtendedSequence(buf string) (extendedKey, int, parseStatus) {
	if len(buf) == 0 || buf[0] != 0x1b {
		return extendedKey{}, 0, parseInvalid
	}
	if len(buf) == 1 {
		return extendedKey{}, 0, parseIncomplete
	}

	switch buf[1] {
	case 'O':
		if len(buf) == 2 {
			return extendedKey{}, 0, parseIncomplete
		}
		seq := buf[:3]
		if ev, ok := legacyKeys[seq]; ok {
			ev.Sequence = seq
			return extendedKey{Key: ev}, 3, parseOK
		}
		return extendedKey{}, 0, parseInvalid
	case '[':
		return parseCSI(buf)
	default:
		return extendedKey{}, 0, parseInvalid
	}
}

func parseCSI(buf string) (extendedKey, int, parseStatus) {
	// Parameter bytes, then a final byte. Intermediate bytes (0x20..0x2f)
	// never appear in keyboard reports, so they invalidate the sequence.
	i := 2
	for i < len(buf) && buf[i] >= 0x30 && buf[i] <= 0x3f {
		i++
	}
	if i == len(buf) {
		return extendedKey{}, 0, parseIncomplete
	}
	final := buf[i]
	if final < 0x40 || final > 0x7e {
		return extendedKey{}, 0, parseInvalid
	}
	params := buf[2:i]
	consumed := i + 1
	seq := buf[:consumed]

	switch final {
	case 'u':
		return parseKittyU(params, seq, consumed)
	case 'A', 'B', 'C', 'D', 'H', 'F':
		return parseModifiedArrow(params, final, seq, consumed)
	case '~':
		return parseTilde(params, seq, consumed)
	default:
		return extendedKey{}, 0, parseInvalid
	}
}

// parseKittyU handles ESC [ code[:shifted[:base]] [; mod[:event]] u.
func parseKittyU(params, seq string, consumed int) (extendedKey, int, parseStatus) {
	fields := strings.Split(params, ";")
	codes := strings.Split(fields[0], ":")
	code, ok := parseSeqInt(codes[0])
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}
	shifted := 0
	if len(codes) > 1 && codes[1] != "" {
		if shifted, ok = parseSeqInt(codes[1]); !ok {
			return extendedKey{}, 0, parseInvalid
		}
	}

	mod, event, ok := parseModField(fields[1:])
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}

	ev := KeyEvent{Sequence: seq}
	applyModifiers(&ev, mod)
	name, nameShift, ok := codepointName(code, shifted)
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}
	ev.Name = name
	ev.Shift = ev.Shift || nameShift
	return extendedKey{Key: ev, Release: event == eventRelease}, consumed, parseOK
}

// parseModifiedArrow handles plain and modified cursor keys:
// ESC [ A and ESC [ 1;mod[:event] A, plus the H/F home/end finals.
func parseModifiedArrow(params string, final byte, seq string, consumed int) (extendedKey, int, parseStatus) {
	names := map[byte]string{'A': "up", 'B': "down", 'C': "right", 'D': "left", 'H': "home", 'F': "end"}

	ev := KeyEvent{Name: names[final], Sequence: seq}
	if params == "" {
		return extendedKey{Key: ev}, consumed, parseOK
	}
	fields := strings.Split(params, ";")
	if lead, ok := parseSeqInt(fields[0]); !ok || lead != 1 {
		return extendedKey{}, 0, parseInvalid
	}
	mod, event, ok := parseModField(fields[1:])
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}
	applyModifiers(&ev, mod)
	return extendedKey{Key: ev, Release: event == eventRelease}, consumed, parseOK
}

// parseTilde handles ESC [ code;mod[:event] ~ functional keys and the xterm
// modifyOtherKeys form ESC [ 27;mod;code ~.
func parseTilde(params, seq string, consumed int) (extendedKey, int, parseStatus) {
	fields := strings.Split(params, ";")
	code, ok := parseSeqInt(fields[0])
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}

	// Paste markers share this final byte but are framing, not keys; the
	// decoder recognizes them before parsing ever runs.
	if code == 200 || code == 201 {
		return extendedKey{}, 0, parseInvalid
	}

	if code == 27 && len(fields) == 3 {
		mod, ok := parseSeqInt(fields[1])
		if !ok {
			return extendedKey{}, 0, parseInvalid
		}
		keyCode, ok := parseSeqInt(fields[2])
		if !ok {
			return extendedKey{}, 0, parseInvalid
		}
		ev := KeyEvent{Sequence: seq}
		applyModifiers(&ev, mod)
		name, nameShift, ok := codepointName(keyCode, 0)
		if !ok {
			return extendedKey{}, 0, parseInvalid
		}
		ev.Name = name
		ev.Shift = ev.Shift || nameShift
		return extendedKey{Key: ev}, consumed, parseOK
	}

	name, ok := tildeKeyNames[code]
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}
	ev := KeyEvent{Name: name, Sequence: seq}
	mod, event, ok := parseModField(fields[1:])
	if !ok {
		return extendedKey{}, 0, parseInvalid
	}
	applyModifiers(&ev, mod)
	return extendedKey{Key: ev, Release: event == eventRelease}, consumed, parseOK
}

// parseModField decodes the optional "mod[:event]" parameter shared by all
// CSI key reports. An absent field means no modifiers, key press.
func parseModField(fields []string) (mod, event int, ok bool) {
	mod, event = 1, eventPress
	if len(fields) == 0 || fields[0] == "" {
		return mod, event, true
	}
	sub := strings.Split(fields[0], ":")
	if mod, ok = parseSeqInt(sub[0]); !ok {
		return 0, 0, false
	}
	if len(sub) > 1 && sub[1] != "" {
		if event, ok = parseSeqInt(sub[1]); !ok {
			return 0, 0, false
		}
	}
	return mod, event, true
}

// applyModifiers decodes the xterm modifier parameter: value minus one is a
// bitmask of shift(1), alt(2), ctrl(4). Super and lock bits are ignored.
func applyModifiers(ev *KeyEvent, mod int) {
	if mod <= 1 {
		return
	}
	bits := mod - 1
	ev.Shift = bits&1 != 0
	ev.Meta = bits&2 != 0
	ev.Ctrl = bits&4 != 0
}

// codepointName maps a reported codepoint to the semantic key name. shifted,
// when nonzero, is the shifted-key codepoint and wins for printable keys.
func codepointName(code, shifted int) (string, bool, bool) {
	switch code {
	case 13:
		return "return", false, true
	case 10:
		return "enter", false, true
	case 9:
		return "tab", false, true
	case 27:
		return "escape", false, true
	case 32:
		return "space", false, true
	case 8, 127:
		return "backspace", false, true
	}
	if name, ok := kittyKeypadNames[code]; ok {
		return name, false, true
	}
	effective := code
	if shifted > 0 {
		effective = shifted
	}
	r := rune(effective)
	if !utf8.ValidRune(r) || r < 0x21 {
		return "", false, false
	}
	if r >= 57344 && r <= 63743 {
		// Unmapped functional-key block: well formed but meaningless to
		// the application; deliver nameless so the raw sequence survives.
		return "", false, true
	}
	if unicode.IsUpper(r) {
		return string(unicode.ToLower(r)), true, true
	}
	return string(r), false, true
}

// parseSeqInt is strconv.Atoi restricted to the digit strings escape
// sequences may carry.
func parseSeqInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
