package console

import (
	"testing"
)

func TestParseKittyUBasic(t *testing.T) {
	ext, n, st := parseExtendedSequence("\x1b[97;5u")
	if st != parseOK {
		t.Fatalf("Expected parseOK, got %v", st)
	}
	if n != 7 {
		t.Errorf("Expected 7 bytes consumed, got %d", n)
	}
	if ext.Key.Name != "a" || !ext.Key.Ctrl || ext.Key.Shift || ext.Key.Meta {
		t.Errorf("Expected ctrl+a, got %+v", ext.Key)
	}
	if ext.Release {
		t.Error("Expected press, got release")
	}
	if ext.Key.Sequence != "\x1b[97;5u" {
		t.Errorf("Expected sequence preserved, got %q", ext.Key.Sequence)
	}

	// Modifier value minus one is a bitmask: 4 = 1+2+1, shift+alt
	ext, _, st = parseExtendedSequence("\x1b[98;4u")
	if st != parseOK || ext.Key.Name != "b" || !ext.Key.Shift || !ext.Key.Meta || ext.Key.Ctrl {
		t.Errorf("Expected shift+meta+b, got %+v status %v", ext.Key, st)
	}

	// No modifier field at all
	ext, _, st = parseExtendedSequence("\x1b[113u")
	if st != parseOK || ext.Key.Name != "q" || ext.Key.Ctrl || ext.Key.Shift {
		t.Errorf("Expected plain q, got %+v status %v", ext.Key, st)
	}

	// Super and lock bits beyond the three tracked modifiers are ignored
	ext, _, st = parseExtendedSequence("\x1b[99;9u")
	if st != parseOK || ext.Key.Name != "c" || ext.Key.Ctrl || ext.Key.Shift || ext.Key.Meta {
		t.Errorf("Expected bare c with super ignored, got %+v status %v", ext.Key, st)
	}
}

func TestParseKittyUNamedKeys(t *testing.T) {
	cases := []struct {
		seq   string
		name  string
		shift bool
		ctrl  bool
	}{
		{"\x1b[13;2u", "return", true, false},
		{"\x1b[13u", "return", false, false},
		{"\x1b[10;2u", "enter", true, false},
		{"\x1b[9;5u", "tab", false, true},
		{"\x1b[27u", "escape", false, false},
		{"\x1b[32;2u", "space", true, false},
		{"\x1b[127;5u", "backspace", false, true},
		{"\x1b[57414;2u", "return", true, false},
		{"\x1b[57421u", "pageup", false, false},
		{"\x1b[57426;5u", "delete", false, true},
	}
	for _, tc := range cases {
		ext, _, st := parseExtendedSequence(tc.seq)
		if st != parseOK {
			t.Errorf("parseExtendedSequence(%q): expected parseOK, got %v", tc.seq, st)
			continue
		}
		if ext.Key.Name != tc.name || ext.Key.Shift != tc.shift || ext.Key.Ctrl != tc.ctrl {
			t.Errorf("parseExtendedSequence(%q): expected %s shift=%v ctrl=%v, got %+v",
				tc.seq, tc.name, tc.shift, tc.ctrl, ext.Key)
		}
	}
}

func TestParseKittyUShiftedCodepoint(t *testing.T) {
	// The shifted codepoint wins for printable keys: 97:65 reports 'a'
	// with shifted 'A'
	ext, _, st := parseExtendedSequence("\x1b[97:65;2u")
	if st != parseOK {
		t.Fatalf("Expected parseOK, got %v", st)
	}
	if ext.Key.Name != "a" || !ext.Key.Shift {
		t.Errorf("Expected shift+a from shifted codepoint, got %+v", ext.Key)
	}
}

func TestParseKittyUEventTypes(t *testing.T) {
	// Release reports parse fine but are flagged for the caller to drop
	ext, _, st := parseExtendedSequence("\x1b[97;1:3u")
	if st != parseOK {
		t.Fatalf("Expected parseOK, got %v", st)
	}
	if !ext.Release {
		t.Error("Expected release flag for event type 3")
	}

	// Repeats decode as ordinary presses
	ext, _, st = parseExtendedSequence("\x1b[97;1:2u")
	if st != parseOK || ext.Release {
		t.Errorf("Expected repeat to decode as press, got release=%v status %v", ext.Release, st)
	}

	ext, _, st = parseExtendedSequence("\x1b[97;5:1u")
	if st != parseOK || ext.Release || !ext.Key.Ctrl {
		t.Errorf("Expected explicit press with ctrl, got %+v release=%v", ext.Key, ext.Release)
	}
}

func TestParseModifiedArrows(t *testing.T) {
	ext, n, st := parseExtendedSequence("\x1b[1;5C")
	if st != parseOK || n != 6 {
		t.Fatalf("Expected parseOK consuming 6, got status %v n=%d", st, n)
	}
	if ext.Key.Name != "right" || !ext.Key.Ctrl {
		t.Errorf("Expected ctrl+right, got %+v", ext.Key)
	}

	// Plain arrows parse through the same path
	ext, _, st = parseExtendedSequence("\x1b[B")
	if st != parseOK || ext.Key.Name != "down" || ext.Key.Ctrl || ext.Key.Shift {
		t.Errorf("Expected plain down, got %+v status %v", ext.Key, st)
	}

	ext, _, st = parseExtendedSequence("\x1b[1;2H")
	if st != parseOK || ext.Key.Name != "home" || !ext.Key.Shift {
		t.Errorf("Expected shift+home, got %+v status %v", ext.Key, st)
	}

	// Arrow release events carry the flag
	ext, _, st = parseExtendedSequence("\x1b[1;5:3D")
	if st != parseOK || !ext.Release || ext.Key.Name != "left" {
		t.Errorf("Expected left release, got %+v release=%v status %v", ext.Key, ext.Release, st)
	}

	// A leading parameter other than 1 is not a keyboard report
	if _, _, st := parseExtendedSequence("\x1b[2;5C"); st != parseInvalid {
		t.Errorf("Expected parseInvalid for lead param 2, got %v", st)
	}
}

func TestParseTildeKeys(t *testing.T) {
	ext, _, st := parseExtendedSequence("\x1b[3;5~")
	if st != parseOK || ext.Key.Name != "delete" || !ext.Key.Ctrl {
		t.Errorf("Expected ctrl+delete, got %+v status %v", ext.Key, st)
	}

	ext, _, st = parseExtendedSequence("\x1b[6~")
	if st != parseOK || ext.Key.Name != "pagedown" {
		t.Errorf("Expected pagedown, got %+v status %v", ext.Key, st)
	}

	// xterm modifyOtherKeys form: ESC [ 27;mod;code ~
	ext, _, st = parseExtendedSequence("\x1b[27;2;13~")
	if st != parseOK || ext.Key.Name != "return" || !ext.Key.Shift {
		t.Errorf("Expected shift+return from modifyOtherKeys, got %+v status %v", ext.Key, st)
	}
	ext, _, st = parseExtendedSequence("\x1b[27;5;97~")
	if st != parseOK || ext.Key.Name != "a" || !ext.Key.Ctrl {
		t.Errorf("Expected ctrl+a from modifyOtherKeys, got %+v status %v", ext.Key, st)
	}

	// Unknown tilde code
	if _, _, st := parseExtendedSequence("\x1b[99~"); st != parseInvalid {
		t.Errorf("Expected parseInvalid for unknown tilde code, got %v", st)
	}
}

func TestParsePasteMarkersAreNotKeys(t *testing.T) {
	// Paste framing shares the tilde final byte but must never parse as a
	// key, or a stray marker would surface as a keystroke
	if _, _, st := parseExtendedSequence("\x1b[200~"); st != parseInvalid {
		t.Errorf("Expected parseInvalid for paste start marker, got %v", st)
	}
	if _, _, st := parseExtendedSequence("\x1b[201~"); st != parseInvalid {
		t.Errorf("Expected parseInvalid for paste end marker, got %v", st)
	}
}

func TestParseIncompleteSequences(t *testing.T) {
	incomplete := []string{
		"\x1b",
		"\x1bO",
		"\x1b[",
		"\x1b[1",
		"\x1b[97;5",
		"\x1b[27;2;1",
	}
	for _, seq := range incomplete {
		if _, _, st := parseExtendedSequence(seq); st != parseIncomplete {
			t.Errorf("parseExtendedSequence(%q): expected parseIncomplete, got %v", seq, st)
		}
	}
}

func TestParseInvalidSequences(t *testing.T) {
	invalid := []string{
		"",
		"a",
		"hello",
		"\x1bX",
		"\x1bOZ",
		"\x1b[97;5x",
		"\x1b[\x01",
		"\x1b[;u",
	}
	for _, seq := range invalid {
		if _, _, st := parseExtendedSequence(seq); st != parseInvalid {
			t.Errorf("parseExtendedSequence(%q): expected parseInvalid, got %v", seq, st)
		}
	}
}

func TestParseSS3Keys(t *testing.T) {
	ext, n, st := parseExtendedSequence("\x1bOP")
	if st != parseOK || n != 3 {
		t.Fatalf("Expected parseOK consuming 3, got status %v n=%d", st, n)
	}
	if ext.Key.Name != "f1" {
		t.Errorf("Expected f1, got %+v", ext.Key)
	}
}

func TestParseUnmappedFunctionalCodepoint(t *testing.T) {
	// Codepoints in the functional-key private use block with no mapping
	// decode as nameless events so the raw sequence still reaches the
	// application
	ext, _, st := parseExtendedSequence("\x1b[57500u")
	if st != parseOK {
		t.Fatalf("Expected parseOK, got %v", st)
	}
	if ext.Key.Name != "" || ext.Key.Sequence != "\x1b[57500u" {
		t.Errorf("Expected nameless event with raw sequence, got %+v", ext.Key)
	}
}

func TestParseConsumesOnlyOneSequence(t *testing.T) {
	// Two glued sequences: the parser must stop at the first final byte
	buf := "\x1b[97;5u\x1b[98;5u"
	ext, n, st := parseExtendedSequence(buf)
	if st != parseOK {
		t.Fatalf("Expected parseOK, got %v", st)
	}
	if n != 7 {
		t.Errorf("Expected 7 bytes consumed, got %d", n)
	}
	if ext.Key.Name != "a" {
		t.Errorf("Expected first sequence to parse as ctrl+a, got %+v", ext.Key)
	}

	ext, n, st = parseExtendedSequence(buf[n:])
	if st != parseOK || ext.Key.Name != "b" || n != 7 {
		t.Errorf("Expected second sequence ctrl+b, got %+v n=%d status %v", ext.Key, n, st)
	}
}
