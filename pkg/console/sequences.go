package console

import (
	"strings"

	"golang.org/x/text/transform"
)

// Stateless classification of single raw units. Everything here operates on
// one string with no decoder state, so each classifier is testable against
// literal byte sequences.

// ClassifyPasteBoundary matches the bracketed-paste framing markers. Markers
// arrive as whole units from the terminal; prefix matching covers payload
// glued onto the start marker in the same delivery.
func ClassifyPasteBoundary(seq string) (isStart, isEnd bool) {
	return strings.HasPrefix(seq, pasteStartMarker), strings.HasPrefix(seq, pasteEndMarker)
}

// ClassifyFocusEvent matches terminal focus reports, which the decoder
// discards: focus is not meaningful input for this application.
func ClassifyFocusEvent(seq string) (focusIn, focusOut bool) {
	return seq == focusInSeq, seq == focusOutSeq
}

// ClassifyDragStart reports whether a burst unit opens the file-drag framing
// terminals use when a file is dropped onto the window: a quoted absolute
// path or a file URL.
func ClassifyDragStart(seq string) bool {
	if len(seq) < 3 {
		return false
	}
	if strings.HasPrefix(seq, "file://") {
		return true
	}
	if seq[0] != '\'' && seq[0] != '"' {
		return false
	}
	rest := seq[1:]
	if rest[0] == '/' {
		return true
	}
	// Quoted Windows path: "C:\... or "C:/...
	return len(rest) >= 3 && isASCIILetter(rest[0]) && rest[1] == ':' &&
		(rest[2] == '\\' || rest[2] == '/')
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// MapAltKeyCharacter recovers the character from an ESC-prefixed printable,
// which is how Alt+key reaches us on this platform family. CSI and SS3
// introducers are excluded so real escape sequences never match.
func MapAltKeyCharacter(seq string) (byte, bool) {
	if len(seq) != 2 || seq[0] != 0x1b {
		return 0, false
	}
	c := seq[1]
	if c < 0x20 || c > 0x7e || c == '[' || c == 'O' {
		return 0, false
	}
	return c, true
}

// lineEndingNormalizer rewrites \r\n and bare \r to \n. A trailing \r is
// held back until more input or EOF decides whether a \n follows it.
type lineEndingNormalizer struct {
	transform.NopResetter
}

func (lineEndingNormalizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == '\r' && nSrc+1 == len(src) && !atEOF {
			err = transform.ErrShortSrc
			return
		}
		if nDst == len(dst) {
			err = transform.ErrShortDst
			return
		}
		if c == '\r' {
			dst[nDst] = '\n'
			nDst++
			nSrc++
			if nSrc < len(src) && src[nSrc] == '\n' {
				nSrc++
			}
			continue
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return
}

// NormalizePastedText canonicalizes line endings before a paste event is
// emitted, since pasted content may originate from any platform.
func NormalizePastedText(text string) string {
	out, _, err := transform.String(lineEndingNormalizer{}, text)
	if err != nil {
		return text
	}
	return out
}
