package console

import "fmt"

// Control sequences written to (or read from) the terminal. Input-side
// markers are matched verbatim by the sequence classifiers; output-side
// sequences are written by the session controller around the read loop.

const (
	// Bracketed paste framing as delivered by the terminal.
	pasteStartMarker = "\x1b[200~"
	pasteEndMarker   = "\x1b[201~"

	// Focus reporting as delivered by the terminal.
	focusInSeq  = "\x1b[I"
	focusOutSeq = "\x1b[O"

	// Mode toggles written on session start/stop.
	bracketedPasteOn  = "\x1b[?2004h"
	bracketedPasteOff = "\x1b[?2004l"
	focusReportingOn  = "\x1b[?1004h"
	focusReportingOff = "\x1b[?1004l"

	// Kitty keyboard protocol: the capability query and the pop sequence
	// written on teardown. The disambiguate flag is the only enhancement
	// the decoder needs.
	kittyQuery        = "\x1b[?u"
	kittyPop          = "\x1b[<u"
	kittyFlagDisambig = 1

	// DA1 query, used as a detection fence: every terminal answers it, so
	// its reply arriving without a kitty reply means "not supported".
	primaryAttrQuery = "\x1b[c"
)

// kittyEnableSeq returns the push sequence enabling the kitty keyboard
// protocol with the given progressive-enhancement flags.
func kittyEnableSeq(flags int) string {
	return fmt.Sprintf("\x1b[>%du", flags)
}
