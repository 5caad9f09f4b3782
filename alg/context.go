package alg

// DefaultContextSize is the number of characters shown on each side of a match
// when no positive context size is configured.
const DefaultContextSize = 100

// ContextWindow returns the text surrounding the match [start, end) of text,
// extending up to halfWidth characters on each side, together with the match
// position relative to the returned window.
//
// All offsets are in characters (runes), never bytes. Offsets outside the
// text are clamped, so a match at either edge of the text or an empty text
// yields a shorter window rather than a panic.
func ContextWindow(text []rune, start, end, halfWidth int) (window string, hlStart, hlEnd int) {
	if halfWidth <= 0 {
		halfWidth = DefaultContextSize
	}

	start = min(max(start, 0), len(text))
	end = min(max(end, start), len(text))

	wstart := max(0, start-halfWidth)
	wend := min(len(text), end+halfWidth)

	return string(text[wstart:wend]), start - wstart, end - wstart
}
