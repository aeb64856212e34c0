package tgui

import "unicode/utf8"

// MaxMessageLen is Telegram's text message limit in characters.
const MaxMessageLen = 4096

// Clip shortens plain text to at most max runes, marking the cut with "…".
// Clip before escaping: escaping can only grow the text.
func Clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
