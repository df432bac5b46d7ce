package pipeline

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// diffPunctuation is ignored when comparing texts; caption renderers add and
// drop it as they revise a line.
const diffPunctuation = `.,!?;:'"()[]{}…¿¡«»“”‘’`

// MinFragmentLength filters single-character rendering noise, in runes.
const MinFragmentLength = 2

func normalizeForDiff(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(diffPunctuation, r) {
			return -1
		}
		return r
	}, s)
	// A Caser keeps state between calls, so one per call.
	return cases.Fold().String(s)
}

// Diff returns the text appended to previous to produce current, or "" when
// current is not a clean extension of previous. The comparison ignores
// punctuation and case; the returned fragment is taken from the original
// current text starting at the original length of previous.
func Diff(previous, current string) string {
	np, nc := normalizeForDiff(previous), normalizeForDiff(current)
	if len(nc) <= len(np) || !strings.HasPrefix(nc, np) {
		return ""
	}
	if len(current) <= len(previous) {
		return ""
	}
	cut := len(previous)
	for cut < len(current) && !utf8.RuneStart(current[cut]) {
		cut++
	}
	frag := strings.TrimSpace(current[cut:])
	if utf8.RuneCountInString(frag) < MinFragmentLength {
		return ""
	}
	return frag
}
