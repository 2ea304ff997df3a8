package utils

import (
	"strings"
	"unicode"
)

// TitleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "dnbseq-g400" becomes "Dnbseq-G400" and
// "illumina hiseq 2500" becomes "Illumina Hiseq 2500". A letter following a
// digit starts a new run.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}

	return b.String()
}
