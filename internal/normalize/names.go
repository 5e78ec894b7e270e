package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// CleanName produces the matching key for a track, artist or album name:
// NFKC-normalized, case-folded, punctuation and symbols removed, whitespace
// collapsed. "Eye of the Tiger (Remastered)" becomes
// "eye of the tiger remastered".
func CleanName(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
