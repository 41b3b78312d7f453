package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Placeholder is returned when a title has nothing usable left.
const Placeholder = "untitled"

var (
	unsafeChars = regexp.MustCompile(`[^\w\s.-]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
	alnum       = regexp.MustCompile(`[A-Za-z0-9]`)
)

// letters with no canonical decomposition
var ligatureReplacer = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "Th",
)

// StripDiacritics removes combining marks after canonical decomposition, so
// "Beyoncé" becomes "Beyonce".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return ligatureReplacer.Replace(out)
}

// SanitizeTitle returns a directory-safe version of title. It is idempotent.
func SanitizeTitle(title string) string {
	s := StripDiacritics(title)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = unsafeChars.ReplaceAllString(s, "")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if !alnum.MatchString(s) {
		return Placeholder
	}
	return s
}

// CollapseSpaces trims s and folds whitespace runs into single spaces.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
}
