package eventapi

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeAccessCode folds a code typed by a guest into the usual printed
// form: compatibility forms are folded (full-width digits from mobile keyboards),
// diacritics and whitespace are dropped and letters are upper-cased. The server
// compares codes exactly, so this is only a second attempt after a miss.
func NormalizeAccessCode(code string) string {
	code = norm.NFKC.String(code)
	code = removeDiacritics(code)
	code = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
	return strings.ToUpper(code)
}
