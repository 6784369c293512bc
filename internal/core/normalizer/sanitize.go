package normalizer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Certain embedding models return non-finite values on rare Unicode
// inputs, which poisons the whole batch downstream. The sanitizer
// aggressively allowlists instead of trying to enumerate every
// problematic character.

// symbolReplacer maps common mathematical and typographic symbols to
// ASCII equivalents before the allowlist would blank them out.
var symbolReplacer = strings.NewReplacer(
	"∗", "*",
	"×", "x",
	"÷", "/",
	"±", "+/-",
	"≤", "<=",
	"≥", ">=",
	"≠", "!=",
	"≈", "~=",
	"∞", "inf",
	"∑", "sum",
	"∏", "prod",
	"√", "sqrt",
	"∂", "d",
	"∇", "nabla",
	"∈", "in",
	"∉", "not in",
	"⊂", "subset",
	"⊃", "superset",
	"∪", "union",
	"∩", "intersection",
	"→", "->",
	"←", "<-",
	"↔", "<->",
	"⇒", "=>",
	"⇐", "<=",
	"⇔", "<=>",
	"′", "'",
	"″", "\"",
	"‴", "'''",
	"°", " degrees",
	"·", ".",
	"…", "...",
	"—", "-",
	"–", "-",
	"“", "\"",
	"”", "\"",
	"‘", "'",
	"’", "'",
	"„", "\"",
	"‟", "\"",
)

// dropRune removes control characters (keeping \n, \t, \r), zero-width
// characters and combining marks outright; exotic Unicode spaces become
// plain spaces. Returning -1 from strings.Map deletes the rune.
func dropRune(r rune) rune {
	switch {
	case r == '\n' || r == '\t' || r == '\r':
		return r
	case r < 0x20 || (r >= 0x7f && r <= 0x9f):
		return -1
	case r == 0xa0 || (r >= 0x2000 && r <= 0x200a) || r == 0x202f || r == 0x205f || r == 0x3000:
		return ' '
	case r >= 0x200b && r <= 0x200d || r == 0xfeff:
		return -1
	case r >= 0x0300 && r <= 0x036f: // combining diacritics
		return -1
	case r >= 0xe000 && r <= 0xf8ff: // private use area
		return -1
	}
	return r
}

// isSafeRune is the embedding-safety allowlist: printable ASCII, CJK
// ideographs and punctuation, full-width forms, kana, Hangul and
// accented Latin. Everything else gets replaced with a space.
func isSafeRune(r rune) bool {
	switch {
	case r >= 0x20 && r <= 0x7e:
		return true
	case r == '\n' || r == '\t' || r == '\r':
		return true
	case r >= 0x4e00 && r <= 0x9fff: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4dbf: // CJK extension A
		return true
	case r >= 0x3000 && r <= 0x303f: // CJK punctuation
		return true
	case r >= 0xff00 && r <= 0xffef: // full-width forms
		return true
	case r >= 0x3040 && r <= 0x30ff: // hiragana + katakana
		return true
	case r >= 0xac00 && r <= 0xd7af: // Hangul
		return true
	case r >= 0x00c0 && r <= 0x024f: // accented Latin
		return true
	}
	return false
}

// SanitizeForEmbedding normalizes text to NFKC, scrubs control and
// zero-width characters, maps known symbols to ASCII and blanks
// anything outside the allowlist, then recollapses the whitespace the
// scrubbing produced.
func SanitizeForEmbedding(text string) string {
	text = norm.NFKC.String(text)
	text = strings.Map(dropRune, text)
	text = symbolReplacer.Replace(text)
	text = strings.Map(func(r rune) rune {
		if isSafeRune(r) {
			return r
		}
		return ' '
	}, text)

	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
