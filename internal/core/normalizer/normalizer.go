package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrTextTooShort flags text below the configured minimum after
// cleaning, which usually means a corrupt or image-only document.
var ErrTextTooShort = errors.New("extracted text too short")

var (
	spaceRuns     = regexp.MustCompile(` +`)
	newlineRuns   = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
)

// NormalizeWhitespace collapses runs of spaces to one, trims trailing
// whitespace from every line, and caps consecutive newlines at two so
// paragraph breaks survive.
func NormalizeWhitespace(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = trailingSpace.ReplaceAllString(text, "")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Normalizer cleans raw extracted text for persistence and embedding.
type Normalizer struct {
	minLength int
}

// New returns a Normalizer that rejects cleaned text shorter than
// minLength characters (100 when non-positive).
func New(minLength int) *Normalizer {
	if minLength <= 0 {
		minLength = 100
	}
	return &Normalizer{minLength: minLength}
}

// Clean strips boilerplate references, sanitizes the text for the
// downstream embedding step, normalizes whitespace and applies the
// minimum-length gate.
func (n *Normalizer) Clean(raw string) (string, error) {
	text := StripReferences(raw)
	text = SanitizeForEmbedding(text)
	text = NormalizeWhitespace(text)

	if got := utf8.RuneCountInString(text); got < n.minLength {
		return "", fmt.Errorf("%w: %d chars after cleaning, need %d", ErrTextTooShort, got, n.minLength)
	}
	return text, nil
}
