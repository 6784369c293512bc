package normalizer

import (
	"regexp"
	"strings"
)

// Heading patterns that open a references/bibliography section. Several
// language variants; all anchored to a line start via the preceding
// newline so body mentions of "references" are not excised.
var refPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*References?\s*\n`),
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Bibliography\s*\n`),
	regexp.MustCompile(`\n\s*#{0,3}\s*参考文献\s*\n`),
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Works\s+Cited\s*\n`),
	regexp.MustCompile(`(?i)\n\s*\d+\.?\s*References?\s*\n`),
}

// Headings that may follow a references section (appendices,
// acknowledgments and similar back matter worth keeping).
var nextSectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Appendix`),
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Supplementary`),
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Acknowledg`),
	regexp.MustCompile(`\n\s*#{0,3}\s*附录`),
	regexp.MustCompile(`\n\s*#{0,3}\s*致谢`),
	regexp.MustCompile(`(?i)\n\s*#{0,3}\s*Supporting\s+Information`),
	regexp.MustCompile(`\n\s*[A-Z]\.\s+`), // appendix numbering like "A. Proofs"
	regexp.MustCompile(`\n\s*Appendix\s+[A-Z]`),
}

// StripReferences removes an academic paper's references section while
// preserving whatever follows it (appendices etc). It finds the
// earliest references heading, then the next known section heading
// after it, and excises everything in between. With no following
// section the cut runs to the end of the text; with no references
// heading the text passes through unchanged.
func StripReferences(text string) string {
	refStart := -1
	for _, p := range refPatterns {
		if loc := p.FindStringIndex(text); loc != nil {
			if refStart == -1 || loc[0] < refStart {
				refStart = loc[0]
			}
		}
	}
	if refStart == -1 {
		return text
	}

	// Look for the next section strictly after the references heading's
	// own leading newline.
	rest := text[refStart+1:]
	refEnd := len(text)
	for _, p := range nextSectionPatterns {
		if loc := p.FindStringIndex(rest); loc != nil {
			if end := refStart + 1 + loc[0]; end < refEnd {
				refEnd = end
			}
		}
	}

	before := strings.TrimRight(text[:refStart], " \t\n")
	after := ""
	if refEnd < len(text) {
		after = strings.TrimLeft(text[refEnd:], " \t\n")
	}

	if after != "" {
		return before + "\n\n" + after
	}
	return before + "\n"
}
