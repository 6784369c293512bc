package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripReferencesKeepsAppendix(t *testing.T) {
	text := "Body\n\nReferences\n\n[1] X\n\nAppendix\n\nA1"

	got := StripReferences(text)

	assert.Equal(t, "Body\n\nAppendix\n\nA1", got)
}

func TestStripReferencesToEndWithoutFollowingSection(t *testing.T) {
	text := "Intro paragraph.\n\nBibliography\n\n[1] Some citation.\n[2] Another citation."

	got := StripReferences(text)

	assert.Equal(t, "Intro paragraph.\n", got)
}

func TestStripReferencesNoHeadingPassesThrough(t *testing.T) {
	text := "We list our references inline in the text, not as a section."

	assert.Equal(t, text, StripReferences(text))
}

func TestStripReferencesIgnoresInlineMention(t *testing.T) {
	// "references" mid-line must not trigger excision.
	text := "See the references above for details.\n\nConclusion follows here."

	assert.Equal(t, text, StripReferences(text))
}

func TestStripReferencesMarkdownHeading(t *testing.T) {
	text := "Body text.\n\n## References\n\n[1] Cited work.\n\nAppendix B details"

	got := StripReferences(text)

	assert.Equal(t, "Body text.\n\nAppendix B details", got)
}

func TestStripReferencesChineseHeading(t *testing.T) {
	text := "正文内容在这里。\n\n参考文献\n\n[1] 引用一\n\n附录\n\n更多内容"

	got := StripReferences(text)

	assert.Contains(t, got, "正文内容在这里。")
	assert.Contains(t, got, "附录")
	assert.NotContains(t, got, "引用一")
}

func TestSanitizeForEmbeddingReplacesSymbols(t *testing.T) {
	got := SanitizeForEmbedding("a × b ≤ c → d")

	assert.Equal(t, "a x b <= c -> d", got)
}

func TestSanitizeForEmbeddingDropsControlAndZeroWidth(t *testing.T) {
	got := SanitizeForEmbedding("he​llo\x00 world")

	assert.Equal(t, "hello world", got)
}

func TestSanitizeForEmbeddingKeepsCJKAndNewlines(t *testing.T) {
	got := SanitizeForEmbedding("深度学习模型\n\nsecond paragraph")

	assert.Equal(t, "深度学习模型\n\nsecond paragraph", got)
}

func TestSanitizeForEmbeddingUnknownRunesBecomeSpaces(t *testing.T) {
	// An emoji is outside the allowlist and must not survive.
	got := SanitizeForEmbedding("hello \U0001F600 world")

	assert.Equal(t, "hello world", got)
	for _, r := range got {
		assert.Less(t, int(r), 0x250)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "a   b  \t\nline two   \n\n\n\n\nline three"

	got := NormalizeWhitespace(in)

	assert.Equal(t, "a b\nline two\n\nline three", got)
}

func TestCleanRejectsShortText(t *testing.T) {
	n := New(50)

	_, err := n.Clean("too short")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTextTooShort)
}

func TestCleanAcceptsLongEnoughText(t *testing.T) {
	n := New(50)
	body := strings.Repeat("sentence with actual words. ", 10)

	got, err := n.Clean(body)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(got), 50)
}

func TestCleanLengthGateAppliesAfterStripping(t *testing.T) {
	// The body alone is under the minimum; the references padding must
	// not rescue it.
	n := New(100)
	text := "Tiny body.\n\nReferences\n\n" + strings.Repeat("[1] A very long citation entry. ", 20)

	_, err := n.Clean(text)

	assert.ErrorIs(t, err, ErrTextTooShort)
}

func TestCleanFullRoundTrip(t *testing.T) {
	n := New(20)
	raw := "Results  show   ≥ 95%  accuracy.​\n\n\n\nMore   findings here.\n\nReferences\n\n[1] Dropped."

	got, err := n.Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, "Results show >= 95% accuracy.\n\nMore findings here.", got)
}
