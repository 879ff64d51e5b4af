package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown_SectionHeadings(t *testing.T) {
	doc := "Intro before any heading.\n" +
		"# Combat\n" +
		"Damage is computed per shell.\n" +
		"## Armor\n" +
		"Front armor is thickest.\n"

	chunks := Markdown("tank_gdd", doc, Options{})
	require.Len(t, chunks, 3)

	assert.Equal(t, "", chunks[0].SectionHeading)
	assert.Equal(t, "Combat", chunks[1].SectionHeading)
	assert.Equal(t, "Armor", chunks[2].SectionHeading)

	for i, c := range chunks {
		assert.Equal(t, "tank_gdd", c.DocID)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, TypeDocument, c.Type)
	}
}

func TestMarkdown_ChunkIDFormat(t *testing.T) {
	chunks := Markdown("weapons", "# A\nx\n# B\ny\n", Options{})
	require.Len(t, chunks, 2)
	assert.Equal(t, "weapons_chunk_000", chunks[0].ID)
	assert.Equal(t, "weapons_chunk_001", chunks[1].ID)
}

// Concatenating whole-section chunks must reproduce the input exactly:
// the chunker preserves every byte, including whitespace.
func TestMarkdown_RoundTrip(t *testing.T) {
	doc := "preamble\n\n# One\nalpha  beta\n\ttabbed\n## Two\ngamma\n# Three #\ndelta"

	chunks := Markdown("d", doc, Options{})
	require.NotEmpty(t, chunks)

	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
	}
	assert.Equal(t, doc, b.String())
}

func TestMarkdown_HeadingTrailingHashesStripped(t *testing.T) {
	chunks := Markdown("d", "# Title ##\nbody\n", Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Title", chunks[0].SectionHeading)
}

func TestMarkdown_EmptyInput(t *testing.T) {
	assert.Empty(t, Markdown("d", "", Options{}))
	assert.Empty(t, Markdown("d", "   \n\t\n", Options{}))
}

func TestMarkdown_OversizedSectionSplitsWithOverlap(t *testing.T) {
	words := []string{"w0", "w1", "w2", "w3", "w4", "w5"}
	doc := "# Big\n" + strings.Join(words, " ")
	opts := Options{ChunkSize: 4, OverlapRatio: 0.5}

	chunks := Markdown("d", doc, opts)
	require.Len(t, chunks, 3)

	for _, c := range chunks {
		assert.LessOrEqual(t, countTokens(c.Content), 4)
		assert.Equal(t, "Big", c.SectionHeading)
	}

	// Consecutive pieces start half a window back, sharing two tokens
	// with their predecessor.
	first := tokenize(chunks[1].Content)
	second := tokenize(chunks[2].Content)
	assert.Equal(t, "w0", strings.TrimSpace(first[0]))
	assert.Equal(t, "w2", strings.TrimSpace(second[0]))
}

func TestSplitWithOverlap_ReconstructsInput(t *testing.T) {
	text := "a b c d e f g h i j"
	opts := Options{ChunkSize: 4, OverlapRatio: 0.25}
	overlap := opts.overlapTokens()
	require.Equal(t, 1, overlap)

	pieces := splitWithOverlap(text, opts)
	require.Greater(t, len(pieces), 1)

	// Dropping the leading overlap of every piece after the first and
	// joining reconstructs the input.
	rebuilt := pieces[0]
	for _, p := range pieces[1:] {
		tokens := tokenize(p)
		rebuilt += join(tokens[overlap:])
	}
	assert.Equal(t, text, rebuilt)
}

func TestTokenize_PreservesWhitespace(t *testing.T) {
	for _, s := range []string{"a b", "a  b\t c\n", "  leading", "one"} {
		assert.Equal(t, s, join(tokenize(s)), "input %q", s)
	}
	assert.Nil(t, tokenize(""))
}
