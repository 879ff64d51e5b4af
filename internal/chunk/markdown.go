package chunk

import (
	"regexp"
	"strings"
)

// headingRe matches ATX headings ("# Title" through "###### Title").
var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)

// section is a heading-delimited region of a markdown document.
// text includes the heading line itself so concatenating section texts
// reproduces the document.
type section struct {
	heading string
	text    string
}

// Markdown splits markdown text into section-aware chunks. Every chunk
// is tagged with the nearest enclosing heading; content preceding the
// first heading carries an empty heading. Splitting never crosses a
// heading boundary unless a single section exceeds the chunk size, in
// which case it is split at whitespace with the configured overlap.
//
// Empty input yields an empty slice, not an error.
func Markdown(docID, text string, opts Options) []Chunk {
	opts = opts.withDefaults()
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	var chunks []Chunk
	for _, sec := range splitSections(text) {
		for _, piece := range splitWithOverlap(sec.text, opts) {
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				ID:             chunkID(docID, idx),
				DocID:          docID,
				Index:          idx,
				SectionHeading: sec.heading,
				Content:        piece,
				Type:           TypeDocument,
			})
		}
	}
	return chunks
}

// splitSections partitions text at heading lines. The concatenation of
// all section texts equals the input.
func splitSections(text string) []section {
	lines := splitLines(text)

	var sections []section
	current := section{}
	flush := func() {
		if current.text != "" {
			sections = append(sections, current)
		}
	}

	for _, line := range lines {
		if m := headingRe.FindStringSubmatch(strings.TrimRight(line, "\n")); m != nil {
			flush()
			current = section{heading: m[2], text: line}
			continue
		}
		current.text += line
	}
	flush()
	return sections
}

// splitLines splits text into lines, each retaining its trailing newline.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
