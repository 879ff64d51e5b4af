// Package chunk splits raw document and source-code text into
// retrievable units.
//
// Markdown is split on ATX headings, source code on declaration
// boundaries. A unit that exceeds the configured chunk size is split at
// whitespace with a token overlap between consecutive sub-chunks, so no
// split crosses a structural boundary unless a single unit is itself too
// large.
package chunk

import "fmt"

// Type tags the kind of construct a chunk was derived from.
type Type string

const (
	// TypeDocument is a prose chunk from a markdown document.
	TypeDocument Type = "document"

	// TypeClass is a full class/struct/interface declaration.
	TypeClass Type = "class"

	// TypeMethod is a single method or function body.
	TypeMethod Type = "method"

	// TypeFields is a group of field/property declarations.
	TypeFields Type = "fields"
)

// Chunk is one retrievable unit of a document or source file.
type Chunk struct {
	ID             string // "<doc_id>_chunk_NNN", unique across the index
	DocID          string
	Index          int    // insertion order within the document
	SectionHeading string // nearest enclosing heading, or declaration name for code
	Content        string
	Type           Type
	ClassName      string // code only
	MethodName     string // code only
}

// Options configures chunk sizing.
type Options struct {
	// ChunkSize is the target maximum chunk size in tokens
	// (whitespace-delimited). Default 500.
	ChunkSize int

	// OverlapRatio is the fraction of ChunkSize carried over between
	// consecutive sub-chunks of an oversized unit. Default 0.15.
	OverlapRatio float64
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 500
	}
	if o.OverlapRatio < 0 || o.OverlapRatio >= 1 {
		o.OverlapRatio = 0.15
	}
	return o
}

// overlapTokens returns the number of tokens shared between consecutive
// sub-chunks.
func (o Options) overlapTokens() int {
	n := int(float64(o.ChunkSize) * o.OverlapRatio)
	if n >= o.ChunkSize {
		n = o.ChunkSize - 1
	}
	return n
}

// chunkID formats the globally unique chunk identifier.
// The zero-padded ordinal keeps lexicographic and insertion order aligned.
func chunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%03d", docID, index)
}

// tokenize splits s into tokens that each carry their trailing
// whitespace, so joining the tokens reproduces s exactly. A token is a
// maximal run of non-space characters plus the following run of spaces.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	start := 0
	inSpace := isSpace(s[0])
	for i := 1; i < len(s); i++ {
		sp := isSpace(s[i])
		// A token boundary is a space→non-space transition.
		if inSpace && !sp {
			tokens = append(tokens, s[start:i])
			start = i
		}
		inSpace = sp
	}
	tokens = append(tokens, s[start:])
	return tokens
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// countTokens returns the number of whitespace-delimited tokens in s.
func countTokens(s string) int {
	return len(tokenize(s))
}

// splitWithOverlap splits text into pieces of at most opts.ChunkSize
// tokens, each sharing overlapTokens() tokens with its predecessor.
// Joining the pieces with the leading overlap of every piece after the
// first removed reconstructs text exactly.
func splitWithOverlap(text string, opts Options) []string {
	tokens := tokenize(text)
	if len(tokens) <= opts.ChunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	overlap := opts.overlapTokens()
	step := opts.ChunkSize - overlap

	var pieces []string
	for start := 0; start < len(tokens); start += step {
		end := start + opts.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		pieces = append(pieces, join(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return pieces
}

func join(tokens []string) string {
	n := 0
	for _, t := range tokens {
		n += len(t)
	}
	b := make([]byte, 0, n)
	for _, t := range tokens {
		b = append(b, t...)
	}
	return string(b)
}
