package ingest

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeIDChars = regexp.MustCompile(`[^a-z0-9]+`)

// DocIDFor derives a stable document ID from a human-readable source
// name: lowercase, non-alphanumeric runs collapsed to single
// underscores. "Tank Armor v2.md" and "tank armor v2" map to the same ID.
func DocIDFor(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	id := unsafeIDChars.ReplaceAllString(strings.ToLower(base), "_")
	return strings.Trim(id, "_")
}

// PDFNameFor is the expected name of the PDF rendition of a document,
// kept on the document row so the external converter and the index
// agree on file identity.
func PDFNameFor(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + ".pdf"
}

// nameOf strips the directory and extension from a path to recover the
// document's display name.
func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// languageOf maps a source file extension to a language tag for the
// code_files table.
func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cs":
		return "csharp"
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".js":
		return "javascript"
	case ".py":
		return "python"
	case ".ts":
		return "typescript"
	default:
		return "unknown"
	}
}
