package retrieval

import (
	"strings"

	"github.com/aaronlee0321/gddsearch/internal/index"
)

const (
	docMarker     = "@document:"
	sectionMarker = "@section:"
)

// ParseQuery strips @document:<name> and @section:<heading> markers
// from a raw query and returns the cleaned query text plus the filter
// they encode. Marker values containing spaces must be double-quoted,
// e.g. @section:"Combat System". Unknown @-tokens pass through as
// query text.
func ParseQuery(raw string) (string, index.Filter) {
	var f index.Filter
	var kept []string

	rest := strings.TrimSpace(raw)
	for rest != "" {
		token, tail := nextToken(rest)
		rest = tail

		switch {
		case strings.HasPrefix(token, docMarker):
			f.DocID = unquote(token[len(docMarker):])
		case strings.HasPrefix(token, sectionMarker):
			f.Section = unquote(token[len(sectionMarker):])
		default:
			kept = append(kept, token)
		}
	}

	return strings.Join(kept, " "), f
}

// nextToken splits off the first whitespace-delimited token, keeping a
// double-quoted span after a marker colon intact.
func nextToken(s string) (string, string) {
	end := len(s)
	inQuote := false
	for i, r := range s {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && (r == ' ' || r == '\t') {
			end = i
			break
		}
	}
	return s[:end], strings.TrimLeft(s[end:], " \t")
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
