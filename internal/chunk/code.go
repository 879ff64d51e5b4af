package chunk

import (
	"regexp"
	"strings"
)

// classRe matches class-like declarations (C#, Java and friends).
var classRe = regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|abstract|sealed|static|partial|final)\s+)*(?:class|struct|interface)\s+([A-Za-z_]\w*)`)

// methodRe matches method declarations: optional modifiers, a return
// type, a name and a parameter list. Control-flow statements are
// excluded separately via controlKeywords.
var methodRe = regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|static|virtual|override|abstract|sealed|async|final)\s+)*[A-Za-z_][\w<>,.\[\] ]*\s+([A-Za-z_]\w*)\s*\(`)

// goFuncRe matches Go function and method declarations.
var goFuncRe = regexp.MustCompile(`^func\s+(?:\(\s*\w+\s+\*?([A-Za-z_]\w*)\s*\)\s*)?([A-Za-z_]\w*)\s*\(`)

// controlKeywords are statement openers that methodRe would otherwise
// mistake for declarations.
var controlKeywords = map[string]bool{
	"if": true, "for": true, "foreach": true, "while": true,
	"switch": true, "catch": true, "using": true, "return": true,
	"new": true, "else": true, "do": true, "lock": true,
}

// Code splits source code into declaration-aware chunks: one chunk per
// class (full source), one per method body, and one per contiguous group
// of field declarations. Chunks are tagged with their construct kind so
// retrieval can filter by it. Oversized units are split at whitespace
// with the configured overlap, like markdown sections.
//
// Empty input yields an empty slice, not an error.
func Code(docID, source string, opts Options) []Chunk {
	opts = opts.withDefaults()
	if strings.TrimSpace(source) == "" {
		return []Chunk{}
	}

	units := scanUnits(source)

	var chunks []Chunk
	for _, u := range units {
		heading := u.methodName
		if heading == "" {
			heading = u.className
		}
		for _, piece := range splitWithOverlap(u.text, opts) {
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				ID:             chunkID(docID, idx),
				DocID:          docID,
				Index:          idx,
				SectionHeading: heading,
				Content:        piece,
				Type:           u.kind,
				ClassName:      u.className,
				MethodName:     u.methodName,
			})
		}
	}
	return chunks
}

// unit is a single declaration-level region of a source file.
type unit struct {
	kind       Type
	className  string
	methodName string
	text       string
}

// scanUnits walks the source line by line, tracking brace depth to find
// class, method and field-group boundaries.
func scanUnits(source string) []unit {
	lines := splitLines(source)

	var units []unit
	var currentClass string
	classDepth := -1     // brace depth of the current class body
	classOpened := false // class body's opening brace seen
	depth := 0

	var classBuf strings.Builder // full class source for the class chunk
	var methodBuf strings.Builder
	var methodName string
	methodDepth := -1 // depth before the method body opened

	var fieldBuf strings.Builder

	flushFields := func() {
		if strings.TrimSpace(fieldBuf.String()) != "" {
			units = append(units, unit{
				kind:      TypeFields,
				className: currentClass,
				text:      fieldBuf.String(),
			})
		}
		fieldBuf.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\n"))
		opens := strings.Count(line, "{")
		closes := strings.Count(line, "}")

		inMethod := methodDepth >= 0
		inClass := currentClass != ""

		switch {
		case inMethod:
			methodBuf.WriteString(line)

		case classMatch(trimmed) != "" && !inClass:
			currentClass = classMatch(trimmed)
			classDepth = depth
			classOpened = false
			classBuf.Reset()
			classBuf.WriteString(line)

		case inClass && isMethodDecl(trimmed):
			flushFields()
			methodName = methodDeclName(trimmed)
			methodDepth = depth
			methodBuf.Reset()
			methodBuf.WriteString(line)
			classBuf.WriteString(line)

		case !inClass && goFuncRe.MatchString(trimmed):
			m := goFuncRe.FindStringSubmatch(trimmed)
			methodName = m[2]
			currentClass = "" // top-level Go func; receiver type recorded below
			methodDepth = depth
			methodBuf.Reset()
			methodBuf.WriteString(line)
			if m[1] != "" {
				currentClass = m[1]
			}

		case inClass:
			classBuf.WriteString(line)
			// Field and property declarations accumulate at class-body
			// depth; braces and blank lines break nothing.
			if trimmed != "" && trimmed != "{" && trimmed != "}" && depth == classDepth+1 {
				fieldBuf.WriteString(line)
			} else if trimmed == "" {
				flushFields()
			}
		}

		if inMethod {
			classBuf.WriteString(line)
		}

		depth += opens - closes

		if classDepth >= 0 && depth > classDepth {
			classOpened = true
		}

		// Method body closed?
		if methodDepth >= 0 && depth <= methodDepth && (opens > 0 || closes > 0 || strings.HasSuffix(trimmed, ";")) {
			goClass := ""
			if goFuncRe.MatchString(strings.TrimSpace(methodBuf.String())) {
				goClass = currentClass
			}
			units = append(units, unit{
				kind:       TypeMethod,
				className:  pickClass(goClass, currentClass),
				methodName: methodName,
				text:       methodBuf.String(),
			})
			if goClass != "" && classDepth < 0 {
				currentClass = "" // receiver scope ends with the func
			}
			methodDepth = -1
			methodName = ""
		}

		// Class body closed? Only meaningful once the opening brace has
		// been seen: the declaration and the brace may sit on separate
		// lines.
		if currentClass != "" && classDepth >= 0 && classOpened && depth <= classDepth {
			flushFields()
			units = append(units, unit{
				kind:      TypeClass,
				className: currentClass,
				text:      classBuf.String(),
			})
			currentClass = ""
			classDepth = -1
			classOpened = false
		}
	}

	// Unterminated trailing state (truncated files) still yields units.
	if methodDepth >= 0 {
		units = append(units, unit{
			kind:       TypeMethod,
			className:  currentClass,
			methodName: methodName,
			text:       methodBuf.String(),
		})
	}
	if currentClass != "" && classDepth >= 0 {
		flushFields()
		units = append(units, unit{
			kind:      TypeClass,
			className: currentClass,
			text:      classBuf.String(),
		})
	}

	return units
}

func classMatch(line string) string {
	if m := classRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func isMethodDecl(line string) bool {
	m := methodRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	first := strings.Fields(line)
	return len(first) > 0 && !controlKeywords[strings.TrimSuffix(first[0], "(")]
}

func methodDeclName(line string) string {
	if m := methodRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func pickClass(goClass, current string) string {
	if goClass != "" {
		return goClass
	}
	return current
}
