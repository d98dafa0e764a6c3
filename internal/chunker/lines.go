package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// lineKind is the structural class of a single source line.
type lineKind int

const (
	kindText lineKind = iota
	kindHeading
	kindList
	kindCode
	kindQuote
	kindTable
	kindBlank
)

func (k lineKind) chunkType() ChunkType {
	switch k {
	case kindHeading:
		return TypeHeading
	case kindCode:
		return TypeCode
	case kindQuote:
		return TypeQuote
	case kindTable:
		return TypeTable
	default:
		return TypeParagraph
	}
}

// line is one source line with its byte span (newline excluded).
type line struct {
	start, end int
	kind       lineKind
}

// scanLines splits text into classified lines, tracking code fence state
// so fenced content classifies as code regardless of its shape.
func scanLines(text string) []line {
	var lines []line
	start := 0
	inFence := false
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' {
			continue
		}
		if i > start || i < len(text) {
			t := strings.TrimSpace(text[start:i])
			var kind lineKind
			isFence := strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
			switch {
			case inFence:
				kind = kindCode
				if isFence {
					inFence = false
				}
			case isFence:
				kind = kindCode
				inFence = true
			default:
				kind = classifyLine(t)
			}
			lines = append(lines, line{start: start, end: i, kind: kind})
		}
		start = i + 1
	}
	return lines
}

// classifyLine decides the structural class of a trimmed, unfenced line.
func classifyLine(t string) lineKind {
	switch {
	case t == "":
		return kindBlank
	case strings.HasPrefix(t, "#"):
		return kindHeading
	case strings.HasPrefix(t, ">"):
		return kindQuote
	case strings.Count(t, "|") >= 2:
		return kindTable
	case isListLine(t):
		return kindList
	case isBraceLine(t):
		return kindCode
	case looksLikeHeading(t):
		return kindHeading
	default:
		return kindText
	}
}

func isListLine(t string) bool {
	if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ") {
		return true
	}
	// Ordered lists: "1. " or "1) ".
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(t)-1 {
		return false
	}
	return (t[i] == '.' || t[i] == ')') && t[i+1] == ' '
}

func isBraceLine(t string) bool {
	return t == "{" || t == "}" || strings.HasSuffix(t, "{")
}

// looksLikeHeading reports whether a plain line reads as a section title:
// short, capitalized, without terminal punctuation, and not containing a
// sentence break (which marks wrapped prose, not a title).
func looksLikeHeading(t string) bool {
	if t == "" || len(t) >= 60 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(t)
	if !unicode.IsUpper(r) {
		return false
	}
	switch t[len(t)-1] {
	case '.', '!', '?', ',', ';', ':':
		return false
	}
	if strings.Contains(t, ". ") {
		return false
	}
	return len(strings.Fields(t)) <= 8
}

// section groups contiguous same-kind lines. Blank lines end a section.
type section struct {
	kind       lineKind
	start, end int
}

func buildSections(lines []line) []section {
	var secs []section
	open := false
	for _, ln := range lines {
		if ln.kind == kindBlank {
			open = false
			continue
		}
		if open && secs[len(secs)-1].kind == ln.kind {
			secs[len(secs)-1].end = ln.end
			continue
		}
		secs = append(secs, section{kind: ln.kind, start: ln.start, end: ln.end})
		open = true
	}
	return secs
}

const (
	titleMinLen    = 5
	titleMaxLen    = 100
	titleScanLines = 5
)

// extractTitle returns the first plausible title among the opening lines,
// with markdown heading markers stripped.
func extractTitle(text string) string {
	lines := strings.SplitN(text, "\n", titleScanLines+1)
	n := len(lines)
	if n > titleScanLines {
		n = titleScanLines
	}
	for i := 0; i < n; i++ {
		t := strings.TrimSpace(lines[i])
		t = strings.TrimSpace(strings.TrimLeft(t, "#"))
		if len(t) > titleMinLen && len(t) < titleMaxLen {
			return t
		}
	}
	return ""
}

// extractOutline collects document headings in order: markdown headings
// plus plain lines that read as section titles. Fenced code is skipped.
func extractOutline(text string) []string {
	var outline []string
	inFence := false
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || t == "" {
			continue
		}
		if strings.HasPrefix(t, "#") {
			if h := strings.TrimSpace(strings.TrimLeft(t, "#")); h != "" {
				outline = append(outline, h)
			}
			continue
		}
		if classifyLine(t) == kindHeading {
			outline = append(outline, t)
		}
	}
	return outline
}
