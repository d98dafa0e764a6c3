package chunker

import "strings"

// importanceKeywords mark chunks that likely carry study-relevant content.
var importanceKeywords = []string{
	"important",
	"key",
	"critical",
	"essential",
	"note",
	"remember",
	"must",
	"warning",
	"definition",
	"theorem",
	"conclusion",
	"summary",
}

// scoreChunks assigns each chunk a significance in [0,1]: base 0.5, +0.3
// for headings, up to +0.2 proportional to length relative to the mean
// chunk length, +0.1 when an importance keyword appears.
func scoreChunks(chunks []Chunk) {
	if len(chunks) == 0 {
		return
	}

	total := 0
	for _, c := range chunks {
		total += c.Metadata.CharCount
	}
	mean := float64(total) / float64(len(chunks))

	for i := range chunks {
		score := 0.5
		if chunks[i].Type == TypeHeading {
			score += 0.3
		}
		if mean > 0 {
			ratio := float64(chunks[i].Metadata.CharCount) / mean
			if ratio > 1 {
				ratio = 1
			}
			score += 0.2 * ratio
		}
		if hasImportanceKeyword(chunks[i].Content) {
			score += 0.1
		}
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		chunks[i].Metadata.Significance = score
	}
}

func hasImportanceKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
