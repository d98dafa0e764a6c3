package chunker

import (
	"fmt"
	"strings"

	"github.com/studyforge/studyforge/internal/config"
)

// ChunkType classifies the dominant structure of a chunk.
type ChunkType string

const (
	TypeParagraph ChunkType = "paragraph"
	TypeHeading   ChunkType = "heading"
	TypeTable     ChunkType = "table"
	TypeCode      ChunkType = "code"
	TypeQuote     ChunkType = "quote"
)

// Metadata carries per-chunk statistics computed during chunking.
type Metadata struct {
	WordCount    int     `json:"word_count"`
	CharCount    int     `json:"char_count"`
	Significance float64 `json:"significance"`
}

// Chunk is a contiguous span of a source document. StartOffset and
// EndOffset delimit the chunk body within the original text; Content may
// additionally carry an overlap prefix taken from the preceding chunk.
type Chunk struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Type        ChunkType `json:"type"`
	Metadata    Metadata  `json:"metadata"`
}

// Options controls how a document is split.
type Options struct {
	MaxChunkTokens int
	OverlapTokens  int
	// Semantic splits on structural boundaries (headings, lists, code
	// fences). When false, fixed word windows are used instead.
	Semantic bool
	Analysis config.AnalysisLevel
	// Estimator approximates token counts. Nil uses CharEstimator.
	Estimator TokenEstimator
}

// DefaultOptions returns the options used when none are provided.
func DefaultOptions() Options {
	return Options{
		MaxChunkTokens: 512,
		OverlapTokens:  50,
		Semantic:       true,
		Analysis:       config.AnalysisDeep,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = def.MaxChunkTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = def.OverlapTokens
	}
	if o.Analysis == "" {
		o.Analysis = def.Analysis
	}
	return o
}

func (o Options) estimator() TokenEstimator {
	if o.Estimator != nil {
		return o.Estimator
	}
	return CharEstimator{}
}

// Result is the outcome of splitting one document.
type Result struct {
	Chunks  []Chunk  `json:"chunks"`
	Title   string   `json:"title"`
	Outline []string `json:"outline,omitempty"`
}

// Split divides text into chunks suitable for embedding. It never fails:
// if the structural pass cannot produce chunks, it falls back to fixed
// word windows.
func Split(text string, opts Options) *Result {
	opts = opts.withDefaults()
	res := &Result{}
	if strings.TrimSpace(text) == "" {
		return res
	}

	res.Title = extractTitle(text)
	if opts.Analysis == config.AnalysisDeep {
		res.Outline = extractOutline(text)
	}

	var chunks []Chunk
	if opts.Semantic {
		chunks = trySemantic(text, opts)
	}
	if len(chunks) == 0 {
		chunks = windowChunks(text, opts)
	}

	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("chunk-%d", i)
	}
	scoreChunks(chunks)

	res.Chunks = chunks
	return res
}

// trySemantic runs the structural pass, recovering from any panic so the
// caller can fall back to word windows.
func trySemantic(text string, opts Options) (chunks []Chunk) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
		}
	}()
	return semanticChunks(text, opts)
}

func semanticChunks(text string, opts Options) []Chunk {
	est := opts.estimator()
	secs := buildSections(scanLines(text))

	var chunks []Chunk
	for _, sec := range secs {
		body := text[sec.start:sec.end]
		if est.Estimate(body) <= opts.MaxChunkTokens {
			chunks = append(chunks, buildChunk(text, sec.start, sec.end, "", sec.kind))
			continue
		}
		chunks = append(chunks, splitSection(text, sec, opts)...)
	}
	return chunks
}

// splitSection breaks an oversized section into sentence-packed chunks.
// Each chunk after the first carries up to three trailing sentences of
// its predecessor as an overlap prefix, bounded by the overlap budget.
func splitSection(text string, sec section, opts Options) []Chunk {
	est := opts.estimator()
	body := text[sec.start:sec.end]
	sents := splitSentences(body)
	if len(sents) <= 1 {
		return []Chunk{buildChunk(text, sec.start, sec.end, "", sec.kind)}
	}

	var out []Chunk
	overlap := ""
	first := 0
	for first < len(sents) {
		last := first
		for last+1 < len(sents) {
			cand := body[sents[first].start:sents[last+1].end]
			if est.Estimate(overlap+cand) > opts.MaxChunkTokens {
				break
			}
			last++
		}
		out = append(out, buildChunk(text, sec.start+sents[first].start, sec.start+sents[last].end, overlap, sec.kind))
		overlap = sentenceOverlap(body, sents[first:last+1], est, opts.OverlapTokens)
		first = last + 1
	}
	return out
}

// windowChunks is the fallback path: fixed word windows packed up to the
// token budget, with a word-level overlap between consecutive windows.
func windowChunks(text string, opts Options) []Chunk {
	est := opts.estimator()
	words := fieldSpans(text)
	if len(words) == 0 {
		return nil
	}

	var out []Chunk
	overlap := ""
	first := 0
	for first < len(words) {
		last := first
		for last+1 < len(words) {
			cand := text[words[first].start:words[last+1].end]
			if est.Estimate(overlap+cand) > opts.MaxChunkTokens {
				break
			}
			last++
		}
		out = append(out, buildChunk(text, words[first].start, words[last].end, overlap, kindText))
		overlap = wordOverlap(text, words[first:last+1], est, opts.OverlapTokens)
		first = last + 1
	}
	return out
}

func buildChunk(text string, start, end int, overlap string, kind lineKind) Chunk {
	body := text[start:end]
	content := body
	if overlap != "" {
		if !strings.HasSuffix(overlap, " ") && !strings.HasSuffix(overlap, "\n") {
			overlap += " "
		}
		content = overlap + body
	}
	return Chunk{
		Content:     content,
		StartOffset: start,
		EndOffset:   end,
		Type:        kind.chunkType(),
		Metadata: Metadata{
			WordCount: len(strings.Fields(content)),
			CharCount: len(content),
		},
	}
}

// maxOverlapSentences caps how many trailing sentences carry over.
const maxOverlapSentences = 3

func sentenceOverlap(body string, sents []span, est TokenEstimator, budget int) string {
	if budget <= 0 || len(sents) == 0 {
		return ""
	}
	take := len(sents)
	if take > maxOverlapSentences {
		take = maxOverlapSentences
	}
	for take > 0 {
		cand := body[sents[len(sents)-take].start:sents[len(sents)-1].end]
		if est.Estimate(cand) <= budget {
			return cand
		}
		take--
	}
	return ""
}

func wordOverlap(text string, words []span, est TokenEstimator, budget int) string {
	if budget <= 0 || len(words) == 0 {
		return ""
	}
	j := len(words)
	for j > 0 {
		cand := text[words[j-1].start:words[len(words)-1].end]
		if est.Estimate(cand) > budget {
			break
		}
		j--
	}
	if j == len(words) {
		return ""
	}
	return text[words[j].start:words[len(words)-1].end]
}

// span is a half-open byte range within some string.
type span struct {
	start, end int
}

// splitSentences splits s into spans that exactly tile it. A sentence
// ends after terminal punctuation followed by whitespace; the whitespace
// is consumed into the sentence so spans remain contiguous.
func splitSentences(s string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '.' && c != '!' && c != '?' {
			i++
			continue
		}
		j := i + 1
		for j < len(s) && (s[j] == '.' || s[j] == '!' || s[j] == '?') {
			j++
		}
		k := j
		for k < len(s) && isSpace(s[k]) {
			k++
		}
		// "3.14" has no whitespace after the dot and is not a boundary.
		if k == j && j < len(s) {
			i = j
			continue
		}
		spans = append(spans, span{start, k})
		start = k
		i = k
	}
	if start < len(s) {
		spans = append(spans, span{start, len(s)})
	}
	return spans
}

// fieldSpans returns the byte ranges of whitespace-separated words.
func fieldSpans(s string) []span {
	var spans []span
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || isSpace(s[i]) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return spans
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
