package chunk

import (
	"strings"
	"unicode/utf8"
)

// Splitter converts a document's normalized text into chunks according to a
// fixed configuration. Splitters are stateless and safe for concurrent use.
type Splitter struct {
	cfg Config
}

// NewSplitter validates the configuration and returns a Splitter.
func NewSplitter(cfg Config) (*Splitter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's effective configuration.
func (s *Splitter) Config() Config {
	return s.cfg
}

// Normalize folds CRLF and lone CR to LF. Chunk byte offsets always refer to
// normalized text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// span is an intermediate chunk: a byte range plus optional structure.
type span struct {
	start, end int
	overlap    string // prefix carried from the previous chunk
	heading    string
	page       *int
	level      int
	parentIdx  int // index of the parent span in the emitted sequence, -1 if none
	parentCtx  string
	isParent   bool
}

// Split chunks a document. docID must be the SHA-256 of the raw source bytes;
// text is the extracted document text (normalized internally). The returned
// slice is in deterministic order and chunk ids are stable across runs.
func (s *Splitter) Split(docID, text string, meta Metadata) ([]*Chunk, error) {
	normalized := Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, nil
	}

	var spans []span
	switch s.cfg.Strategy {
	case StrategyFixed:
		spans = s.fixedSpans(normalized)
	case StrategyParagraph, StrategyHeading, StrategyPage, StrategySentence:
		spans = s.boundarySpans(normalized, boundaryForStrategy(s.cfg.Strategy))
	case StrategyRecursive:
		spans = s.recursiveSpans(normalized, 0, s.cfg.Separators)
		spans = s.applyOverlap(normalized, spans)
	case StrategyHierarchical:
		spans = s.hierarchicalSpans(normalized)
	}

	return s.assemble(docID, normalized, meta, spans), nil
}

// assemble materializes spans into chunks, resolving parent references and
// computing ids, hashes, and line numbers.
func (s *Splitter) assemble(docID, text string, meta Metadata, spans []span) []*Chunk {
	chunks := make([]*Chunk, 0, len(spans))
	for i, sp := range spans {
		body := text[sp.start:sp.end]
		full := sp.overlap + body

		c := &Chunk{
			ID:         ID(docID, sp.start, sp.end),
			DocID:      docID,
			ChunkIndex: i,
			Text:       full,
			TextHash:   TextHash(full),
			CharCount:  utf8.RuneCountInString(full),
			TokenCount: EstimateTokens(full),
			Position: Position{
				ByteStart: sp.start,
				ByteEnd:   sp.end,
				Page:      sp.page,
				Heading:   sp.heading,
				LineStart: strings.Count(text[:sp.start], "\n") + 1,
				LineEnd:   strings.Count(text[:sp.end], "\n") + 1,
			},
			Hierarchy: Hierarchy{Level: sp.level},
			Metadata:  meta,
		}
		if sp.parentIdx >= 0 && sp.parentIdx < len(chunks) {
			c.Hierarchy.ParentID = chunks[sp.parentIdx].ID
			c.Hierarchy.ParentContext = sp.parentCtx
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// applyOverlap prepends the tail of each chunk to its successor. The overlap
// is always the final overlap_chars bytes of the previous chunk's unprefixed
// text, cut at a rune boundary, regardless of separator width.
func (s *Splitter) applyOverlap(text string, spans []span) []span {
	if s.cfg.OverlapChars <= 0 {
		return spans
	}
	for i := 1; i < len(spans); i++ {
		prev := text[spans[i-1].start:spans[i-1].end]
		spans[i].overlap = tailRuneSafe(prev, s.cfg.OverlapChars)
	}
	return spans
}

// fixedSpans cuts non-overlapping windows of exactly MaxChars runes; the last
// window may be short.
func (s *Splitter) fixedSpans(text string) []span {
	var spans []span
	start := 0
	count := 0
	for i := range text {
		if count == s.cfg.MaxChars {
			spans = append(spans, span{start: start, end: i, parentIdx: -1})
			start = i
			count = 0
		}
		count++
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text), parentIdx: -1})
	}
	return spans
}

// tailRuneSafe returns the suffix of text at most n bytes long, trimmed
// forward to the nearest rune boundary.
func tailRuneSafe(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := len(text) - n
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return text[cut:]
}

// headRuneSafe returns the prefix of text at most n bytes long, trimmed
// backward to the nearest rune boundary.
func headRuneSafe(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
