// Package chunk splits normalized text into deterministic, content-addressed
// chunks. Chunking is a pure function of (text, config): the same input bytes
// and configuration always produce the same chunk ids, across processes and
// platforms.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Sizing defaults.
const (
	DefaultMaxChars           = 2000
	DefaultMinChars           = 100
	DefaultOverlapChars       = 200
	DefaultParentContextChars = 200

	// TokensPerChar is the rough approximation used for token estimates:
	// 4 chars = 1 token.
	TokensPerChar = 4
)

// Strategy selects the splitting algorithm.
type Strategy string

const (
	StrategyFixed        Strategy = "fixed"
	StrategyParagraph    Strategy = "paragraph"
	StrategyHeading      Strategy = "heading"
	StrategyPage         Strategy = "page"
	StrategySentence     Strategy = "sentence"
	StrategyRecursive    Strategy = "recursive"
	StrategyHierarchical Strategy = "hierarchical"
)

// DefaultSeparators is the default separator hierarchy for the recursive
// strategy, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Config controls chunking behavior. The zero value is not usable; call
// (*Config).ApplyDefaults or use DefaultConfig.
type Config struct {
	Strategy           Strategy `json:"strategy" yaml:"strategy"`
	MaxChars           int      `json:"max_chars" yaml:"max_chars"`
	MinChars           int      `json:"min_chars" yaml:"min_chars"`
	OverlapChars       int      `json:"overlap_chars" yaml:"overlap_chars"`
	Separators         []string `json:"separators,omitempty" yaml:"separators,omitempty"`
	CreateParentChunks bool     `json:"create_parent_chunks" yaml:"create_parent_chunks"`
	ParentContextChars int      `json:"parent_context_chars" yaml:"parent_context_chars"`
}

// DefaultConfig returns the default recursive configuration. Callers that
// read chunking options from a file should unmarshal onto this value so that
// omitted fields inherit the defaults while an explicit overlap_chars of 0
// stays 0.
func DefaultConfig() Config {
	cfg := Config{Strategy: StrategyRecursive, OverlapChars: DefaultOverlapChars}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with defaults. OverlapChars is left alone:
// zero is a meaningful setting, and page, heading, and fixed splits are
// structural and never carry overlap anyway.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyRecursive
	}
	if c.MaxChars == 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.MinChars == 0 {
		c.MinChars = DefaultMinChars
	}
	if len(c.Separators) == 0 {
		c.Separators = DefaultSeparators
	}
	if c.ParentContextChars == 0 {
		c.ParentContextChars = DefaultParentContextChars
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyFixed, StrategyParagraph, StrategyHeading, StrategyPage,
		StrategySentence, StrategyRecursive, StrategyHierarchical:
	default:
		return fmt.Errorf("unknown chunking strategy %q", c.Strategy)
	}
	if c.MaxChars <= 0 {
		return fmt.Errorf("max_chars must be positive, got %d", c.MaxChars)
	}
	if c.MinChars < 0 || c.MinChars > c.MaxChars {
		return fmt.Errorf("min_chars must be in [0,max_chars], got %d", c.MinChars)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChars {
		return fmt.Errorf("overlap_chars must be in [0,max_chars), got %d", c.OverlapChars)
	}
	return nil
}

// Position locates a chunk within its source document. Byte offsets refer to
// the normalized text (CRLF folded to LF).
type Position struct {
	ByteStart int    `json:"byte_start"`
	ByteEnd   int    `json:"byte_end"`
	Page      *int   `json:"page,omitempty"`
	Heading   string `json:"heading,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
}

// Hierarchy links a child chunk to its parent section.
type Hierarchy struct {
	ParentID      string `json:"parent_id,omitempty"`
	ParentContext string `json:"parent_context,omitempty"`
	Level         int    `json:"hierarchy_level"`
}

// Metadata carries descriptive fields used by retrieval filters.
type Metadata struct {
	ContentType string            `json:"content_type,omitempty"`
	Language    string            `json:"language,omitempty"`
	Title       string            `json:"title,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// Chunk is a bounded span of normalized text with a stable id.
type Chunk struct {
	ID         string    `json:"chunk_id"`
	DocID      string    `json:"doc_id"`
	SourceID   string    `json:"source_id,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TextHash   string    `json:"text_hash"`
	CharCount  int       `json:"char_count"`
	TokenCount int       `json:"token_count"`
	Position   Position  `json:"position"`
	Hierarchy  Hierarchy `json:"hierarchy"`
	Metadata   Metadata  `json:"metadata"`
}

// DocID returns the document id for raw source bytes: lowercase hex SHA-256.
func DocID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ID derives a chunk id from its document id and byte range. The id depends
// only on (doc_id, byte_start, byte_end): reprocessing identical bytes yields
// identical ids.
func ID(docID string, byteStart, byteEnd int) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.Itoa(byteStart)))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.Itoa(byteEnd)))
	return hex.EncodeToString(h.Sum(nil))
}

// TextHash returns the lowercase hex SHA-256 of a chunk's text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EstimateTokens approximates token count as chars/4, minimum 1 for
// non-empty text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / TokensPerChar
	if n == 0 {
		n = 1
	}
	return n
}
