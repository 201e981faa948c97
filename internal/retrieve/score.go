package retrieve

import (
	"math"
	"sort"
	"strings"
)

// scored pairs a chunk index with a score during ranking.
type scored struct {
	idx   int
	score float64
}

// rankScored sorts by descending score, breaking ties by ascending chunk id
// so rankings are stable across runs.
func (e *Engine) rankScored(list []scored) {
	sort.Slice(list, func(a, b int) bool {
		if list[a].score != list[b].score {
			return list[a].score > list[b].score
		}
		return e.chunks[list[a].idx].ID < e.chunks[list[b].idx].ID
	})
}

// cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// semanticCandidates scores every allowed chunk with a vector against the
// query vector and returns the top limit, ranked.
func (e *Engine) semanticCandidates(queryVec []float32, allowed func(int) bool, limit int) []scored {
	if e.ann != nil {
		return e.ann.search(e, queryVec, allowed, limit)
	}

	var list []scored
	for i := range e.chunks {
		if e.vectors[i] == nil || !allowed(i) {
			continue
		}
		list = append(list, scored{idx: i, score: cosine(queryVec, e.vectors[i])})
	}
	e.rankScored(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// keywordTokens lowercases whitespace-separated query terms and drops those
// shorter than three characters. When every term is short the filter would
// empty the query, so all terms are kept instead; a query like "bb" still
// matches chunks containing "bb".
func keywordTokens(query string) []string {
	fields := strings.Fields(query)
	var tokens []string
	for _, tok := range fields {
		tok = strings.ToLower(tok)
		if len(tok) >= MinKeywordTokenLen {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		for _, tok := range fields {
			tokens = append(tokens, strings.ToLower(tok))
		}
	}
	return tokens
}

// keywordScore counts case-insensitive term occurrences, normalised by the
// square root of the text length.
func keywordScore(tokens []string, text string) float64 {
	if len(tokens) == 0 || len(text) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, tok := range tokens {
		matches += strings.Count(lower, tok)
	}
	if matches == 0 {
		return 0
	}
	return float64(matches) / math.Sqrt(float64(len(text)))
}

// keywordBackend produces ranked keyword candidates.
type keywordBackend interface {
	candidates(e *Engine, query string, allowed func(int) bool, limit int) []scored
}

// nativeKeyword is the exact scoring contract: sum of term matches over
// sqrt(text length).
type nativeKeyword struct{}

func (nativeKeyword) candidates(e *Engine, query string, allowed func(int) bool, limit int) []scored {
	tokens := keywordTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var list []scored
	for i := range e.chunks {
		if !allowed(i) {
			continue
		}
		if s := keywordScore(tokens, e.chunks[i].Text); s > 0 {
			list = append(list, scored{idx: i, score: s})
		}
	}
	e.rankScored(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
