package retrieve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Filter is one predicate. Filters on a query are a conjunction.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// FilterProfile declares which fields queries may filter on and with which
// operators. Anything outside the profile fails with InvalidFilter.
type FilterProfile map[string][]Op

func (p FilterProfile) isZero() bool { return len(p) == 0 }

// DefaultFilterProfile covers the built-in metadata fields. Custom fields
// (custom.<key>) allow equality and membership tests.
func DefaultFilterProfile() FilterProfile {
	eqOps := []Op{OpEq, OpNeq, OpIn}
	return FilterProfile{
		"source_id":       eqOps,
		"doc_id":          eqOps,
		"content_type":    eqOps,
		"language":        eqOps,
		"title":           {OpEq, OpNeq, OpIn, OpContains},
		"tags":            {OpContains, OpIn},
		"hierarchy_level": {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte},
		"chunk_index":     {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte},
		"custom.*":        {OpEq, OpNeq, OpIn},
	}
}

// filterPredicate validates the filters against the profile and compiles
// them into one conjunction over chunk indices.
func (e *Engine) filterPredicate(filters []Filter) (func(int) bool, error) {
	if len(filters) == 0 {
		return func(int) bool { return true }, nil
	}

	for _, f := range filters {
		if err := e.profile.check(f); err != nil {
			return nil, err
		}
	}

	return func(i int) bool {
		c := &e.chunks[i]
		for _, f := range filters {
			if !matchFilter(c, f) {
				return false
			}
		}
		return true
	}, nil
}

func (p FilterProfile) check(f Filter) error {
	field := f.Field
	if strings.HasPrefix(field, "custom.") {
		field = "custom.*"
	}
	ops, ok := p[field]
	if !ok {
		return ferrors.Newf(ferrors.CodeInvalidFilter,
			"field %q is not filterable", f.Field).
			WithDetail("field", f.Field)
	}
	for _, op := range ops {
		if op == f.Op {
			return nil
		}
	}
	return ferrors.Newf(ferrors.CodeInvalidFilter,
		"operator %q is not allowed on field %q", f.Op, f.Field).
		WithDetail("field", f.Field).
		WithDetail("op", string(f.Op))
}

// matchFilter evaluates one predicate against one chunk.
func matchFilter(c *chunk.Chunk, f Filter) bool {
	switch f.Field {
	case "tags":
		return matchList(c.Metadata.Tags, f)
	case "hierarchy_level":
		return matchNumber(float64(c.Hierarchy.Level), f)
	case "chunk_index":
		return matchNumber(float64(c.ChunkIndex), f)
	}

	var val string
	switch {
	case f.Field == "source_id":
		val = c.SourceID
	case f.Field == "doc_id":
		val = c.DocID
	case f.Field == "content_type":
		val = c.Metadata.ContentType
	case f.Field == "language":
		val = c.Metadata.Language
	case f.Field == "title":
		val = c.Metadata.Title
	case strings.HasPrefix(f.Field, "custom."):
		val = c.Metadata.Custom[strings.TrimPrefix(f.Field, "custom.")]
	default:
		return false
	}
	return matchString(val, f)
}

func matchString(val string, f Filter) bool {
	switch f.Op {
	case OpEq:
		return val == asString(f.Value)
	case OpNeq:
		return val != asString(f.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(val), strings.ToLower(asString(f.Value)))
	case OpIn:
		for _, want := range asStrings(f.Value) {
			if val == want {
				return true
			}
		}
		return false
	}
	return false
}

// matchList applies contains (membership of one value) and in (non-empty
// intersection) to a string list field.
func matchList(vals []string, f Filter) bool {
	switch f.Op {
	case OpContains:
		want := asString(f.Value)
		for _, v := range vals {
			if v == want {
				return true
			}
		}
	case OpIn:
		for _, want := range asStrings(f.Value) {
			for _, v := range vals {
				if v == want {
					return true
				}
			}
		}
	}
	return false
}

func matchNumber(val float64, f Filter) bool {
	want, ok := asNumber(f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return val == want
	case OpNeq:
		return val != want
	case OpGt:
		return val > want
	case OpGte:
		return val >= want
	case OpLt:
		return val < want
	case OpLte:
		return val <= want
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
