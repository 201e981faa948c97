package chunk

import (
	"regexp"
	"strings"
)

// boundary identifies a structural split level, coarsest first. Fragments
// always include their trailing separator so that concatenating fragment
// texts in order recovers the source.
type boundary int

const (
	boundaryPage boundary = iota
	boundaryHeading
	boundaryParagraph
	boundarySentence
	boundaryNone // fall back to fixed-size windows
)

var atxHeadingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)

func boundaryForStrategy(st Strategy) boundary {
	switch st {
	case StrategyPage:
		return boundaryPage
	case StrategyHeading:
		return boundaryHeading
	case StrategySentence:
		return boundarySentence
	default:
		return boundaryParagraph
	}
}

// finer returns the next finer boundary used to re-split oversized fragments.
func (b boundary) finer() boundary {
	switch b {
	case boundaryPage, boundaryHeading:
		return boundaryParagraph
	case boundaryParagraph:
		return boundarySentence
	default:
		return boundaryNone
	}
}

// frag is a contiguous byte range of the source text.
type frag struct {
	start, end int
}

func (f frag) len() int { return f.end - f.start }

// boundarySpans splits on the given boundary, merges fragments shorter than
// MinChars into their predecessor, and re-splits merged fragments exceeding
// MaxChars by the next finer boundary.
func (s *Splitter) boundarySpans(text string, b boundary) []span {
	frags := splitAt(text, 0, len(text), b)
	frags = mergeShort(frags, s.cfg.MinChars)

	var spans []span
	for _, f := range frags {
		if f.len() > s.cfg.MaxChars {
			spans = append(spans, s.resplit(text, f, b.finer())...)
			continue
		}
		spans = append(spans, s.spanFor(text, f, b))
	}
	return spans
}

// resplit recursively breaks an oversized fragment at progressively finer
// boundaries, ending with fixed-size windows.
func (s *Splitter) resplit(text string, f frag, b boundary) []span {
	if b == boundaryNone {
		return fixedWindows(text, f, s.cfg.MaxChars)
	}
	sub := splitAt(text, f.start, f.end, b)
	sub = mergeShort(sub, s.cfg.MinChars)
	var spans []span
	for _, sf := range sub {
		if sf.len() > s.cfg.MaxChars {
			spans = append(spans, s.resplit(text, sf, b.finer())...)
			continue
		}
		spans = append(spans, s.spanFor(text, sf, b))
	}
	return spans
}

// spanFor builds a span for a fragment, attaching page numbers and headings
// where the boundary provides them.
func (s *Splitter) spanFor(text string, f frag, b boundary) span {
	sp := span{start: f.start, end: f.end, parentIdx: -1}
	switch b {
	case boundaryPage:
		page := strings.Count(text[:f.start], "\f") + 1
		sp.page = &page
	case boundaryHeading:
		sp.heading = headingTitle(text[f.start:f.end])
	}
	return sp
}

// splitAt divides text[start:end] at the boundary, separator attached to the
// preceding fragment.
func splitAt(text string, start, end int, b boundary) []frag {
	section := text[start:end]
	var cuts []int // offsets within section where a new fragment begins

	switch b {
	case boundaryPage:
		for i := 0; i < len(section); i++ {
			if section[i] == '\f' {
				cuts = append(cuts, i+1)
			}
		}
	case boundaryHeading:
		for _, loc := range atxHeadingRe.FindAllStringIndex(section, -1) {
			if loc[0] > 0 {
				cuts = append(cuts, loc[0])
			}
		}
	case boundaryParagraph:
		for i := 0; i+1 < len(section); i++ {
			if section[i] == '\n' && section[i+1] == '\n' {
				// Absorb the whole blank-line run into the left fragment.
				j := i + 1
				for j < len(section) && section[j] == '\n' {
					j++
				}
				cuts = append(cuts, j)
				i = j - 1
			}
		}
	case boundarySentence:
		for i := 0; i+1 < len(section); i++ {
			c := section[i]
			if (c == '.' || c == '!' || c == '?') && section[i+1] == ' ' {
				cuts = append(cuts, i+2)
			} else if c == '\n' {
				cuts = append(cuts, i+1)
			}
		}
	}

	var frags []frag
	prev := 0
	for _, cut := range cuts {
		if cut <= prev || cut >= len(section) {
			continue
		}
		frags = append(frags, frag{start: start + prev, end: start + cut})
		prev = cut
	}
	frags = append(frags, frag{start: start + prev, end: end})
	return frags
}

// mergeShort folds fragments shorter than minChars into their predecessor
// (or successor when first).
func mergeShort(frags []frag, minChars int) []frag {
	if minChars <= 0 || len(frags) < 2 {
		return frags
	}
	var out []frag
	for _, f := range frags {
		if len(out) > 0 && (f.len() < minChars || out[len(out)-1].len() < minChars) {
			out[len(out)-1].end = f.end
			continue
		}
		out = append(out, f)
	}
	return out
}

// fixedWindows cuts a fragment into windows of maxChars runes.
func fixedWindows(text string, f frag, maxChars int) []span {
	var spans []span
	section := text[f.start:f.end]
	start := 0
	count := 0
	for i := range section {
		if count == maxChars {
			spans = append(spans, span{start: f.start + start, end: f.start + i, parentIdx: -1})
			start = i
			count = 0
		}
		count++
	}
	if start < len(section) {
		spans = append(spans, span{start: f.start + start, end: f.end, parentIdx: -1})
	}
	return spans
}

// headingTitle extracts the title of the first ATX heading line, if any.
func headingTitle(section string) string {
	line := section
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	trimmed := strings.TrimLeft(line, "#")
	if trimmed == line {
		return ""
	}
	return strings.TrimSpace(trimmed)
}
