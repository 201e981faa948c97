package chunk

import "strings"

// recursiveSpans walks the separator hierarchy: split at the current
// separator, greedily pack fragments into chunks while the combined length
// stays within MaxChars, and recurse with the remaining finer separators when
// a single fragment is still too large. Separators stay attached to the
// preceding fragment so packed ranges are contiguous.
func (s *Splitter) recursiveSpans(text string, base int, seps []string) []span {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= s.cfg.MaxChars {
		return []span{{start: base, end: base + len(text), parentIdx: -1}}
	}
	if len(seps) == 0 {
		return spanList(fixedWindows(text, frag{start: 0, end: len(text)}, s.cfg.MaxChars)).apply(base)
	}

	frags := splitOnSeparator(text, seps[0])
	if len(frags) == 1 {
		// Separator absent at this level; try the next finer one.
		return s.recursiveSpans(text, base, seps[1:])
	}

	var spans []span
	cur := frag{start: -1}
	flush := func() {
		if cur.start >= 0 {
			spans = append(spans, span{start: base + cur.start, end: base + cur.end, parentIdx: -1})
			cur = frag{start: -1}
		}
	}

	for _, f := range frags {
		if f.len() > s.cfg.MaxChars {
			flush()
			spans = append(spans, s.recursiveSpans(text[f.start:f.end], base+f.start, seps[1:])...)
			continue
		}
		if cur.start < 0 {
			cur = f
			continue
		}
		if cur.end-cur.start+f.len() <= s.cfg.MaxChars {
			cur.end = f.end
			continue
		}
		flush()
		cur = f
	}
	flush()
	return spans
}

// splitOnSeparator divides text at each occurrence of sep, keeping the
// separator attached to the left fragment.
func splitOnSeparator(text, sep string) []frag {
	var frags []frag
	prev := 0
	for {
		i := strings.Index(text[prev:], sep)
		if i < 0 {
			break
		}
		cut := prev + i + len(sep)
		if cut >= len(text) {
			break
		}
		frags = append(frags, frag{start: prev, end: cut})
		prev = cut
	}
	frags = append(frags, frag{start: prev, end: len(text)})
	return frags
}

// spanList is a helper for rebasing fixed windows produced from a substring.
type spanList []span

func (l spanList) apply(base int) []span {
	for i := range l {
		l[i].start += base
		l[i].end += base
	}
	return l
}
