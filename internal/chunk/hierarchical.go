package chunk

import (
	"regexp"
	"strings"
)

var headingLineRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.*)$`)

// hierarchySection is one ATX-heading section of a markdown document.
type hierarchySection struct {
	level        int
	title        string
	start        int // section start (heading line)
	end          int // section end (start of next heading, or len)
	contentStart int // first byte after the heading line
}

// hierarchicalSpans scans for ATX markdown headings, emits one parent chunk
// per heading covering the heading line and its immediate content, then child
// chunks produced by recursive splitting of the content. Children carry the
// parent's id and the leading parent_context_chars of the parent text.
// Content before the first heading is chunked recursively at level 0.
func (s *Splitter) hierarchicalSpans(text string) []span {
	sections := parseSections(text)

	var spans []span
	for _, sec := range sections {
		if sec.level == 0 {
			// Preamble before the first heading.
			pre := s.recursiveSpans(text[sec.start:sec.end], sec.start, s.cfg.Separators)
			spans = append(spans, pre...)
			continue
		}

		parentIdx := -1
		parentText := text[sec.start:sec.end]
		if s.cfg.CreateParentChunks {
			spans = append(spans, span{
				start:     sec.start,
				end:       sec.end,
				heading:   sec.title,
				level:     sec.level,
				parentIdx: -1,
				isParent:  true,
			})
			parentIdx = len(spans) - 1
		}

		content := text[sec.contentStart:sec.end]
		if strings.TrimSpace(content) == "" {
			continue
		}
		children := s.recursiveSpans(content, sec.contentStart, s.cfg.Separators)
		ctx := headRuneSafe(parentText, s.cfg.ParentContextChars)
		for i := range children {
			children[i].heading = sec.title
			children[i].level = sec.level
			children[i].parentIdx = parentIdx
			if parentIdx >= 0 {
				children[i].parentCtx = ctx
			}
		}
		spans = append(spans, children...)
	}
	return spans
}

// parseSections splits text into heading-delimited sections. A zero-level
// section covers any content before the first heading.
func parseSections(text string) []hierarchySection {
	matches := headingLineRe.FindAllStringSubmatchIndex(text, -1)
	var sections []hierarchySection

	if len(matches) == 0 {
		return []hierarchySection{{level: 0, start: 0, end: len(text), contentStart: 0}}
	}
	if matches[0][0] > 0 {
		sections = append(sections, hierarchySection{
			level: 0, start: 0, end: matches[0][0], contentStart: 0,
		})
	}

	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		contentStart := m[1]
		if contentStart < len(text) && text[contentStart] == '\n' {
			contentStart++
		}
		sections = append(sections, hierarchySection{
			level:        m[3] - m[2],
			title:        strings.TrimSpace(text[m[4]:m[5]]),
			start:        m[0],
			end:          end,
			contentStart: contentStart,
		})
	}
	return sections
}
