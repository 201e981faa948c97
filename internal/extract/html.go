package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// HTMLOptions control how much document structure survives extraction.
type HTMLOptions struct {
	KeepHeadings bool // render h1..h6 as ATX markdown headings
	KeepLinks    bool // render anchors as [text](href)
	KeepTables   bool // render table cells pipe-separated
}

// DefaultHTMLOptions preserve headings so the hierarchical chunker can see
// section structure.
func DefaultHTMLOptions() HTMLOptions {
	return HTMLOptions{KeepHeadings: true}
}

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "svg": true,
}

// blockElements force a paragraph break around their content.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "ul": true, "ol": true, "li": true,
	"blockquote": true, "pre": true, "tr": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractHTML parses the document and walks the DOM into normalized text.
// Consecutive blank lines collapse to one paragraph break.
func extractHTML(data []byte, opts HTMLOptions) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeParseError, err)
	}

	w := &htmlWalker{opts: opts}
	w.walk(root)

	return &Document{
		Text:        collapseBlankLines(w.sb.String()),
		Title:       w.title,
		ContentType: "text/html",
		Decoder:     "html/1",
	}, nil
}

type htmlWalker struct {
	opts  HTMLOptions
	sb    strings.Builder
	title string
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		switch {
		case skippedElements[n.Data]:
			return
		case n.Data == "title":
			if w.title == "" {
				w.title = strings.TrimSpace(textContent(n))
			}
			return
		case isHeading(n.Data):
			w.writeHeading(n)
			return
		case n.Data == "a" && w.opts.KeepLinks:
			w.writeLink(n)
			return
		case n.Data == "table" && !w.opts.KeepTables:
			// Tables off: flatten cells to plain text below.
		case n.Data == "td" || n.Data == "th":
			if w.opts.KeepTables {
				w.sb.WriteString(strings.TrimSpace(textContent(n)))
				w.sb.WriteString(" | ")
				return
			}
		}
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			w.sb.WriteString(text)
			w.sb.WriteString(" ")
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		w.sb.WriteString("\n\n")
	}
}

func (w *htmlWalker) writeHeading(n *html.Node) {
	text := strings.TrimSpace(textContent(n))
	if text == "" {
		return
	}
	if w.opts.KeepHeadings {
		level := int(n.Data[1] - '0')
		fmt.Fprintf(&w.sb, "%s %s\n\n", strings.Repeat("#", level), text)
		return
	}
	w.sb.WriteString(text)
	w.sb.WriteString("\n\n")
}

func (w *htmlWalker) writeLink(n *html.Node) {
	text := strings.TrimSpace(textContent(n))
	if text == "" {
		return
	}
	href := attr(n, "href")
	if href == "" {
		w.sb.WriteString(text)
		w.sb.WriteString(" ")
		return
	}
	fmt.Fprintf(&w.sb, "[%s](%s) ", text, href)
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// textContent flattens a subtree to its text, space separated.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// collapseBlankLines trims trailing spaces and folds runs of blank lines
// into a single paragraph separator.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
