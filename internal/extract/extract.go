// Package extract converts raw fetched bytes into text for chunking. HTML
// goes through a DOM walker; PDFs go through a pluggable decoder producing
// page records; everything else passes through as plain text.
package extract

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Format is an explicit decoder hint. FormatAuto dispatches on content type
// and file extension.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatPDF      Format = "pdf"
)

// Page is one page of a paginated source.
type Page struct {
	Page       int                `json:"page"`
	Text       string             `json:"text"`
	CharCount  int                `json:"char_count"`
	OCRUsed    bool               `json:"ocr_used"`
	Confidence map[string]float64 `json:"confidence,omitempty"`
}

// Document is the extractor output: either flat text or a page stream
// joined by form feeds so the page chunking strategy can recover the
// boundaries.
type Document struct {
	Text        string `json:"text"`
	Pages       []Page `json:"pages,omitempty"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Decoder     string `json:"decoder"`
}

// PDFDecoder is the external decoder contract for paginated sources. The
// concrete decoder (layout, plain, OCR) is configuration, not core.
type PDFDecoder interface {
	DecodePDF(data []byte) ([]Page, error)
	Version() string
}

// Options configure an extraction.
type Options struct {
	Format Format
	HTML   HTMLOptions
	PDF    PDFDecoder // required for PDF input
}

// Extract dispatches on the format hint, falling back to content type and
// extension sniffing. The returned document names the decoder that produced
// it, for the phase manifest.
func Extract(data []byte, contentType, uri string, opts Options) (*Document, error) {
	switch resolveFormat(opts.Format, contentType, uri, data) {
	case FormatHTML:
		return extractHTML(data, opts.HTML)
	case FormatPDF:
		return extractPDF(data, uri, opts.PDF)
	case FormatMarkdown:
		return plainDocument(data, contentType, "markdown/1"), nil
	case FormatCSV:
		return plainDocument(data, contentType, "csv/1"), nil
	case FormatJSON:
		return plainDocument(data, contentType, "json/1"), nil
	default:
		return plainDocument(data, contentType, "text/1"), nil
	}
}

// resolveFormat turns an auto hint into a concrete format.
func resolveFormat(hint Format, contentType, uri string, data []byte) Format {
	if hint != "" && hint != FormatAuto {
		return hint
	}

	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	case "application/pdf":
		return FormatPDF
	case "text/markdown":
		return FormatMarkdown
	case "text/csv":
		return FormatCSV
	case "application/json":
		return FormatJSON
	}

	switch strings.ToLower(filepath.Ext(uri)) {
	case ".html", ".htm":
		return FormatHTML
	case ".pdf":
		return FormatPDF
	case ".md", ".markdown":
		return FormatMarkdown
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	}

	if strings.HasPrefix(string(data[:min(len(data), 4)]), "%PDF") {
		return FormatPDF
	}
	return FormatText
}

func plainDocument(data []byte, contentType, decoder string) *Document {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return &Document{Text: text, ContentType: contentType, Decoder: decoder}
}

// extractPDF runs the configured decoder and joins pages with form feeds.
func extractPDF(data []byte, uri string, decoder PDFDecoder) (*Document, error) {
	if decoder == nil {
		return nil, ferrors.Newf(ferrors.CodeParseError,
			"no PDF decoder configured for %s", uri).
			WithSuggestion("configure a pdf decoder in the extraction options")
	}
	pages, err := decoder.DecodePDF(data)
	if err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeParseError, err, "decoding %s", uri)
	}

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return &Document{
		Text:        strings.Join(texts, "\f"),
		Pages:       pages,
		ContentType: "application/pdf",
		Decoder:     "pdf/" + decoder.Version(),
	}, nil
}
