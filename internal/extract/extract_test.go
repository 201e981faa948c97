package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func TestExtract_HTMLHeadingsAndTitle(t *testing.T) {
	page := `<html><head><title>Guide</title><style>.x{}</style></head>
<body>
<h1>Intro</h1>
<p>First paragraph.</p>
<h2>Details</h2>
<p>Second paragraph.</p>
<script>ignore()</script>
</body></html>`

	doc, err := Extract([]byte(page), "text/html", "https://x/guide", Options{HTML: DefaultHTMLOptions()})
	require.NoError(t, err)

	assert.Equal(t, "Guide", doc.Title)
	assert.Equal(t, "html/1", doc.Decoder)
	assert.Contains(t, doc.Text, "# Intro")
	assert.Contains(t, doc.Text, "## Details")
	assert.Contains(t, doc.Text, "First paragraph.")
	assert.NotContains(t, doc.Text, "ignore()")
	assert.NotContains(t, doc.Text, ".x{}")
	// No triple blank lines survive.
	assert.NotContains(t, doc.Text, "\n\n\n")
}

func TestExtract_HTMLLinks(t *testing.T) {
	page := `<html><body><p>See <a href="https://example.com/doc">the docs</a> here.</p></body></html>`

	withLinks, err := Extract([]byte(page), "text/html", "", Options{
		HTML: HTMLOptions{KeepLinks: true},
	})
	require.NoError(t, err)
	assert.Contains(t, withLinks.Text, "[the docs](https://example.com/doc)")

	without, err := Extract([]byte(page), "text/html", "", Options{})
	require.NoError(t, err)
	assert.Contains(t, without.Text, "the docs")
	assert.NotContains(t, without.Text, "](")
}

func TestExtract_FormatDispatch(t *testing.T) {
	cases := []struct {
		contentType string
		uri         string
		data        string
		decoder     string
	}{
		{"text/markdown", "", "# hi", "markdown/1"},
		{"", "notes.md", "# hi", "markdown/1"},
		{"text/csv", "", "a,b", "csv/1"},
		{"application/json", "", "{}", "json/1"},
		{"", "plain.unknown", "hello", "text/1"},
	}
	for _, tc := range cases {
		doc, err := Extract([]byte(tc.data), tc.contentType, tc.uri, Options{})
		require.NoError(t, err)
		assert.Equal(t, tc.decoder, doc.Decoder, "%s %s", tc.contentType, tc.uri)
		assert.Equal(t, tc.data, doc.Text)
	}
}

func TestExtract_ExplicitHintWins(t *testing.T) {
	doc, err := Extract([]byte("# heading"), "text/html", "x.html", Options{Format: FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "markdown/1", doc.Decoder)
	assert.Equal(t, "# heading", doc.Text)
}

type fakePDFDecoder struct {
	pages []Page
	err   error
}

func (d *fakePDFDecoder) DecodePDF([]byte) ([]Page, error) { return d.pages, d.err }
func (d *fakePDFDecoder) Version() string                  { return "fake-2.1" }

func TestExtract_PDFJoinsPagesWithFormFeed(t *testing.T) {
	decoder := &fakePDFDecoder{pages: []Page{
		{Page: 1, Text: "first page", CharCount: 10},
		{Page: 2, Text: "second page", CharCount: 11},
	}}

	doc, err := Extract([]byte("%PDF-1.7"), "application/pdf", "doc.pdf", Options{PDF: decoder})
	require.NoError(t, err)
	assert.Equal(t, "pdf/fake-2.1", doc.Decoder)
	assert.Equal(t, "first page\fsecond page", doc.Text)
	assert.Len(t, doc.Pages, 2)
}

func TestExtract_PDFWithoutDecoderFails(t *testing.T) {
	_, err := Extract([]byte("%PDF-1.7"), "application/pdf", "doc.pdf", Options{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeParseError))
}

func TestExtract_PDFDecoderErrorWrapped(t *testing.T) {
	decoder := &fakePDFDecoder{err: errors.New("encrypted")}
	_, err := Extract([]byte("%PDF-1.7"), "application/pdf", "doc.pdf", Options{PDF: decoder})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeParseError))
	assert.Contains(t, err.Error(), "encrypted")
}

func TestExtract_InvalidUTF8Replaced(t *testing.T) {
	doc, err := Extract([]byte{'h', 'i', 0xff, '!'}, "text/plain", "", Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "hi"))
	assert.Contains(t, doc.Text, "�")
}
