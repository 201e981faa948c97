package fetch

import (
	"bytes"
	"context"
	"strings"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

var pdfMagic = []byte("%PDF")

// FetchPDF retrieves a PDF from a URL or a local path and validates the
// %PDF magic before storing. Bad magic fails with ParseError.
func (f *Fetcher) FetchPDF(ctx context.Context, urlOrPath string, opts URLOptions) (*blob.Artifact, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultPDFTimeout
	}

	if strings.HasPrefix(urlOrPath, "http://") || strings.HasPrefix(urlOrPath, "https://") {
		art, err := f.FetchURL(ctx, urlOrPath, opts)
		if err != nil {
			return nil, err
		}
		data, err := f.blobs.Read(art.Path)
		if err != nil {
			return nil, err
		}
		if err := checkPDFMagic(urlOrPath, data); err != nil {
			return nil, err
		}
		return art, nil
	}

	data, err := f.readLocal(urlOrPath)
	if err != nil {
		return nil, err
	}
	if err := checkPDFMagic(urlOrPath, data); err != nil {
		return nil, err
	}
	return f.blobs.Write(urlOrPath, data, "application/pdf", opts.Force)
}

func checkPDFMagic(uri string, data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return ferrors.Newf(ferrors.CodeParseError, "%s is not a PDF (missing %%PDF header)", uri).
			WithDetail("uri", uri)
	}
	return nil
}
