// Package officeconv holds the document converters: a Gotenberg client, a local
// LibreOffice (soffice) runner and a PDF passthrough.
package officeconv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/drummonds/officepreview/preview"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// Router picks a converter per request: PDF sources bypass the office engine and
// html output always comes from LibreOffice.
type Router struct {
	PDF    preview.DocumentConverter
	Office preview.DocumentConverter
	HTML   preview.DocumentConverter
}

func (r *Router) Convert(ctx context.Context, src, dest string, opts preview.ConvertOptions) error {
	switch {
	case opts.Extension == "pdf" && opts.Format == preview.FormatPDF:
		return r.PDF.Convert(ctx, src, dest, opts)
	case opts.Format == preview.FormatHTML:
		if r.HTML == nil {
			return preview.NewEngineError("router", preview.ErrorKindFormat, "no converter produces html", nil)
		}
		return r.HTML.Convert(ctx, src, dest, opts)
	default:
		return r.Office.Convert(ctx, src, dest, opts)
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
