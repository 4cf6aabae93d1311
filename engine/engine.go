package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/drummonds/officepreview/engine/pdfrenderer"
	"github.com/drummonds/officepreview/preview"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

const defaultImageQuality = 85

// PageImageConverter renders a PDF into one JPEG per page
type PageImageConverter struct {
	Renderer pdfrenderer.Renderer
	Width    int // pages are scaled to this width keeping their aspect ratio, 0 keeps the rendered size
	Quality  int
	Encoders int // concurrent JPEG encoders
}

// NewPageImageConverter creates a converter over renderer
func NewPageImageConverter(renderer pdfrenderer.Renderer, width, quality, encoders int) *PageImageConverter {
	if quality <= 0 || quality > 100 {
		quality = defaultImageQuality
	}
	if encoders < 1 {
		encoders = 1
	}
	return &PageImageConverter{
		Renderer: renderer,
		Width:    width,
		Quality:  quality,
		Encoders: encoders,
	}
}

// RenderPages writes <page>.jpg files into destDir, numbered from 0, and returns them in page order
func (c *PageImageConverter) RenderPages(ctx context.Context, pdfPath, destDir string) ([]string, error) {
	Logger.Info("Converting PDF to page images", "fileName", pdfPath)

	if _, err := os.Stat(pdfPath); err != nil {
		Logger.Error("Unable to access PDF file", "fileName", pdfPath, "error", err)
		return nil, preview.NewEngineError("renderer", preview.ErrorKindIO, "unable to access PDF file", err)
	}
	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		Logger.Error("Unable to create page image directory (permissions?)", "dir", destDir, "error", err)
		return nil, err
	}

	pages, err := c.Renderer.RenderPDF(pdfPath)
	if err != nil {
		Logger.Error("Unable to render PDF", "fileName", pdfPath, "error", err)
		return nil, err
	}
	Logger.Debug("PDF has pages", "count", len(pages))

	paths := make([]string, len(pages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Encoders)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(destDir, fmt.Sprintf("%d.jpg", i))
			if err := c.savePage(page, path); err != nil {
				return fmt.Errorf("unable to save page %d: %w", i, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		Logger.Error("Unable to encode page images", "fileName", pdfPath, "error", err)
		return nil, err
	}

	Logger.Info("Successfully converted PDF to page images", "fileName", pdfPath, "pages", len(paths))
	return paths, nil
}

func (c *PageImageConverter) savePage(page image.Image, path string) error {
	if c.Width > 0 && page.Bounds().Dx() > c.Width {
		page = imaging.Resize(page, c.Width, 0, imaging.Lanczos)
	}
	return imaging.Save(page, path, imaging.JPEGQuality(c.Quality))
}

// PDFValidator rejects converted PDFs pdfcpu cannot read or that have no pages
type PDFValidator struct{}

func (PDFValidator) Validate(path string) error {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return preview.NewEngineError("pdfcpu", preview.ErrorKindFormat, "converted PDF is unreadable", err)
	}
	if pageCount < 1 {
		return preview.NewEngineError("pdfcpu", preview.ErrorKindFormat, "converted PDF has no pages", nil)
	}
	return nil
}
