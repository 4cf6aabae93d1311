package pdfrenderer

import (
	"errors"
	"image"

	"github.com/drummonds/officepreview/preview"
	"github.com/gen2brain/go-fitz"
)

const fitzEngine = "fitz"

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzRenderer struct {
	DPI float64
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer() (*FitzRenderer, error) {
	return &FitzRenderer{DPI: DefaultDPI}, nil
}

// RenderPDF converts all pages of a PDF file to images using go-fitz.
// MuPDF documents are not safe for concurrent use so each call opens its own.
func (r *FitzRenderer) RenderPDF(filename string) ([]image.Image, error) {
	doc, err := fitz.New(filename)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, preview.NewEngineError(fitzEngine, preview.ErrorKindSecurity, "document needs a password", err)
		}
		return nil, preview.NewEngineError(fitzEngine, preview.ErrorKindIO, "unable to open PDF document", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	images := make([]image.Image, 0, numPages)
	for pageNum := 0; pageNum < numPages; pageNum++ {
		img, err := doc.ImageDPI(pageNum, r.DPI)
		if err != nil {
			return nil, preview.NewEngineError(fitzEngine, preview.ErrorKindEngine, "unable to render page", err)
		}
		images = append(images, img)
	}

	return images, nil
}

// Close cleans up resources (no-op for Fitz renderer as doc is closed per-render)
func (r *FitzRenderer) Close() error {
	return nil
}
