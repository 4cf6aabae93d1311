package pdfrenderer

import (
	"fmt"
	"image"
)

// DefaultDPI is the render resolution before page images are scaled to their display width
const DefaultDPI = 150

// Renderer defines the interface for PDF to image conversion
type Renderer interface {
	// RenderPDF converts all pages of a PDF file to images
	// Returns a slice of images, one per page
	RenderPDF(filename string) ([]image.Image, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// NewRenderer creates the renderer named by kind ("pdfium" or "fitz") able to serve workers concurrent renders
func NewRenderer(kind string, workers int) (Renderer, error) {
	switch kind {
	case "", "pdfium":
		return NewPDFiumRenderer(workers)
	case "fitz":
		return NewFitzRenderer()
	}
	return nil, fmt.Errorf("unknown renderer type %q", kind)
}
