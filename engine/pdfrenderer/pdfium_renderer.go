package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/drummonds/officepreview/preview"
	"github.com/klippa-app/go-pdfium"
	pdfiumErrors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

const pdfiumEngine = "pdfium"

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	pool pdfium.Pool
	DPI  int
}

// NewPDFiumRenderer creates a WebAssembly pool with one instance per worker
func NewPDFiumRenderer(workers int) (*PDFiumRenderer, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	return &PDFiumRenderer{
		pool: pool,
		DPI:  DefaultDPI,
	}, nil
}

// RenderPDF converts all pages of a PDF file to images using an instance borrowed from the pool
func (r *PDFiumRenderer) RenderPDF(filename string) ([]image.Image, error) {
	pdfBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindIO, "unable to read PDF file", err)
	}

	instance, err := r.pool.GetInstance(time.Second * 30)
	if err != nil {
		return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindEngine, "failed to get PDFium instance", err)
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		if errors.Is(err, pdfiumErrors.ErrPassword) || errors.Is(err, pdfiumErrors.ErrSecurity) {
			return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindSecurity, "document needs a password", err)
		}
		return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindIO, "unable to open PDF document", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCountResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindEngine, "unable to get page count", err)
	}

	numPages := pageCountResp.PageCount
	images := make([]image.Image, 0, numPages)
	for pageIndex := 0; pageIndex < numPages; pageIndex++ {
		pageRender, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
			DPI: r.DPI,
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: doc.Document,
					Index:    pageIndex,
				},
			},
		})
		if err != nil {
			return nil, preview.NewEngineError(pdfiumEngine, preview.ErrorKindEngine, fmt.Sprintf("unable to render page %d", pageIndex), err)
		}

		// The bitmap lives in WebAssembly memory and is released by Cleanup
		images = append(images, imaging.Clone(pageRender.Result.Image))
		pageRender.Cleanup()
	}

	return images, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	if r.pool != nil {
		err := r.pool.Close()
		r.pool = nil
		return err
	}
	return nil
}
