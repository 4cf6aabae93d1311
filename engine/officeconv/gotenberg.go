package officeconv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/officepreview/preview"
)

const gotenbergEngine = "gotenberg"

// GotenbergConverter converts office documents to PDF through the Gotenberg LibreOffice route
type GotenbergConverter struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewGotenbergConverter creates a client for the Gotenberg instance at baseURL
func NewGotenbergConverter(baseURL string, timeout time.Duration) *GotenbergConverter {
	return &GotenbergConverter{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Convert uploads src and writes the returned PDF to dest
func (g *GotenbergConverter) Convert(ctx context.Context, src, dest string, opts preview.ConvertOptions) error {
	if opts.Format != preview.FormatPDF {
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindFormat, "only pdf output is supported", nil)
	}

	file, err := os.Open(src)
	if err != nil {
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindIO, "failed to open source", err)
	}
	defer file.Close()

	// Create multipart form data
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", uploadName(src, opts.Extension))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindIO, "failed to read source", err)
	}
	if opts.Credential != "" {
		if err := writer.WriteField("password", opts.Credential); err != nil {
			return fmt.Errorf("failed to write password field: %w", err)
		}
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/forms/libreoffice/convert", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindEngine, "failed to call gotenberg", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, string(bodyBytes))
	}

	out, err := os.Create(dest)
	if err != nil {
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindIO, "failed to create artifact", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindIO, "failed to write artifact", err)
	}
	return out.Close()
}

// statusError classifies a failed Gotenberg response. LibreOffice only reports
// password problems in the message text.
func statusError(status int, message string) error {
	msg := fmt.Sprintf("gotenberg returned status %d: %s", status, strings.TrimSpace(message))
	switch {
	case status < 500 && strings.Contains(strings.ToLower(message), "password"):
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindSecurity, msg, nil)
	case status < 500:
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindFormat, msg, nil)
	default:
		return preview.NewEngineError(gotenbergEngine, preview.ErrorKindEngine, msg, nil)
	}
}

// uploadName keeps the declared extension so LibreOffice picks the right import filter
func uploadName(src, ext string) string {
	name := filepath.Base(src)
	if ext != "" && !strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), ext) {
		name += "." + ext
	}
	return name
}
