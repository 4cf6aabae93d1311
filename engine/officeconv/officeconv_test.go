package officeconv

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/drummonds/officepreview/preview"
)

func writeSource(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	return path
}

func TestGotenbergConverter_Success(t *testing.T) {
	var gotPassword, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/libreoffice/convert" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotPassword = r.FormValue("password")
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile = header.Filename
		io.Copy(io.Discard, file)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 converted"))
	}))
	defer server.Close()

	src := writeSource(t, "source-7f3a", "docx bytes")
	dest := filepath.Join(t.TempDir(), "out.pdf")
	conv := NewGotenbergConverter(server.URL+"/", 5*time.Second)

	err := conv.Convert(context.Background(), src, dest, preview.ConvertOptions{Credential: "secret", Format: preview.FormatPDF, Extension: "docx"})
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	if gotPassword != "secret" {
		t.Errorf("Expected password field secret, got %q", gotPassword)
	}
	if gotFile != "source-7f3a.docx" {
		t.Errorf("Expected upload name with extension, got %s", gotFile)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "%PDF-1.7 converted" {
		t.Errorf("Unexpected artifact %q (%v)", data, err)
	}
}

func TestGotenbergConverter_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     preview.ErrorKind
		security bool
	}{
		{"password", http.StatusBadRequest, "LibreOffice failed to process a document: a password may be required, or, if one has been given, it is invalid", preview.ErrorKindSecurity, true},
		{"bad input", http.StatusBadRequest, "LibreOffice failed to process a document: possible causes include malformed document", preview.ErrorKindFormat, false},
		{"server", http.StatusServiceUnavailable, "Service Unavailable", preview.ErrorKindEngine, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.body, tt.status)
			}))
			defer server.Close()

			src := writeSource(t, "a.docx", "docx bytes")
			dest := filepath.Join(t.TempDir(), "out.pdf")
			err := NewGotenbergConverter(server.URL, 5*time.Second).Convert(context.Background(), src, dest, preview.ConvertOptions{Format: preview.FormatPDF, Extension: "docx"})

			var engineErr *preview.EngineError
			if !errors.As(err, &engineErr) {
				t.Fatalf("Expected engine error, got %v", err)
			}
			if engineErr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, engineErr.Kind)
			}
			if preview.IsSecurityFailure(err) != tt.security {
				t.Errorf("Expected security %v, got %v", tt.security, !tt.security)
			}
			if _, statErr := os.Stat(dest); statErr == nil {
				t.Error("Expected no artifact on failure")
			}
		})
	}
}

func TestGotenbergConverter_RejectsHTML(t *testing.T) {
	conv := NewGotenbergConverter("http://127.0.0.1:1", time.Second)
	err := conv.Convert(context.Background(), "a.xlsx", "out.html", preview.ConvertOptions{Format: preview.FormatHTML})
	if err == nil {
		t.Fatal("Expected html conversion to be rejected")
	}
}

type recordingConverter struct {
	calls int
}

func (r *recordingConverter) Convert(context.Context, string, string, preview.ConvertOptions) error {
	r.calls++
	return nil
}

func TestRouter(t *testing.T) {
	pdf, office, html := &recordingConverter{}, &recordingConverter{}, &recordingConverter{}
	router := &Router{PDF: pdf, Office: office, HTML: html}
	ctx := context.Background()

	router.Convert(ctx, "a.pdf", "b.pdf", preview.ConvertOptions{Extension: "pdf", Format: preview.FormatPDF})
	router.Convert(ctx, "a.docx", "b.pdf", preview.ConvertOptions{Extension: "docx", Format: preview.FormatPDF})
	router.Convert(ctx, "a.xlsx", "b.html", preview.ConvertOptions{Extension: "xlsx", Format: preview.FormatHTML})

	if pdf.calls != 1 || office.calls != 1 || html.calls != 1 {
		t.Errorf("Expected one call each, got pdf=%d office=%d html=%d", pdf.calls, office.calls, html.calls)
	}

	router.HTML = nil
	if err := router.Convert(ctx, "a.xlsx", "b.html", preview.ConvertOptions{Extension: "xlsx", Format: preview.FormatHTML}); err == nil {
		t.Error("Expected an error without an html converter")
	}
}

func TestPDFPassthrough_Copies(t *testing.T) {
	src := writeSource(t, "in.pdf", "%PDF-1.4 body")
	dest := filepath.Join(t.TempDir(), "out.pdf")

	if err := (PDFPassthrough{}).Convert(context.Background(), src, dest, preview.ConvertOptions{Extension: "pdf", Format: preview.FormatPDF}); err != nil {
		t.Fatalf("Failed to copy: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "%PDF-1.4 body" {
		t.Errorf("Unexpected artifact %q (%v)", data, err)
	}
}

func TestSofficeConverter_RejectsCredential(t *testing.T) {
	conv := NewSofficeConverter("/nonexistent/soffice", time.Second)
	err := conv.Convert(context.Background(), "a.docx", filepath.Join(t.TempDir(), "b.pdf"), preview.ConvertOptions{Credential: "x", Format: preview.FormatPDF})
	if !preview.IsSecurityFailure(err) {
		t.Errorf("Expected a security failure, got %v", err)
	}
}

func TestSofficeConverter_MissingBinary(t *testing.T) {
	src := writeSource(t, "a.docx", "docx bytes")
	conv := NewSofficeConverter("/nonexistent/soffice", time.Second)
	err := conv.Convert(context.Background(), src, filepath.Join(t.TempDir(), "b.pdf"), preview.ConvertOptions{Format: preview.FormatPDF, Extension: "docx"})

	var engineErr *preview.EngineError
	if !errors.As(err, &engineErr) || engineErr.Kind != preview.ErrorKindEngine {
		t.Errorf("Expected engine kind error, got %v", err)
	}
}

func TestSofficeConverter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping LibreOffice test in short mode")
	}
	path, err := exec.LookPath("soffice")
	if err != nil {
		t.Skip("soffice not installed")
	}
	src := writeSource(t, "table.csv", "name,value\nalpha,1\nbeta,2\n")
	dest := filepath.Join(t.TempDir(), "table.pdf")

	err = NewSofficeConverter(path, 2*time.Minute).Convert(context.Background(), src, dest, preview.ConvertOptions{Format: preview.FormatPDF, Extension: "csv"})
	if err != nil {
		t.Fatalf("Failed to convert with soffice: %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Errorf("Expected a non empty pdf, got %v", err)
	}
}
