package officeconv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/officepreview/preview"
)

const sofficeEngine = "soffice"

// SofficeConverter runs a local LibreOffice in headless mode
type SofficeConverter struct {
	Path    string
	Timeout time.Duration
}

// NewSofficeConverter creates a converter using the soffice binary at path
func NewSofficeConverter(path string, timeout time.Duration) *SofficeConverter {
	return &SofficeConverter{Path: path, Timeout: timeout}
}

// Convert runs soffice --convert-to into a private directory and moves the result to dest.
// The command line has no password option, so protected documents cannot be converted.
func (s *SofficeConverter) Convert(ctx context.Context, src, dest string, opts preview.ConvertOptions) error {
	if opts.Credential != "" {
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindSecurity, "password protected documents are not supported", nil)
	}

	workDir, err := os.MkdirTemp(filepath.Dir(dest), ".soffice-")
	if err != nil {
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindIO, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, uploadName("document", opts.Extension))
	if err := copyFile(src, input); err != nil {
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindIO, "failed to stage source", err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	outDir := filepath.Join(workDir, "out")
	cmd := exec.CommandContext(ctx, s.Path,
		"-env:UserInstallation=file://"+filepath.ToSlash(filepath.Join(workDir, "profile")),
		"--headless", "--norestore",
		"--convert-to", opts.Format,
		"--outdir", outDir,
		input)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	Logger.Debug("Running soffice", "args", cmd.Args)
	if err := cmd.Run(); err != nil {
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindEngine,
			fmt.Sprintf("conversion failed: %s", strings.TrimSpace(output.String())), err)
	}

	produced := filepath.Join(outDir, "document."+opts.Format)
	if _, err := os.Stat(produced); err != nil {
		// soffice exits 0 when it cannot load the source
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindFormat,
			fmt.Sprintf("no output produced: %s", strings.TrimSpace(output.String())), err)
	}
	if err := os.Rename(produced, dest); err != nil {
		return preview.NewEngineError(sofficeEngine, preview.ErrorKindIO, "failed to move artifact", err)
	}
	return nil
}
