package officeconv

import (
	"context"
	"strings"

	"github.com/drummonds/officepreview/engine/officecrypt"
	"github.com/drummonds/officepreview/preview"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const passthroughEngine = "pdf"

// PDFPassthrough publishes PDF sources as they are, decrypting them when a password is given
type PDFPassthrough struct{}

func (PDFPassthrough) Convert(_ context.Context, src, dest string, opts preview.ConvertOptions) error {
	if opts.Credential == "" {
		if err := copyFile(src, dest); err != nil {
			return preview.NewEngineError(passthroughEngine, preview.ErrorKindIO, "failed to copy pdf", err)
		}
		return nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = opts.Credential
	conf.OwnerPW = opts.Credential
	err := api.DecryptFile(src, dest, conf)
	switch {
	case err == nil:
		return nil
	case strings.Contains(strings.ToLower(err.Error()), "not encrypted"):
		if err := copyFile(src, dest); err != nil {
			return preview.NewEngineError(passthroughEngine, preview.ErrorKindIO, "failed to copy pdf", err)
		}
		return nil
	case officecrypt.IsWrongPassword(err):
		return preview.NewEngineError(passthroughEngine, preview.ErrorKindSecurity, "password does not open the pdf", err)
	default:
		return preview.NewEngineError(passthroughEngine, preview.ErrorKindFormat, "failed to decrypt pdf", err)
	}
}
